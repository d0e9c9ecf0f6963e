package discord

// Channel represents a Discord channel, reduced to the fields we read.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type int    `json:"type"`
}

// Message represents a Discord message.
type Message struct {
	ID        string  `json:"id"`
	ChannelID string  `json:"channel_id"`
	Content   string  `json:"content"`
	Embeds    []Embed `json:"embeds"`
}

// Embed is the structured payload attached to a message.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// EmbedField is one labeled entry in an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// messageParams is the request body for creating or editing a message.
// Content uses a pointer so an edit can explicitly clear existing text.
type messageParams struct {
	Content *string `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}
