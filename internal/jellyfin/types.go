package jellyfin

// SystemInfo represents the response from GET /System/Info.
type SystemInfo struct {
	ServerName string `json:"ServerName"`
	Version    string `json:"Version"`
	ID         string `json:"Id"`
}

// MediaFolder represents a library from GET /Library/MediaFolders.
// CollectionType is a free-text category hint ("movies", "tvshows", ...)
// and may be empty.
type MediaFolder struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	CollectionType string `json:"CollectionType"`
}

// MediaFoldersResponse wraps the media folder listing.
type MediaFoldersResponse struct {
	Items            []MediaFolder `json:"Items"`
	TotalRecordCount int           `json:"TotalRecordCount"`
}

// CountResponse carries the server-computed total for a Limit=0 items query.
// Items is always empty by construction.
type CountResponse struct {
	TotalRecordCount int `json:"TotalRecordCount"`
}
