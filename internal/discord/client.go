// Package discord implements the small slice of the Discord REST API needed
// to keep one tracked message updated: channel lookup, message fetch,
// creation, and in-place edits.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	apiBase        = "https://discord.com/api/v10"
	requestTimeout = 15 * time.Second
)

// ErrNotFound indicates the requested channel or message does not exist
// (deleted, or the bot lacks access).
var ErrNotFound = errors.New("discord: not found")

// Client is an authenticated Discord REST client. All requests pass through
// a shared rate limiter to stay under Discord's global request budget.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a Discord client authenticating as a bot.
func New(botToken string, logger *slog.Logger) *Client {
	return NewWithHTTPClient(botToken, apiBase, &http.Client{Timeout: requestTimeout}, logger)
}

// NewWithHTTPClient creates a Discord client with a custom base URL and HTTP
// client (for testing).
func NewWithHTTPClient(botToken, baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      botToken,
		limiter:    rate.NewLimiter(rate.Limit(45), 1), // global cap is 50 req/s
		logger:     logger.With(slog.String("integration", "discord")),
	}
}

// Channel fetches a channel by ID. Returns ErrNotFound if it does not exist.
func (c *Client) Channel(ctx context.Context, channelID string) (*Channel, error) {
	var ch Channel
	if err := c.do(ctx, http.MethodGet, "/channels/"+channelID, nil, &ch); err != nil {
		return nil, fmt.Errorf("getting channel %s: %w", channelID, err)
	}
	return &ch, nil
}

// Message fetches a message by ID. Returns ErrNotFound if it was deleted.
func (c *Client) Message(ctx context.Context, channelID, messageID string) (*Message, error) {
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	var m Message
	if err := c.do(ctx, http.MethodGet, path, nil, &m); err != nil {
		return nil, fmt.Errorf("getting message %s: %w", messageID, err)
	}
	return &m, nil
}

// CreateMessage posts a new text message to a channel.
func (c *Client) CreateMessage(ctx context.Context, channelID, content string) (*Message, error) {
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	var m Message
	if err := c.do(ctx, http.MethodPost, path, &messageParams{Content: &content}, &m); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	return &m, nil
}

// EditMessage overwrites a message's content and embeds in place. An empty
// content string is sent explicitly so leftover placeholder text is cleared.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string, embeds []Embed) (*Message, error) {
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	var m Message
	if err := c.do(ctx, http.MethodPatch, path, &messageParams{Content: &content, Embeds: embeds}, &m); err != nil {
		return nil, fmt.Errorf("editing message %s: %w", messageID, err)
	}
	return &m, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
