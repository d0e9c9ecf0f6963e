// Package jellyfin implements a minimal client for the Jellyfin HTTP API,
// covering connectivity probing, library enumeration, and O(1) item counting.
package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const requestTimeout = 15 * time.Second

// Client communicates with a Jellyfin server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// New creates a Jellyfin client with default HTTP settings.
func New(baseURL, apiKey string, logger *slog.Logger) *Client {
	return NewWithHTTPClient(baseURL, apiKey, &http.Client{Timeout: requestTimeout}, logger)
}

// NewWithHTTPClient creates a Jellyfin client with a custom HTTP client (for testing).
func NewWithHTTPClient(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger.With(slog.String("integration", "jellyfin")),
	}
}

// Ping verifies connectivity by calling GET /System/Info and returns the
// server info on success.
func (c *Client) Ping(ctx context.Context) (*SystemInfo, error) {
	var info SystemInfo
	if err := c.get(ctx, "/System/Info", &info); err != nil {
		return nil, fmt.Errorf("probing server: %w", err)
	}
	c.logger.Debug("jellyfin connection ok", "server", info.ServerName, "version", info.Version)
	return &info, nil
}

// MediaFolders returns the configured libraries in server order.
func (c *Client) MediaFolders(ctx context.Context) ([]MediaFolder, error) {
	var resp MediaFoldersResponse
	if err := c.get(ctx, "/Library/MediaFolders", &resp); err != nil {
		return nil, fmt.Errorf("listing media folders: %w", err)
	}
	return resp.Items, nil
}

// CountItems returns the total number of items under the given library
// without transferring any item payloads (Limit=0, server-side count only).
// When seriesOnly is set the count is restricted to Series items so that a
// TV library counts shows rather than seasons and episodes.
func (c *Client) CountItems(ctx context.Context, libraryID string, seriesOnly bool) (int, error) {
	q := url.Values{}
	q.Set("ParentId", libraryID)
	q.Set("Recursive", "true")
	q.Set("Limit", "0")
	if seriesOnly {
		q.Set("IncludeItemTypes", "Series")
	}

	var resp CountResponse
	if err := c.get(ctx, "/Items?"+q.Encode(), &resp); err != nil {
		return 0, fmt.Errorf("counting items in library %s: %w", libraryID, err)
	}
	return resp.TotalRecordCount, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Emby-Token", c.apiKey)

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL constructed from trusted base + API path
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
