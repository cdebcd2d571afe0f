// Package drive talks to the external drive source that discovers media
// files. The core only consumes the Lister interface; Client is the HTTP
// implementation and Fixed is a deterministic stand-in for development.
package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/drivecast/drivecast/internal/models"
)

// Lister enumerates the files currently visible in a drive folder.
type Lister interface {
	DiscoverFiles(ctx context.Context, folderID string) ([]models.DiscoveredFile, error)
}

// Client lists drive folders over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a drive client for the given API base URL.
// apiKey is sent as a bearer token when non-empty.
func NewClient(baseURL, apiKey, userAgent string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// DiscoverFiles fetches the folder listing and decodes it.
func (c *Client) DiscoverFiles(ctx context.Context, folderID string) ([]models.DiscoveredFile, error) {
	u := fmt.Sprintf("%s/files?folder=%s", c.baseURL, url.QueryEscape(folderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("NewRequest: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("drive listing: HTTP %d", resp.StatusCode)
	}

	var listing struct {
		Files []models.DiscoveredFile `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return listing.Files, nil
}
