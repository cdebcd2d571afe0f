// Package publisher talks to the external channel-publishing API. The core
// only consumes the Publisher interface; Client is the HTTP implementation
// and Fixed is a deterministic stand-in for development.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/drivecast/drivecast/internal/models"
)

// Publisher pushes one media file to the destination channel and returns the
// public link of the resulting post.
type Publisher interface {
	PublishMedia(ctx context.Context, m *models.MediaFile) (string, error)
}

// Client publishes media over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a publish client for the given API base URL.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type publishRequest struct {
	ExternalFileID string  `json:"external_file_id"`
	FileName       string  `json:"file_name"`
	Kind           string  `json:"kind"`
	Caption        *string `json:"caption,omitempty"`
	AspectRatio    string  `json:"aspect_ratio,omitempty"`
}

type publishResponse struct {
	PublishedLink string `json:"published_link"`
}

// PublishMedia posts the media payload and decodes the published link.
func (c *Client) PublishMedia(ctx context.Context, m *models.MediaFile) (string, error) {
	body, err := json.Marshal(publishRequest{
		ExternalFileID: m.ExternalFileID,
		FileName:       m.FileName,
		Kind:           m.Kind,
		Caption:        m.Caption,
		AspectRatio:    m.AspectRatio,
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/posts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("NewRequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("Do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("publish: HTTP %d: %s", resp.StatusCode, snippet)
	}

	var out publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.PublishedLink == "" {
		return "", fmt.Errorf("publish: empty published_link in response")
	}
	return out.PublishedLink, nil
}
