package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMissingCredentials is returned when no call-control API key is configured.
var ErrMissingCredentials = errors.New("missing call-control API key")

const maxErrorBodyPreview = 512

// StreamingRequest is the body of the streaming_start command.
type StreamingRequest struct {
	StreamURL                string `json:"stream_url"`
	StreamTrack              string `json:"stream_track"`
	StreamBidirectionalMode  string `json:"stream_bidirectional_mode"`
	StreamBidirectionalCodec string `json:"stream_bidirectional_codec"`
}

// Client issues call-control commands over the provider REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a call-control client. A nil httpClient gets a 10s timeout client.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Answer answers an inbound call.
func (c *Client) Answer(ctx context.Context, callControlID string) error {
	return c.Command(ctx, callControlID, "answer", struct{}{})
}

// StartStreaming forks call audio to the relay's media endpoint.
func (c *Client) StartStreaming(ctx context.Context, callControlID string, req StreamingRequest) error {
	return c.Command(ctx, callControlID, "streaming_start", req)
}

// Command posts /calls/{id}/actions/{command} with a JSON body.
func (c *Client) Command(ctx context.Context, callControlID, command string, body any) error {
	if c.apiKey == "" {
		return ErrMissingCredentials
	}
	if callControlID == "" {
		return fmt.Errorf("call control %s: empty call control id", command)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("call control %s: marshal body: %w", command, err)
	}

	endpoint := fmt.Sprintf("%s/calls/%s/actions/%s", c.baseURL, url.PathEscape(callControlID), url.PathEscape(command))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("call control %s: create request: %w", command, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call control %s: %w", command, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyPreview))
		return fmt.Errorf("call control %s failed with status %d: %s", command, resp.StatusCode, string(preview))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
