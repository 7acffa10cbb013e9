package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"voice-relay-service/internal/channel"
)

// ErrMissingAPIKey is returned when dialing without a model credential.
var ErrMissingAPIKey = errors.New("missing model API key")

// Dialer opens a model channel for one call session.
type Dialer interface {
	Dial(ctx context.Context) (channel.Channel, error)
}

// WebSocketDialer dials the hosted realtime endpoint.
type WebSocketDialer struct {
	endpoint string
	apiKey   string
	opts     channel.Options
}

// NewWebSocketDialer builds a dialer for baseURL?model=model.
func NewWebSocketDialer(baseURL, model, apiKey string, opts channel.Options) (*WebSocketDialer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse model url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("model url scheme %q: want ws or wss", u.Scheme)
	}
	if model != "" {
		q := u.Query()
		q.Set("model", model)
		u.RawQuery = q.Encode()
	}
	return &WebSocketDialer{endpoint: u.String(), apiKey: apiKey, opts: opts}, nil
}

// Endpoint returns the URL dialed, without credentials.
func (d *WebSocketDialer) Endpoint() string {
	return d.endpoint
}

// Dial connects with bearer auth and the realtime beta header.
func (d *WebSocketDialer) Dial(ctx context.Context) (channel.Channel, error) {
	if d.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	ws, err := channel.Dial(ctx, d.endpoint, header, d.opts)
	if err != nil {
		return nil, err
	}
	return ws, nil
}
