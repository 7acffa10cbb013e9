package telephony

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"voice-relay-service/internal/observability/logging"
	"voice-relay-service/internal/observability/metrics"
)

const maxWebhookBodyBytes = 1 << 20

// CallController is the subset of call-control commands the webhook issues.
type CallController interface {
	Answer(ctx context.Context, callControlID string) error
	StartStreaming(ctx context.Context, callControlID string, req StreamingRequest) error
}

// WebhookConfig describes how answered calls are streamed to the relay.
type WebhookConfig struct {
	PublicDomain string // empty falls back to the request's forwarded host
	MediaPath    string
	StreamTrack  string
	Codec        string
}

// WebhookHandler answers inbound calls and starts bidirectional streaming
// towards the relay's media endpoint.
type WebhookHandler struct {
	calls   CallController
	cfg     WebhookConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(calls CallController, cfg WebhookConfig, m *metrics.Metrics) *WebhookHandler {
	if cfg.MediaPath == "" {
		cfg.MediaPath = "/media"
	}
	if cfg.StreamTrack == "" {
		cfg.StreamTrack = "inbound_track"
	}
	if cfg.Codec == "" {
		cfg.Codec = "PCMU"
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &WebhookHandler{
		calls:   calls,
		cfg:     cfg,
		metrics: m,
		logger:  logging.WithComponent("webhook"),
	}
}

type webhookEnvelope struct {
	Data struct {
		EventType string `json:"event_type"`
		Payload   struct {
			CallControlID string `json:"call_control_id"`
		} `json:"payload"`
	} `json:"data"`
}

type webhookResponse struct {
	Status string `json:"status"`
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var env webhookEnvelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)).Decode(&env); err != nil {
		h.logger.Warn().Err(err).Msg("Rejected undecodable webhook body")
		h.metrics.RecordWebhookEvent("", "invalid")
		writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "invalid"})
		return
	}

	eventType := env.Data.EventType
	callID := env.Data.Payload.CallControlID
	logger := h.logger.With().Str("eventType", eventType).Str("callId", callID).Logger()

	if callID == "" {
		logger.Debug().Msg("Ignoring webhook without call control id")
		h.metrics.RecordWebhookEvent(eventType, "ignored")
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored"})
		return
	}

	switch eventType {
	case "call.initiated":
		if err := h.answerAndStream(r, callID); err != nil {
			// Always 200: a non-2xx would make the provider redeliver and re-answer.
			logger.Error().Err(err).Msg("Failed to answer and stream call")
			h.metrics.RecordWebhookEvent(eventType, "error")
			writeJSON(w, http.StatusOK, webhookResponse{Status: "error"})
			return
		}
		logger.Info().Msg("Call answered, media streaming requested")
	case "call.hangup":
		logger.Info().Msg("Call hung up")
	default:
		logger.Debug().Msg("Acknowledged webhook event")
	}

	h.metrics.RecordWebhookEvent(eventType, "ok")
	writeJSON(w, http.StatusOK, webhookResponse{Status: "ok"})
}

func (h *WebhookHandler) answerAndStream(r *http.Request, callID string) error {
	ctx := r.Context()
	if err := h.calls.Answer(ctx, callID); err != nil {
		return err
	}
	return h.calls.StartStreaming(ctx, callID, StreamingRequest{
		StreamURL:                h.streamURL(r),
		StreamTrack:              h.cfg.StreamTrack,
		StreamBidirectionalMode:  "rtp",
		StreamBidirectionalCodec: h.cfg.Codec,
	})
}

// streamURL prefers the configured public domain, then proxy headers, then Host.
func (h *WebhookHandler) streamURL(r *http.Request) string {
	host := h.cfg.PublicDomain
	if host == "" {
		host = r.Header.Get("X-Forwarded-Host")
	}
	if host == "" {
		host = r.Host
	}
	host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
	host = strings.TrimRight(host, "/")

	path := h.cfg.MediaPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "wss://" + host + path
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
