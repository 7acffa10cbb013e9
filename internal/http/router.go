package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"voice-relay-service/internal/channel"
	"voice-relay-service/internal/observability/logging"
	"voice-relay-service/internal/service/relay"
)

// SessionServer runs one call session per accepted media stream.
type SessionServer interface {
	Serve(ctx context.Context, tel channel.Channel) (relay.Result, error)
}

// Deps are the handlers the router exposes.
type Deps struct {
	Sessions  SessionServer
	Webhook   http.Handler
	Transport channel.Options
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	logger := logging.WithComponent("http")

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.Webhook != nil {
		r.Method(http.MethodPost, "/webhook", deps.Webhook)
	}
	if deps.Sessions != nil {
		r.Get("/media", mediaHandler(deps.Sessions, deps.Transport))
	}

	return r
}

// mediaHandler upgrades the request and serves the call on it until the
// session ends.
func mediaHandler(sessions SessionServer, opts channel.Options) http.HandlerFunc {
	logger := logging.WithComponent("media")

	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := channel.Upgrade(w, r, opts)
		if err != nil {
			// The upgrader has already replied with an HTTP error.
			logger.Warn().Err(err).Str("remoteAddr", r.RemoteAddr).Msg("Media stream upgrade failed")
			return
		}
		logger.Info().Str("remoteAddr", r.RemoteAddr).Msg("Media stream connected")

		res, err := sessions.Serve(r.Context(), ws)

		e := logger.Info()
		if err != nil {
			e = logger.Warn().Err(err)
		}
		e.Str("callId", res.CallID).
			Str("streamId", res.StreamID).
			Str("state", res.State.String()).
			Str("reason", res.Reason).
			Msg("Call session closed")
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Str("requestId", middleware.GetReqID(r.Context())).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
