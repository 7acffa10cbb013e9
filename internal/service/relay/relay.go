// Package relay bridges a telephony media stream and a realtime speech model
// for the lifetime of one phone call.
//
// A Relay owns the shared, immutable pieces (model dialer, session
// configuration, tool registry, notice sink) and runs one Session per
// telephony connection handed to Serve.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"voice-relay-service/internal/channel"
	"voice-relay-service/internal/models"
	"voice-relay-service/internal/observability/logging"
	"voice-relay-service/internal/observability/metrics"
	"voice-relay-service/internal/realtime"
	"voice-relay-service/internal/tools"
)

// Session-level faults returned by Serve.
var (
	ErrCallEndedBeforeMedia = errors.New("call ended before media started")
	ErrStartTimeout         = errors.New("timed out waiting for stream start")
	ErrModelUnavailable     = errors.New("speech model unavailable")
	ErrShuttingDown         = errors.New("relay is shutting down")
)

// EventSink receives call notices. *events.Publisher satisfies it.
type EventSink interface {
	PublishCallEvent(ctx context.Context, event models.CallEvent) error
	PublishTranscript(ctx context.Context, event models.TranscriptEvent) error
}

// Config wires a Relay.
type Config struct {
	Dialer  realtime.Dialer
	Session realtime.SessionConfig
	Tools   *tools.Registry
	Sink    EventSink        // optional
	Metrics *metrics.Metrics // defaults to metrics.DefaultMetrics
	Limits  Limits
}

// Result summarizes a finished session for the caller of Serve.
type Result struct {
	CallID   string
	StreamID string
	State    State
	Reason   string
}

// Relay runs call sessions.
type Relay struct {
	dialer  realtime.Dialer
	tools   *tools.Registry
	sink    EventSink
	metrics *metrics.Metrics
	limits  Limits
	ids     *IDGenerator
	logger  zerolog.Logger

	// Encoded once; every session sends the same bytes.
	sessionUpdate  []byte
	greetingCreate []byte

	baseCtx  context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	draining bool
	sessions sync.WaitGroup
	notices  sync.WaitGroup
	active   atomic.Int64
}

// New validates cfg and builds a Relay.
func New(cfg Config) (*Relay, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("relay: dialer is required")
	}
	if cfg.Tools == nil {
		reg, err := tools.NewRegistry()
		if err != nil {
			return nil, err
		}
		cfg.Tools = reg
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultMetrics
	}

	update, err := realtime.SessionUpdate(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("relay: encode session config: %w", err)
	}
	greeting, err := realtime.ResponseCreate(cfg.Session.Greeting)
	if err != nil {
		return nil, fmt.Errorf("relay: encode greeting: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		dialer:         cfg.Dialer,
		tools:          cfg.Tools,
		sink:           cfg.Sink,
		metrics:        cfg.Metrics,
		limits:         cfg.Limits.withDefaults(),
		ids:            NewIDGenerator("sess"),
		logger:         logging.WithComponent("relay"),
		sessionUpdate:  update,
		greetingCreate: greeting,
		baseCtx:        ctx,
		cancel:         cancel,
	}, nil
}

// Serve runs one call session over tel and blocks until it ends. tel is
// always closed on return. The error is nil for a session that relayed and
// ended normally.
func (r *Relay) Serve(ctx context.Context, tel channel.Channel) (Result, error) {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		_ = tel.Close()
		return Result{State: StateAborted, Reason: "shutdown"}, ErrShuttingDown
	}
	r.sessions.Add(1)
	r.mu.Unlock()
	defer r.sessions.Done()

	r.active.Add(1)
	defer r.active.Add(-1)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.baseCtx, cancel)
	defer stop()

	s := newSession(r, tel)
	defer s.notices.close()
	err := s.run(ctx)
	return s.result(), err
}

// ActiveSessions returns the number of sessions currently being served.
func (r *Relay) ActiveSessions() int64 {
	return r.active.Load()
}

// Shutdown stops accepting sessions, cancels the running ones and waits for
// them and their pending notices to finish, or for ctx to expire.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.sessions.Wait()
		r.notices.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("relay shutdown: %w", ctx.Err())
	}
}

// deliver publishes one notice, bounded by PublishTimeout.
func (r *Relay) deliver(n notice) {
	ctx, cancel := context.WithTimeout(context.Background(), r.limits.PublishTimeout)
	defer cancel()

	var err error
	if n.call != nil {
		err = r.sink.PublishCallEvent(ctx, *n.call)
	} else {
		err = r.sink.PublishTranscript(ctx, *n.transcript)
	}
	if err != nil {
		r.logger.Warn().Err(err).
			Str("callId", n.callID()).
			Str("eventType", n.eventType()).
			Msg("Failed to publish notice")
	}
}
