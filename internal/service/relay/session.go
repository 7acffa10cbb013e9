package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"voice-relay-service/internal/channel"
	"voice-relay-service/internal/models"
	"voice-relay-service/internal/observability/logging"
	"voice-relay-service/internal/telephony"
)

// Reasons a relaying session ended. They double as pump exit errors so the
// errgroup cancels the sibling pump.
var (
	errTelephonyStop   = errors.New("telephony_stop")
	errCallEnded       = errors.New("call_ended")
	errTelephonyClosed = errors.New("telephony_closed")
	errModelClosed     = errors.New("model_closed")
)

// Session is the state of one phone call.
type Session struct {
	relay     *Relay
	lifecycle *Lifecycle
	logger    zerolog.Logger

	tel   *peer
	model *peer // nil until the model is dialed

	callID    string
	streamID  string // bound once by the start event
	startedAt time.Time
	reason    string

	notices      *noticeQueue
	tools        sync.WaitGroup
	teardownOnce sync.Once
}

func newSession(r *Relay, tel channel.Channel) *Session {
	id := r.ids.Next()
	return &Session{
		relay:     r,
		lifecycle: NewLifecycle(),
		logger:    r.logger.With().Str("sessionId", id).Logger(),
		tel:       newPeer("telephony", tel),
		callID:    id,
		notices:   newNoticeQueue(r),
	}
}

func (s *Session) publishCall(ev models.CallEvent) {
	s.notices.push(notice{call: &ev})
}

func (s *Session) publishTranscript(ev models.TranscriptEvent) {
	s.notices.push(notice{transcript: &ev})
}

func (s *Session) result() Result {
	return Result{
		CallID:   s.callID,
		StreamID: s.streamID,
		State:    s.lifecycle.State(),
		Reason:   s.reason,
	}
}

func (s *Session) run(ctx context.Context) error {
	start, err := s.awaitStart(ctx)
	if err != nil {
		return s.fail(failureReason(err), err)
	}
	s.bind(start)

	model, err := s.relay.dialer.Dial(ctx)
	if err != nil {
		return s.fail("model_unavailable", fmt.Errorf("%w: %v", ErrModelUnavailable, err))
	}
	s.model = newPeer("model", model)

	if err := s.configure(ctx); err != nil {
		return s.fail("configure_failed", fmt.Errorf("%w: configure session: %v", ErrModelUnavailable, err))
	}

	if err := s.lifecycle.Activate(); err != nil {
		return s.fail("invalid_state", err)
	}
	s.startedAt = time.Now()
	s.relay.metrics.RecordSessionStart()
	s.publishCall(s.callEvent(models.EventSessionStarted))
	s.logger.Info().Msg("Call session relaying")

	s.pump(ctx)

	dur := time.Since(s.startedAt)
	s.relay.metrics.RecordSessionEnd(dur.Seconds())
	ev := s.callEvent(models.EventSessionEnded)
	ev.Reason = s.reason
	ev.DurationMs = dur.Milliseconds()
	s.publishCall(ev)
	s.logger.Info().
		Str("reason", s.reason).
		Dur("duration", dur).
		Msg("Call session ended")
	return nil
}

// awaitStart reads telephony events until the stream starts. Media before
// start has nowhere to go and is dropped.
func (s *Session) awaitStart(ctx context.Context) (telephony.InboundEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.relay.limits.StartTimeout)
	defer cancel()

	for {
		data, err := s.tel.receive(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return telephony.InboundEvent{}, ErrStartTimeout
			}
			return telephony.InboundEvent{}, fmt.Errorf("await start: %w", err)
		}

		ev, err := telephony.DecodeInbound(data)
		if err != nil {
			s.malformed("telephony", err)
			continue
		}
		switch {
		case ev.Kind == telephony.KindStart:
			return ev, nil
		case ev.Kind.Terminal():
			return telephony.InboundEvent{}, ErrCallEndedBeforeMedia
		default:
			s.logger.Debug().Str("event", ev.Name).Msg("Ignoring telephony event before start")
		}
	}
}

func (s *Session) bind(start telephony.InboundEvent) {
	s.streamID = start.StreamID
	if start.CallControlID != "" {
		s.callID = start.CallControlID
	}
	s.logger = logging.WithCall(s.callID, s.streamID)

	e := s.logger.Info()
	if f := start.Format; f != nil {
		e = e.Str("encoding", f.Encoding).Int("sampleRate", f.SampleRate)
	}
	e.Msg("Media stream started")
}

// configure sends the session settings, then asks the model to greet the caller.
func (s *Session) configure(ctx context.Context) error {
	if err := s.model.send(ctx, s.relay.sessionUpdate); err != nil {
		return fmt.Errorf("session.update: %w", err)
	}
	if err := s.model.send(ctx, s.relay.greetingCreate); err != nil {
		return fmt.Errorf("greeting: %w", err)
	}
	return nil
}

// fail tears a session down before or during setup.
func (s *Session) fail(reason string, err error) error {
	s.reason = reason
	s.teardown()
	s.relay.metrics.RecordSessionFailed(reason)

	ev := s.callEvent(models.EventSessionFailed)
	ev.Reason = reason
	s.publishCall(ev)

	e := s.logger.Warn()
	if errors.Is(err, ErrModelUnavailable) {
		e = s.logger.Error()
	}
	e.Err(err).Str("reason", reason).Msg("Call session aborted")
	return err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrCallEndedBeforeMedia):
		return "call_ended_before_media"
	case errors.Is(err, ErrStartTimeout):
		return "start_timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "telephony_closed"
	}
}

// pump runs both relay directions until either side ends, the call hits its
// duration cap, or ctx is cancelled. On return both channels are closed and
// every tool goroutine has finished or been abandoned.
func (s *Session) pump(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.relay.limits.MaxDuration)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.inbound(gctx) })
	g.Go(func() error { return s.outbound(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		s.teardown()
		return nil
	})

	s.reason = endReason(ctx, g.Wait())
	s.waitTools(s.relay.limits.ToolTimeout)
}

func endReason(ctx context.Context, err error) string {
	for _, known := range []error{errTelephonyStop, errCallEnded, errTelephonyClosed, errModelClosed} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "max_duration"
	}
	return "cancelled"
}

// teardown closes the model before telephony. Safe from any goroutine; only
// the first call acts.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		if s.model != nil {
			if err := s.model.close(); err != nil {
				s.logger.Debug().Err(err).Msg("Model channel close")
			}
		}
		if err := s.tel.close(); err != nil {
			s.logger.Debug().Err(err).Msg("Telephony channel close")
		}
		s.lifecycle.Close()
	})
}

// waitTools gives in-flight tool calls a grace period after the pumps stop.
func (s *Session) waitTools(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		s.tools.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		s.logger.Warn().Msg("Abandoning tool calls still running after teardown")
	}
}

// guard recovers a panic from handling a single event so the pump survives it.
func (s *Session) guard(direction string) {
	if rec := recover(); rec != nil {
		s.logger.Error().
			Str("direction", direction).
			Interface("panic", rec).
			Msg("Recovered panic while handling event")
	}
}

func (s *Session) malformed(channelName string, err error) {
	s.relay.metrics.RecordMalformedEvent(channelName)
	s.logger.Warn().Err(err).Str("channel", channelName).Msg("Skipping malformed event")
}

func (s *Session) callEvent(eventType string) models.CallEvent {
	return models.CallEvent{
		EventType: eventType,
		CallID:    s.callID,
		StreamID:  s.streamID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// exitError maps a channel failure to a pump exit error. A cancelled ctx
// takes precedence since the sibling or the caller already decided to stop.
func exitError(ctx context.Context, err error, closed error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", closed, err)
}
