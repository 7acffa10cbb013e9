package relay

import (
	"context"
	"time"

	"voice-relay-service/internal/channel"
	"voice-relay-service/internal/models"
	"voice-relay-service/internal/observability/logging"
	"voice-relay-service/internal/realtime"
	"voice-relay-service/internal/telephony"
)

// inbound forwards caller audio to the model in arrival order.
func (s *Session) inbound(ctx context.Context) error {
	for {
		data, err := s.tel.receive(ctx)
		if err != nil {
			return exitError(ctx, err, errTelephonyClosed)
		}
		if err := s.handleTelephony(ctx, data); err != nil {
			return err
		}
	}
}

// handleTelephony acts on one telephony message. A non-nil error ends the pump.
func (s *Session) handleTelephony(ctx context.Context, data []byte) error {
	defer s.guard("inbound")

	ev, err := telephony.DecodeInbound(data)
	if err != nil {
		s.malformed("telephony", err)
		return nil
	}

	switch ev.Kind {
	case telephony.KindMedia:
		msg, err := realtime.AppendAudio(ev.Payload)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to encode caller audio")
			return nil
		}
		if err := s.model.send(ctx, msg); err != nil {
			return exitError(ctx, err, errModelClosed)
		}
		s.relay.metrics.RecordInboundFrame(len(ev.Payload))
	case telephony.KindStop:
		s.logger.Info().Msg("Telephony stream stopped")
		return errTelephonyStop
	case telephony.KindCallEnded:
		s.logger.Info().Msg("Call ended by telephony provider")
		return errCallEnded
	case telephony.KindStart:
		// The stream id is bound once; a repeated start does not rebind it.
		s.logger.Debug().Str("streamIdSeen", ev.StreamID).Msg("Ignoring repeated start event")
	default:
		s.logger.Debug().Str("event", ev.Name).Msg("Ignoring telephony event")
	}
	return nil
}

// outbound handles model events: audio to the caller, barge-in, transcripts
// and tool calls.
func (s *Session) outbound(ctx context.Context) error {
	for {
		data, err := s.model.receive(ctx)
		if err != nil {
			return exitError(ctx, err, errModelClosed)
		}
		if err := s.handleModel(ctx, data); err != nil {
			return err
		}
	}
}

// handleModel acts on one model message. A non-nil error ends the pump.
func (s *Session) handleModel(ctx context.Context, data []byte) error {
	defer s.guard("outbound")

	ev, err := realtime.DecodeServerEvent(data)
	if err != nil {
		s.malformed("model", err)
		return nil
	}

	switch e := ev.(type) {
	case *realtime.ErrorEvent:
		s.relay.metrics.RecordModelError(e.ErrType)
		s.logger.Warn().
			Str("errorType", e.ErrType).
			Str("code", e.Code).
			Str("param", e.Param).
			Str("message", e.Message).
			Msg("Model reported error")
	case *realtime.AudioDelta:
		return s.forwardAudio(ctx, e)
	case *realtime.SpeechStarted:
		s.bargeIn(ctx, e)
	case *realtime.ResponseCreated:
		s.logger.Info().Str("responseId", e.ResponseID).Msg("Model response started")
	case *realtime.AssistantTranscriptDone:
		s.transcript("assistant", models.EventTranscriptAssistant, e.ItemID, e.Transcript)
	case *realtime.UserTranscriptCompleted:
		s.transcript("user", models.EventTranscriptUser, e.ItemID, e.Transcript)
	case *realtime.FunctionCallArgumentsDone:
		s.dispatchTool(ctx, e)
	default:
		s.logger.Debug().Str("type", ev.EventType()).Msg("Ignoring model event")
	}
	return nil
}

func (s *Session) forwardAudio(ctx context.Context, e *realtime.AudioDelta) error {
	if s.streamID == "" {
		return nil
	}
	msg, err := telephony.EncodeMedia(s.streamID, e.Delta)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode model audio")
		return nil
	}
	if err := s.tel.send(ctx, msg); err != nil {
		return exitError(ctx, err, errTelephonyClosed)
	}
	s.relay.metrics.RecordOutboundFrame(len(e.Delta))
	return nil
}

// bargeIn flushes audio the caller has not heard yet, then stops the
// response producing it. Both are sent from the outbound pump so no later
// audio delta can slip in between.
func (s *Session) bargeIn(ctx context.Context, e *realtime.SpeechStarted) {
	s.logger.Info().Int("audioStartMs", e.AudioStartMs).Msg("Caller started speaking, interrupting response")

	if s.streamID != "" {
		if msg, err := telephony.EncodeClear(s.streamID); err == nil {
			if err := s.tel.send(ctx, msg); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to send clear to telephony")
			}
		}
	}
	if msg, err := realtime.ResponseCancel(); err == nil {
		if err := s.model.send(ctx, msg); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cancel model response")
		}
	}

	s.relay.metrics.RecordBargeIn()
	s.publishCall(s.callEvent(models.EventBargeIn))
}

func (s *Session) transcript(role, eventType, itemID, text string) {
	s.relay.metrics.RecordTranscript(role)
	s.logger.Info().Str("role", role).Str("text", text).Msg("Transcript")
	s.publishTranscript(models.TranscriptEvent{
		EventType: eventType,
		CallID:    s.callID,
		StreamID:  s.streamID,
		Timestamp: time.Now().UnixMilli(),
		Role:      role,
		ItemID:    itemID,
		Text:      text,
	})
}

// dispatchTool runs a requested tool off the pump so audio keeps flowing.
// Unknown tools get no reply.
func (s *Session) dispatchTool(ctx context.Context, e *realtime.FunctionCallArgumentsDone) {
	logger := logging.WithTool(s.logger, e.Name, e.CallID)

	tool, ok := s.relay.tools.Lookup(e.Name)
	if !ok {
		s.relay.metrics.RecordUnknownTool()
		logger.Warn().Msg("Model requested unknown tool")
		return
	}

	s.tools.Add(1)
	go func() {
		defer s.tools.Done()
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().Interface("panic", rec).Msg("Recovered panic in tool call")
			}
		}()

		callCtx, cancel := context.WithTimeout(ctx, s.relay.limits.ToolTimeout)
		defer cancel()

		started := time.Now()
		output, err := s.relay.tools.Execute(callCtx, tool, e.Arguments)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			logger.Warn().Err(err).Msg("Tool call failed, returning error to model")
		}
		latency := time.Since(started)
		s.relay.metrics.RecordToolCall(tool.Name, outcome, latency.Seconds())

		if ctx.Err() != nil {
			logger.Debug().Msg("Session ended before tool result could be delivered")
			return
		}

		item, err := realtime.FunctionCallOutput(e.CallID, output)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to encode tool result")
			return
		}
		next, err := realtime.ResponseCreate("")
		if err != nil {
			logger.Error().Err(err).Msg("Failed to encode response request")
			return
		}
		if err := s.model.sendBatch(ctx, item, next); err != nil {
			if !channel.IsClosed(err) {
				logger.Warn().Err(err).Msg("Failed to deliver tool result")
			}
			return
		}

		logger.Info().Dur("latency", latency).Str("outcome", outcome).Msg("Tool result delivered")
		ev := s.callEvent(models.EventToolInvoked)
		ev.ToolName = tool.Name
		ev.Outcome = outcome
		s.publishCall(ev)
	}()
}
