package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEvent marks a model message that could not be decoded.
var ErrMalformedEvent = errors.New("malformed model event")

// Server event type names the relay acts on.
const (
	TypeError                  = "error"
	TypeAudioDelta             = "response.audio.delta"
	TypeSpeechStarted          = "input_audio_buffer.speech_started"
	TypeResponseCreated        = "response.created"
	TypeAudioTranscriptDone    = "response.audio_transcript.done"
	TypeInputTranscriptionDone = "conversation.item.input_audio_transcription.completed"
	TypeFunctionCallArgsDone   = "response.function_call_arguments.done"
)

// ServerEvent is one decoded model message. The concrete type is one of
// *ErrorEvent, *AudioDelta, *SpeechStarted, *ResponseCreated,
// *AssistantTranscriptDone, *UserTranscriptCompleted,
// *FunctionCallArgumentsDone or *Unhandled.
type ServerEvent interface {
	EventType() string
}

// ErrorEvent is a fault reported by the model service.
type ErrorEvent struct {
	ErrType string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
	EventID string `json:"event_id"`
}

// AudioDelta is a chunk of synthesized response audio.
type AudioDelta struct {
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
}

// SpeechStarted signals the caller began speaking.
type SpeechStarted struct {
	ItemID       string `json:"item_id"`
	AudioStartMs int    `json:"audio_start_ms"`
}

// ResponseCreated signals the model started a new response.
type ResponseCreated struct {
	ResponseID string
}

// AssistantTranscriptDone carries the text of a spoken response.
type AssistantTranscriptDone struct {
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

// UserTranscriptCompleted carries the recognised caller utterance.
type UserTranscriptCompleted struct {
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

// FunctionCallArgumentsDone asks the relay to run a tool.
type FunctionCallArgumentsDone struct {
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	CallID     string `json:"call_id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
}

// Unhandled is any event kind the relay ignores.
type Unhandled struct {
	Type string
}

func (*ErrorEvent) EventType() string                { return TypeError }
func (*AudioDelta) EventType() string                { return TypeAudioDelta }
func (*SpeechStarted) EventType() string             { return TypeSpeechStarted }
func (*ResponseCreated) EventType() string           { return TypeResponseCreated }
func (*AssistantTranscriptDone) EventType() string   { return TypeAudioTranscriptDone }
func (*UserTranscriptCompleted) EventType() string   { return TypeInputTranscriptionDone }
func (*FunctionCallArgumentsDone) EventType() string { return TypeFunctionCallArgsDone }
func (e *Unhandled) EventType() string               { return e.Type }

// DecodeServerEvent parses one model message into its variant.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	switch head.Type {
	case TypeError:
		var w struct {
			Error *ErrorEvent `json:"error"`
		}
		if err := decodeInto(data, &w); err != nil {
			return nil, err
		}
		if w.Error == nil {
			return &ErrorEvent{}, nil
		}
		return w.Error, nil

	case TypeAudioDelta:
		var w struct {
			AudioDelta
			Delta *string `json:"delta"`
		}
		if err := decodeInto(data, &w); err != nil {
			return nil, err
		}
		if w.Delta == nil {
			return nil, fmt.Errorf("%w: %s without delta", ErrMalformedEvent, head.Type)
		}
		ev := w.AudioDelta
		ev.Delta = *w.Delta
		return &ev, nil

	case TypeSpeechStarted:
		var ev SpeechStarted
		if err := decodeInto(data, &ev); err != nil {
			return nil, err
		}
		return &ev, nil

	case TypeResponseCreated:
		var w struct {
			Response struct {
				ID string `json:"id"`
			} `json:"response"`
		}
		if err := decodeInto(data, &w); err != nil {
			return nil, err
		}
		return &ResponseCreated{ResponseID: w.Response.ID}, nil

	case TypeAudioTranscriptDone:
		var ev AssistantTranscriptDone
		if err := decodeInto(data, &ev); err != nil {
			return nil, err
		}
		return &ev, nil

	case TypeInputTranscriptionDone:
		var ev UserTranscriptCompleted
		if err := decodeInto(data, &ev); err != nil {
			return nil, err
		}
		return &ev, nil

	case TypeFunctionCallArgsDone:
		var ev FunctionCallArgumentsDone
		if err := decodeInto(data, &ev); err != nil {
			return nil, err
		}
		if ev.CallID == "" || ev.Name == "" {
			return nil, fmt.Errorf("%w: %s without call_id or name", ErrMalformedEvent, head.Type)
		}
		return &ev, nil

	default:
		return &Unhandled{Type: head.Type}, nil
	}
}

func decodeInto(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}
