// Package telephony implements the call-control side of the relay: the media
// stream wire protocol, the REST call-control client and the webhook receiver.
package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEvent marks a media stream message that could not be decoded.
var ErrMalformedEvent = errors.New("malformed telephony event")

// Kind identifies an inbound media stream event.
type Kind string

const (
	KindStart     Kind = "start"
	KindMedia     Kind = "media"
	KindStop      Kind = "stop"
	KindCallEnded Kind = "callEnded"
	// KindUnknown covers connected, mark, dtmf and anything newer.
	KindUnknown Kind = "unknown"
)

// Terminal reports whether the event ends the media stream.
func (k Kind) Terminal() bool {
	return k == KindStop || k == KindCallEnded
}

// MediaFormat describes the negotiated stream encoding announced on start.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// InboundEvent is a decoded media stream message.
type InboundEvent struct {
	Kind          Kind
	Name          string // raw event name, kept for unknown kinds
	StreamID      string
	CallControlID string
	Format        *MediaFormat
	Payload       string // base64 audio, media only
	Track         string
}

type inboundWire struct {
	Event         string `json:"event"`
	StreamID      string `json:"stream_id"`
	CallControlID string `json:"call_control_id"`
	Start         *struct {
		StreamID      string       `json:"stream_id"`
		CallControlID string       `json:"call_control_id"`
		MediaFormat   *MediaFormat `json:"media_format"`
	} `json:"start"`
	Media *struct {
		Payload *string `json:"payload"`
		Track   string  `json:"track"`
	} `json:"media"`
}

// DecodeInbound parses one media stream message. Unrecognised event names
// decode to KindUnknown; structurally broken messages return ErrMalformedEvent.
func DecodeInbound(data []byte) (InboundEvent, error) {
	var w inboundWire
	if err := json.Unmarshal(data, &w); err != nil {
		return InboundEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if w.Event == "" {
		return InboundEvent{}, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
	}

	ev := InboundEvent{Name: w.Event, StreamID: w.StreamID, CallControlID: w.CallControlID}

	switch Kind(w.Event) {
	case KindStart:
		ev.Kind = KindStart
		if w.Start != nil {
			if ev.StreamID == "" {
				ev.StreamID = w.Start.StreamID
			}
			if w.Start.CallControlID != "" {
				ev.CallControlID = w.Start.CallControlID
			}
			ev.Format = w.Start.MediaFormat
		}
		if ev.StreamID == "" {
			return InboundEvent{}, fmt.Errorf("%w: start without stream_id", ErrMalformedEvent)
		}
	case KindMedia:
		ev.Kind = KindMedia
		if w.Media == nil || w.Media.Payload == nil {
			return InboundEvent{}, fmt.Errorf("%w: media without payload", ErrMalformedEvent)
		}
		ev.Payload = *w.Media.Payload
		ev.Track = w.Media.Track
	case KindStop:
		ev.Kind = KindStop
	case KindCallEnded:
		ev.Kind = KindCallEnded
	default:
		ev.Kind = KindUnknown
	}
	return ev, nil
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type outboundMedia struct {
	Event    string       `json:"event"`
	StreamID string       `json:"stream_id"`
	Media    mediaPayload `json:"media"`
}

type outboundClear struct {
	Event    string `json:"event"`
	StreamID string `json:"stream_id"`
}

// EncodeMedia builds a playback message for the given stream.
func EncodeMedia(streamID, payload string) ([]byte, error) {
	return json.Marshal(outboundMedia{
		Event:    "media",
		StreamID: streamID,
		Media:    mediaPayload{Payload: payload},
	})
}

// EncodeClear builds a message that flushes buffered playback on the stream.
func EncodeClear(streamID string) ([]byte, error) {
	return json.Marshal(outboundClear{Event: "clear", StreamID: streamID})
}
