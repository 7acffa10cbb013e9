// Package models defines the call notices published for downstream consumers.
package models

// Call event types.
const (
	EventSessionStarted = "call.session.started"
	EventSessionEnded   = "call.session.ended"
	EventSessionFailed  = "call.session.failed"
	EventBargeIn        = "call.barge_in"
	EventToolInvoked    = "call.tool.invoked"
)

// Transcript event types.
const (
	EventTranscriptUser      = "call.transcript.user"
	EventTranscriptAssistant = "call.transcript.assistant"
)

// CallEvent is a lifecycle notice for one call session.
type CallEvent struct {
	EventType  string `json:"eventType"`
	CallID     string `json:"callId"`
	StreamID   string `json:"streamId,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Reason     string `json:"reason,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
}

// TranscriptEvent is one completed utterance, from the caller or the agent.
type TranscriptEvent struct {
	EventType string `json:"eventType"`
	CallID    string `json:"callId"`
	StreamID  string `json:"streamId,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Role      string `json:"role"`
	ItemID    string `json:"itemId,omitempty"`
	Text      string `json:"text"`
}
