// Package realtime speaks the realtime speech model protocol: session
// configuration, client commands, server event decoding and dialing.
package realtime

import "github.com/google/jsonschema-go/jsonschema"

// SessionConfig is the session.update payload plus the greeting directive
// sent right after it. Built once at startup; sessions only read it.
type SessionConfig struct {
	Modalities              []string             `json:"modalities,omitempty"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection       `json:"turn_detection,omitempty"`
	Tools                   []ToolDefinition     `json:"tools,omitempty"`
	ToolChoice              string               `json:"tool_choice,omitempty"`

	// Greeting is sent as response.create instructions once the session is configured.
	Greeting string `json:"-"`
}

// TranscriptionConfig enables caller speech transcription.
type TranscriptionConfig struct {
	Model string `json:"model"`
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response"`
}

// ToolDefinition declares a callable function to the model.
type ToolDefinition struct {
	Type        string        `json:"type"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}
