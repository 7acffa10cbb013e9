// Package agent defines the voice agent persona and turns it into the
// realtime session configuration every call starts with.
package agent

import (
	"voice-relay-service/internal/realtime"
)

const (
	defaultVoice              = "alloy"
	defaultAudioFormat        = "g711_ulaw"
	defaultTranscriptionModel = "whisper-1"
)

// Instructions is the system prompt.
const Instructions = "You are the automated AI agent assigned to introduce Roy Shaked. " +
	"Your tone is professional, operational, and concise. You sound like a high-tech system interface.\n\n" +
	"Here is the profile you need to know deeply:\n" +
	"1. **Operational Background**: Roy combines military-grade operational discipline with modern software engineering.\n" +
	"2. **Experience**: Former Air Force Intelligence. He built Python automation for satellite systems to handle real-time signal anomalies.\n" +
	"3. **Tech Stack**: Python (FastAPI), C & Assembly (Low-level logic), Flutter (Mobile).\n" +
	"4. **Education**: 2nd-year CS student at Open University (96 in Data Structures).\n" +
	"5. **Current Project**: Deploying Realtime AI Voice Agents using OpenAI and Telnyx (The system running right now).\n\n" +
	"INSTRUCTIONS:\n" +
	"- Speak ENGLISH only.\n" +
	"- Keep answers short and direct.\n" +
	"- If asked about Roy, use the facts above to answer.\n" +
	"- If the caller asks about an order, use the check_order_status tool.\n" +
	"- Start the conversation with the specific greeting below."

// Greeting is the first thing the agent says after answering.
const Greeting = "Say 'Hello. I am the automated agent assigned to introduce Roy. How can I help?'"

// Options are the per-deployment knobs of the session.
type Options struct {
	Voice       string
	AudioFormat string // g711_ulaw or g711_alaw, must match the telephony codec
	Tools       []realtime.ToolDefinition
}

// SessionConfig builds the immutable session configuration.
func SessionConfig(opts Options) realtime.SessionConfig {
	voice := opts.Voice
	if voice == "" {
		voice = defaultVoice
	}
	format := opts.AudioFormat
	if format == "" {
		format = defaultAudioFormat
	}

	tools := make([]realtime.ToolDefinition, len(opts.Tools))
	copy(tools, opts.Tools)

	cfg := realtime.SessionConfig{
		Modalities:              []string{"text", "audio"},
		Instructions:            Instructions,
		Voice:                   voice,
		InputAudioFormat:        format,
		OutputAudioFormat:       format,
		InputAudioTranscription: &realtime.TranscriptionConfig{Model: defaultTranscriptionModel},
		TurnDetection: &realtime.TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 350,
			CreateResponse:    true,
		},
		Tools:    tools,
		Greeting: Greeting,
	}
	if len(tools) > 0 {
		cfg.ToolChoice = "auto"
	}
	return cfg
}
