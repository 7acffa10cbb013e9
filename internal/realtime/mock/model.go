// Package mock provides an in-memory realtime model for running the relay
// without model credentials. It answers the same commands the real service
// does with scripted responses, synthetic audio, transcripts and tool calls.
package mock

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"voice-relay-service/internal/channel"
	"voice-relay-service/internal/realtime"
)

// ToolCall is a function call the simulated model asks for.
type ToolCall struct {
	Name      string
	Arguments string
}

// Utterance is one simulated caller turn and the model's answer to it.
type Utterance struct {
	Transcript string    // what the caller "said"
	ToolCall   *ToolCall // requested before replying, if set
	Reply      string    // spoken answer
}

// DefaultUtterances provides a sample order-status conversation.
var DefaultUtterances = []Utterance{
	{
		Transcript: "Hi, I'd like to check on an order",
		Reply:      "Sure, what's the order number?",
	},
	{
		Transcript: "It's order one two three four five",
		ToolCall:   &ToolCall{Name: "check_order_status", Arguments: `{"order_id":"12345"}`},
		Reply:      "Your order has shipped and should arrive on October twenty second.",
	},
	{
		Transcript: "Great, thank you very much",
		Reply:      "You're welcome, have a great day.",
	},
}

// GreetingReply is spoken for a response.create that carries instructions.
const GreetingReply = "Hello, thanks for calling. How can I help you today?"

// Options tunes the simulation.
type Options struct {
	Utterances         []Utterance
	FramesPerUtterance int // caller audio frames before an utterance is "heard"
	ChunksPerReply     int // audio deltas per spoken reply
}

// DefaultOptions returns the options used by the mock provider.
func DefaultOptions() Options {
	return Options{
		Utterances:         DefaultUtterances,
		FramesPerUtterance: 50, // one second of 20ms frames
		ChunksPerReply:     5,
	}
}

// G.711 silence bytes.
const (
	silenceULaw = 0xFF
	silenceALaw = 0xD5
)

// silenceFor returns 20ms of silence in the given model audio format.
// Anything but g711_alaw gets mu-law.
func silenceFor(format string) string {
	b := byte(silenceULaw)
	if format == "g711_alaw" {
		b = silenceALaw
	}
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{b}, 160))
}

// Model is a simulated model session. It implements channel.Channel.
type Model struct {
	opts Options

	mu         sync.Mutex
	queue      [][]byte
	notify     chan struct{}
	done       chan struct{}
	closed     bool
	commands   []string
	toolOutput []string
	configured bool
	silence    string // set from the session's output format

	frames      int
	utterance   int
	pendingTool *Utterance
	nextID      int
}

// New creates a simulated model session.
func New(opts Options) *Model {
	d := DefaultOptions()
	if len(opts.Utterances) == 0 {
		opts.Utterances = d.Utterances
	}
	if opts.FramesPerUtterance <= 0 {
		opts.FramesPerUtterance = d.FramesPerUtterance
	}
	if opts.ChunksPerReply <= 0 {
		opts.ChunksPerReply = d.ChunksPerReply
	}
	return &Model{
		opts:    opts,
		silence: silenceFor(""),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Receive returns the next simulated server event.
func (m *Model) Receive(ctx context.Context) ([]byte, error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			msg := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return msg, nil
		}
		m.mu.Unlock()

		select {
		case <-m.notify:
		case <-m.done:
			return nil, channel.ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Send accepts one client command and queues the simulated reaction.
func (m *Model) Send(ctx context.Context, msg []byte) error {
	var cmd struct {
		Type     string `json:"type"`
		Response *struct {
			Instructions string `json:"instructions"`
		} `json:"response"`
		Item *struct {
			Type   string `json:"type"`
			CallID string `json:"call_id"`
			Output string `json:"output"`
		} `json:"item"`
		Session *struct {
			OutputAudioFormat string `json:"output_audio_format"`
		} `json:"session"`
	}
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return fmt.Errorf("mock model: invalid command: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return channel.ErrClosed
	}
	m.commands = append(m.commands, cmd.Type)

	switch cmd.Type {
	case "session.update":
		m.configured = true
		if cmd.Session != nil {
			m.silence = silenceFor(cmd.Session.OutputAudioFormat)
		}
		m.emit(map[string]any{"type": "session.updated"})
	case "response.create":
		switch {
		case cmd.Response != nil && cmd.Response.Instructions != "":
			m.reply(GreetingReply)
		case m.pendingTool != nil:
			u := m.pendingTool
			m.pendingTool = nil
			m.reply(u.Reply)
		}
	case "input_audio_buffer.append":
		m.frames++
		if m.frames%m.opts.FramesPerUtterance == 0 {
			m.hear()
		}
	case "conversation.item.create":
		if cmd.Item != nil && cmd.Item.Type == "function_call_output" {
			m.toolOutput = append(m.toolOutput, cmd.Item.Output)
		}
	case "response.cancel":
		m.emit(map[string]any{"type": "response.done", "response": map[string]any{"status": "cancelled"}})
	}
	return nil
}

// Close ends the session. Safe to call more than once.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// Commands returns the command types received so far.
func (m *Model) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// ToolOutputs returns the function call outputs received so far.
func (m *Model) ToolOutputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.toolOutput...)
}

// Configured reports whether a session.update was received.
func (m *Model) Configured() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configured
}

// hear simulates the end of a caller utterance. Caller speech interrupts
// whatever the model is saying. Must hold mu.
func (m *Model) hear() {
	if m.utterance >= len(m.opts.Utterances) {
		return
	}
	u := m.opts.Utterances[m.utterance]
	m.utterance++

	item := m.id("item")
	m.emit(map[string]any{
		"type":           realtime.TypeSpeechStarted,
		"item_id":        item,
		"audio_start_ms": m.frames * 20,
	})
	m.emit(map[string]any{
		"type":       realtime.TypeInputTranscriptionDone,
		"item_id":    item,
		"transcript": u.Transcript,
	})

	if u.ToolCall == nil {
		m.reply(u.Reply)
		return
	}
	resp := m.id("resp")
	m.emit(map[string]any{"type": realtime.TypeResponseCreated, "response": map[string]any{"id": resp}})
	m.emit(map[string]any{
		"type":        realtime.TypeFunctionCallArgsDone,
		"response_id": resp,
		"item_id":     m.id("item"),
		"call_id":     m.id("call"),
		"name":        u.ToolCall.Name,
		"arguments":   u.ToolCall.Arguments,
	})
	m.pendingTool = &u
}

// reply queues a full spoken response. Must hold mu.
func (m *Model) reply(text string) {
	resp := m.id("resp")
	item := m.id("item")
	m.emit(map[string]any{"type": realtime.TypeResponseCreated, "response": map[string]any{"id": resp}})
	for i := 0; i < m.opts.ChunksPerReply; i++ {
		m.emit(map[string]any{
			"type":        realtime.TypeAudioDelta,
			"response_id": resp,
			"item_id":     item,
			"delta":       m.silence,
		})
	}
	m.emit(map[string]any{
		"type":        realtime.TypeAudioTranscriptDone,
		"response_id": resp,
		"item_id":     item,
		"transcript":  text,
	})
}

// emit queues one server event and wakes a waiting receiver. Must hold mu.
func (m *Model) emit(ev map[string]any) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	m.queue = append(m.queue, data)
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Model) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s_mock_%d", prefix, m.nextID)
}

// Dialer hands out simulated model sessions. It implements realtime.Dialer.
type Dialer struct {
	Options Options

	mu     sync.Mutex
	models []*Model
}

// NewDialer creates a dialer with the given simulation options.
func NewDialer(opts Options) *Dialer {
	return &Dialer{Options: opts}
}

// Dial starts a new simulated session.
func (d *Dialer) Dial(ctx context.Context) (channel.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := New(d.Options)
	d.mu.Lock()
	d.models = append(d.models, m)
	d.mu.Unlock()
	return m, nil
}

// Sessions returns every session dialed so far.
func (d *Dialer) Sessions() []*Model {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Model(nil), d.models...)
}
