package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"voice-relay-service/internal/channel"
	"voice-relay-service/internal/models"
)

// timeline records cross-channel operations in the order they happened.
type timeline struct {
	mu  sync.Mutex
	ops []string
}

func (t *timeline) add(op string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops = append(t.ops, op)
}

func (t *timeline) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.ops...)
}

func (t *timeline) index(op string) int {
	for i, o := range t.snapshot() {
		if o == op {
			return i
		}
	}
	return -1
}

// fakeChannel is an in-memory channel.Channel driven by the test.
type fakeChannel struct {
	name string
	tl   *timeline

	in   chan []byte
	done chan struct{}

	mu              sync.Mutex
	sent            [][]byte
	closeCalls      int
	sendsAfterClose int
	closed          bool
	sendErr         error
}

func newFakeChannel(name string, tl *timeline) *fakeChannel {
	return &fakeChannel{
		name: name,
		tl:   tl,
		in:   make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

func (f *fakeChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-f.in:
		return msg, nil
	case <-f.done:
		return nil, channel.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeChannel) Send(ctx context.Context, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		f.sendsAfterClose++
		return channel.ErrClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	f.tl.add(fmt.Sprintf("%s:send:%s", f.name, messageKind(msg)))
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if !f.closed {
		f.closed = true
		close(f.done)
		f.tl.add(f.name + ":close")
	}
	return nil
}

// push delivers a message as if the peer sent it.
func (f *fakeChannel) push(t *testing.T, msg string) {
	t.Helper()
	select {
	case f.in <- []byte(msg):
	case <-time.After(time.Second):
		t.Fatalf("%s: push blocked", f.name)
	}
}

// peerClose simulates the remote side hanging up.
func (f *fakeChannel) peerClose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
}

func (f *fakeChannel) sentMessages() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.sent))
	for _, raw := range f.sent {
		var m map[string]any
		_ = json.Unmarshal(raw, &m)
		out = append(out, m)
	}
	return out
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeChannel) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

func (f *fakeChannel) lateSends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendsAfterClose
}

// messageKind returns the "type" or "event" field of a JSON message.
func messageKind(msg []byte) string {
	var head struct {
		Type  string `json:"type"`
		Event string `json:"event"`
	}
	_ = json.Unmarshal(msg, &head)
	if head.Type != "" {
		return head.Type
	}
	return head.Event
}

func kinds(msgs []map[string]any) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if t, ok := m["type"].(string); ok {
			out = append(out, t)
			continue
		}
		e, _ := m["event"].(string)
		out = append(out, e)
	}
	return out
}

// fakeDialer returns a prepared model channel or an error.
type fakeDialer struct {
	mu    sync.Mutex
	model *fakeChannel
	err   error
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context) (channel.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.model, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// fakeSink records published notices. Publishing an event of type stall
// first sleeps for stallFor; set both before serving.
type fakeSink struct {
	stall    string
	stallFor time.Duration

	mu          sync.Mutex
	calls       []models.CallEvent
	transcripts []models.TranscriptEvent
	order       []string
	err         error
}

func (s *fakeSink) PublishCallEvent(ctx context.Context, ev models.CallEvent) error {
	s.maybeStall(ev.EventType)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ev)
	s.order = append(s.order, ev.EventType)
	return s.err
}

func (s *fakeSink) PublishTranscript(ctx context.Context, ev models.TranscriptEvent) error {
	s.maybeStall(ev.EventType)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts = append(s.transcripts, ev)
	s.order = append(s.order, ev.EventType)
	return s.err
}

func (s *fakeSink) maybeStall(eventType string) {
	if s.stall != "" && eventType == s.stall {
		time.Sleep(s.stallFor)
	}
}

// published returns every notice type in arrival order.
func (s *fakeSink) published() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *fakeSink) callTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, ev := range s.calls {
		out = append(out, ev.EventType)
	}
	return out
}

func (s *fakeSink) transcriptEvents() []models.TranscriptEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TranscriptEvent(nil), s.transcripts...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

var errDialRefused = errors.New("dial refused")
