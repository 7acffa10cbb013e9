package relay

import (
	"context"
	"strings"
	"testing"
	"time"

	"voice-relay-service/internal/realtime"
	"voice-relay-service/internal/realtime/mock"
	"voice-relay-service/internal/tools"
)

// TestServe_SimulatedConversation runs a whole order-status call against the
// in-memory model.
func TestServe_SimulatedConversation(t *testing.T) {
	reg, err := tools.NewRegistry(tools.NewOrderBook(tools.DefaultOrders()).CheckOrderStatusTool())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	dialer := mock.NewDialer(mock.Options{
		FramesPerUtterance: 2,
		ChunksPerReply:     3,
		Utterances: []mock.Utterance{
			{Transcript: "hello", Reply: "hi there"},
			{
				Transcript: "order 12345 please",
				ToolCall:   &mock.ToolCall{Name: tools.CheckOrderStatusName, Arguments: `{"order_id":"12345"}`},
				Reply:      "it shipped",
			},
		},
	})
	sink := &fakeSink{}
	r, err := New(Config{Dialer: dialer, Tools: reg, Sink: sink, Session: realtime.SessionConfig{Greeting: "greet"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tel := newFakeChannel("tel", &timeline{})
	done := make(chan outcome, 1)
	go func() {
		res, err := r.Serve(context.Background(), tel)
		done <- outcome{res, err}
	}()

	tel.push(t, startEvent)
	// Greeting: three deltas.
	waitFor(t, "greeting audio", func() bool { return tel.sentCount() == 3 })

	// First utterance interrupts, then the reply plays.
	tel.push(t, mediaEvent("AAAA"))
	tel.push(t, mediaEvent("AAAA"))
	waitFor(t, "first reply", func() bool { return tel.sentCount() == 7 })
	if got := kinds(tel.sentMessages()); got[3] != "clear" {
		t.Errorf("expected clear after caller speech, got %v", got)
	}

	// Second utterance triggers the order lookup before the reply.
	tel.push(t, mediaEvent("AAAA"))
	tel.push(t, mediaEvent("AAAA"))
	waitFor(t, "reply after tool", func() bool { return tel.sentCount() == 11 })

	sessions := dialer.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("expected one model session, got %d", len(sessions))
	}
	outputs := sessions[0].ToolOutputs()
	if len(outputs) != 1 || !strings.Contains(outputs[0], `"status":"shipped"`) {
		t.Errorf("unexpected tool outputs %v", outputs)
	}
	cmds := sessions[0].Commands()
	if cmds[0] != "session.update" || cmds[1] != "response.create" {
		t.Errorf("unexpected bootstrap commands %v", cmds)
	}

	tel.push(t, `{"event":"stop"}`)
	select {
	case o := <-done:
		if o.err != nil || o.res.Reason != "telephony_stop" {
			t.Errorf("unexpected outcome %+v %v", o.res, o.err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("session did not end")
	}

	waitFor(t, "transcripts", func() bool { return len(sink.transcriptEvents()) >= 5 })
}
