package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voice-relay-service/internal/channel"
	"voice-relay-service/internal/service/relay"
)

// echoSessions replies to the first message and ends the session.
type echoSessions struct {
	served chan relay.Result
}

func (e *echoSessions) Serve(ctx context.Context, tel channel.Channel) (relay.Result, error) {
	defer tel.Close()
	msg, err := tel.Receive(ctx)
	if err != nil {
		return relay.Result{}, err
	}
	if err := tel.Send(ctx, msg); err != nil {
		return relay.Result{}, err
	}
	res := relay.Result{CallID: "cc-1", StreamID: "s1", State: relay.StateClosed, Reason: "telephony_stop"}
	e.served <- res
	return res, nil
}

func TestRouter_Health(t *testing.T) {
	srv := httptest.NewServer(NewRouter(Deps{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if string(body) != `{"status":"ok"}` {
		t.Errorf("unexpected body %s", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestRouter_Webhook(t *testing.T) {
	var called atomic.Bool
	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := httptest.NewServer(NewRouter(Deps{Webhook: webhook}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST /webhook: %v", err)
	}
	resp.Body.Close()
	if !called.Load() || resp.StatusCode != http.StatusOK {
		t.Errorf("webhook not routed: called=%v status=%d", called.Load(), resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/webhook")
	if err != nil {
		t.Fatalf("GET /webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", resp.StatusCode)
	}
}

func TestRouter_MediaServesSession(t *testing.T) {
	sessions := &echoSessions{served: make(chan relay.Result, 1)}
	srv := httptest.NewServer(NewRouter(Deps{Sessions: sessions}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/media"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial /media: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"start","stream_id":"s1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != `{"event":"start","stream_id":"s1"}` {
		t.Errorf("unexpected echo %s", msg)
	}

	select {
	case res := <-sessions.served:
		if res.CallID != "cc-1" {
			t.Errorf("unexpected result %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session was not served")
	}
}

func TestRouter_MediaRejectsPlainHTTP(t *testing.T) {
	sessions := &echoSessions{served: make(chan relay.Result, 1)}
	srv := httptest.NewServer(NewRouter(Deps{Sessions: sessions}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/media")
	if err != nil {
		t.Fatalf("GET /media: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for non-websocket request, got %d", resp.StatusCode)
	}
}
