package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// echoServer upgrades every request and echoes text messages back until the peer goes away.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := Upgrade(w, r, Options{})
		if err != nil {
			return
		}
		defer ws.Close()
		ctx := context.Background()
		for {
			msg, err := ws.Receive(ctx)
			if err != nil {
				return
			}
			if string(msg) == "bye" {
				return
			}
			if err := ws.Send(ctx, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebSocket_SendReceive(t *testing.T) {
	srv := echoServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, err := Dial(ctx, wsURL(srv), nil, Options{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	for _, want := range []string{`{"event":"media"}`, `{"event":"stop"}`} {
		if err := ws.Send(ctx, []byte(want)); err != nil {
			t.Fatalf("send: %v", err)
		}
		got, err := ws.Receive(ctx)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if string(got) != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}
}

func TestWebSocket_PeerCloseReportsClosed(t *testing.T) {
	srv := echoServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, err := Dial(ctx, wsURL(srv), nil, Options{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	if err := ws.Send(ctx, []byte("bye")); err != nil {
		t.Fatalf("send: %v", err)
	}
	_, err = ws.Receive(ctx)
	if !IsClosed(err) {
		t.Errorf("expected ErrClosed after peer close, got %v", err)
	}
}

func TestWebSocket_CloseIdempotent(t *testing.T) {
	srv := echoServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, err := Dial(ctx, wsURL(srv), nil, Options{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	first := ws.Close()
	for i := 0; i < 3; i++ {
		if err := ws.Close(); err != first {
			t.Errorf("close %d: expected same result %v, got %v", i, first, err)
		}
	}

	if err := ws.Send(ctx, []byte("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on send after close, got %v", err)
	}
	if _, err := ws.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on receive after close, got %v", err)
	}
}

func TestWebSocket_ReceiveHonoursContext(t *testing.T) {
	srv := echoServer(t)
	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, err := Dial(dialCtx, wsURL(srv), nil, Options{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	ctx, cancelRecv := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelRecv()

	start := time.Now()
	_, err = ws.Receive(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("receive did not return promptly after context deadline")
	}
}

func TestDial_ForwardsHeaders(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("Authorization")
		ws, err := Upgrade(w, r, Options{})
		if err != nil {
			return
		}
		ws.Close()
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer secret")
	ws, err := Dial(context.Background(), wsURL(srv), header, Options{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	if auth := <-got; auth != "Bearer secret" {
		t.Errorf("expected bearer header, got %q", auth)
	}
}

func TestDial_RejectedHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), wsURL(srv), nil, Options{})
	if err == nil {
		t.Fatal("expected dial error")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("expected status in error, got %v", err)
	}
}
