package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWriteTimeout     = 5 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	closeGracePeriod        = time.Second
)

// Options tunes a websocket channel.
type Options struct {
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

// WebSocket adapts a gorilla websocket connection to Channel.
type WebSocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocket wraps an established connection.
func NewWebSocket(conn *websocket.Conn, opts Options) *WebSocket {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(opts.MaxMessageBytes)
	}
	return &WebSocket{conn: conn, writeTimeout: opts.WriteTimeout}
}

// Upgrade accepts a websocket handshake on an inbound HTTP request.
func Upgrade(w http.ResponseWriter, r *http.Request, opts Options) (*WebSocket, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// Media streams are opened by the telephony provider, not by browsers.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return NewWebSocket(conn, opts), nil
}

// Dial opens an outbound websocket connection.
func Dial(ctx context.Context, url string, header http.Header, opts Options) (*WebSocket, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: defaultHandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return NewWebSocket(conn, opts), nil
}

// Receive blocks until the next data message arrives. A cancelled ctx aborts
// the read and leaves the connection unusable for further reads.
func (w *WebSocket) Receive(ctx context.Context) ([]byte, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = w.conn.SetReadDeadline(time.Now())
		close(interrupted)
	})

	_, data, err := w.conn.ReadMessage()
	if !stop() && err == nil {
		// The read won the race against cancellation; clear the deadline it left behind.
		<-interrupted
		_ = w.conn.SetReadDeadline(time.Time{})
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if w.closed.Load() || isCloseError(err) {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return nil, err
	}
	return data, nil
}

// Send writes one text message.
func (w *WebSocket) Send(ctx context.Context, msg []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if w.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(w.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		if isCloseError(err) {
			return fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return err
	}
	return nil
}

// Close sends a normal close frame and releases the connection. Safe to call
// more than once.
func (w *WebSocket) Close() error {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}

func isCloseError(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed)
}
