// Package channel defines the opaque bidirectional message channel the relay
// operates on, and its websocket implementation.
package channel

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send and Receive once the channel is closed,
// locally or by the peer.
var ErrClosed = errors.New("channel closed")

// Channel carries whole text messages in both directions.
//
// Receive must only be called from one goroutine at a time. Send and Close
// are safe for concurrent use. Close is idempotent.
type Channel interface {
	Receive(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// IsClosed reports whether err signals an orderly or abrupt channel close.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}
