package relay

import (
	"context"
	"sync"

	"voice-relay-service/internal/channel"
)

// peer is the session-owned handle on one channel. Sends are serialized and
// refused once close has begun; close reaches the channel exactly once.
type peer struct {
	name string
	ch   channel.Channel

	mu     sync.Mutex
	closed bool
}

func newPeer(name string, ch channel.Channel) *peer {
	return &peer{name: name, ch: ch}
}

func (p *peer) receive(ctx context.Context) ([]byte, error) {
	return p.ch.Receive(ctx)
}

func (p *peer) send(ctx context.Context, msg []byte) error {
	return p.sendBatch(ctx, msg)
}

// sendBatch writes msgs back-to-back with no other send interleaved.
func (p *peer) sendBatch(ctx context.Context, msgs ...[]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range msgs {
		if p.closed {
			return channel.ErrClosed
		}
		if err := p.ch.Send(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// close waits for an in-flight send, then closes the channel. Later calls are no-ops.
func (p *peer) close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.ch.Close()
}
