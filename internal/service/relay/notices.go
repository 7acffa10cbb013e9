package relay

import (
	"sync"

	"voice-relay-service/internal/models"
)

// noticeBuffer bounds how many notices one session may have waiting on a
// slow sink before new ones are dropped.
const noticeBuffer = 256

// notice is one queued call or transcript notice. Exactly one field is set.
type notice struct {
	call       *models.CallEvent
	transcript *models.TranscriptEvent
}

func (n notice) eventType() string {
	if n.call != nil {
		return n.call.EventType
	}
	return n.transcript.EventType
}

func (n notice) callID() string {
	if n.call != nil {
		return n.call.CallID
	}
	return n.transcript.CallID
}

// noticeQueue delivers one session's notices to the sink in the order they
// were pushed, from a single goroutine, so pumps never wait on the broker.
type noticeQueue struct {
	relay *Relay
	ch    chan notice

	mu     sync.Mutex
	closed bool
}

func newNoticeQueue(r *Relay) *noticeQueue {
	q := &noticeQueue{relay: r, ch: make(chan notice, noticeBuffer)}
	if r.sink == nil {
		q.closed = true
		return q
	}
	r.notices.Add(1)
	go q.drain()
	return q
}

// push queues n. Notices pushed after close, or while the buffer is full,
// are dropped.
func (q *noticeQueue) push(n notice) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- n:
	default:
		q.relay.logger.Warn().
			Str("callId", n.callID()).
			Str("eventType", n.eventType()).
			Msg("Notice queue full, dropping notice")
	}
}

// close stops accepting notices. Queued ones are still delivered.
func (q *noticeQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

func (q *noticeQueue) drain() {
	defer q.relay.notices.Done()
	for n := range q.ch {
		q.relay.deliver(n)
	}
}
