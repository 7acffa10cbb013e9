package relay

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a call session.
type State int

const (
	// StateAwaitingStart - Telephony channel accepted, waiting for the start event.
	StateAwaitingStart State = iota
	// StateActive - Model connected and configured, pumps running.
	StateActive
	// StateClosed - Session relayed and was torn down.
	StateClosed
	// StateAborted - Session ended before it ever relayed audio.
	StateAborted
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "AWAITING_START"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	case StateAborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Errors for invalid state transitions.
var (
	ErrAlreadyActive = errors.New("session already active")
	ErrSessionEnded  = errors.New("session has ended")
)

// Lifecycle manages the state machine for a single call session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	AWAITING_START → ACTIVE → CLOSED
//	      │
//	      └── Close() ──→ ABORTED
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

// NewLifecycle creates a lifecycle in AWAITING_START state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateAwaitingStart}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Activate transitions AWAITING_START → ACTIVE.
func (l *Lifecycle) Activate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateAwaitingStart:
		l.state = StateActive
		return nil
	case StateActive:
		return ErrAlreadyActive
	default:
		return ErrSessionEnded
	}
}

// Close ends an active session. Returns true only for the call that performed
// the transition; an un-activated session is aborted instead.
func (l *Lifecycle) Close() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateActive:
		l.state = StateClosed
		return true
	case StateAwaitingStart:
		l.state = StateAborted
		return true
	default:
		return false
	}
}
