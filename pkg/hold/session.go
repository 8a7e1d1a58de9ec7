package hold

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// State describes where a hold session is in its lifecycle.
type State int

const (
	// StateAwaitingFirstConnection is the initial state. The narrow
	// pre-connect timeout applies.
	StateAwaitingFirstConnection State = iota

	// StateConnected means a remote party announced itself at least
	// once. The wider reconnect timeout applies from here on, even if
	// the party drops and comes back.
	StateConnected

	// StateDraining means a close was requested and the watcher should
	// shut the hold down at its next pass.
	StateDraining

	// StateTerminated is the final state.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingFirstConnection:
		return "awaiting-first-connection"
	case StateConnected:
		return "connected"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session tracks connection liveness for one hold. Every mutation goes
// through its methods; the zero value is not usable, use NewSession.
type Session struct {
	mu sync.Mutex

	clock    clock.Clock
	state    State
	lastSeen time.Time

	reconnectTimeout time.Duration
	timeout          time.Duration

	wake chan struct{}
}

// Status is a point-in-time view of a session, taken under one lock so
// the fields are consistent with each other.
type Status struct {
	// State is the lifecycle state at the time of the snapshot.
	State State

	// Elapsed is the time since the last heartbeat.
	Elapsed time.Duration

	// Timeout is the inactivity budget currently in force.
	Timeout time.Duration
}

// Expired reports whether the session has outlived its inactivity budget.
func (s Status) Expired() bool {
	return s.Elapsed > s.Timeout
}

// NewSession returns a session in the awaiting state with the heartbeat
// set to now.
func NewSession(c clock.Clock, preConnect, reconnect time.Duration) *Session {
	return &Session{
		clock:            c,
		state:            StateAwaitingFirstConnection,
		lastSeen:         c.Now(),
		reconnectTimeout: reconnect,
		timeout:          preConnect,
		wake:             make(chan struct{}, 1),
	}
}

// Establish records a remote connection: the heartbeat refreshes and the
// inactivity timeout widens to the reconnect budget. The widening is
// one-way. A close already in progress stays in progress.
func (s *Session) Establish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return
	}
	if s.state == StateAwaitingFirstConnection {
		s.state = StateConnected
	}
	s.timeout = s.reconnectTimeout
	s.lastSeen = s.clock.Now()
}

// KeepAlive refreshes the heartbeat. It deliberately does not widen the
// timeout: only an announced connection earns the reconnect budget.
func (s *Session) KeepAlive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return
	}
	s.lastSeen = s.clock.Now()
}

// RequestClose marks the session as draining and nudges the watcher so
// shutdown does not wait for the next tick.
func (s *Session) RequestClose() {
	s.mu.Lock()
	if s.state != StateTerminated {
		s.state = StateDraining
	}
	s.mu.Unlock()
	s.Wake()
}

// Terminate moves the session to its final state.
func (s *Session) Terminate() {
	s.mu.Lock()
	s.state = StateTerminated
	s.mu.Unlock()
}

// Status returns a consistent snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:   s.state,
		Elapsed: s.clock.Now().Sub(s.lastSeen),
		Timeout: s.timeout,
	}
}

// Wake nudges the watcher outside its regular interval. It never blocks.
func (s *Session) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// WakeC returns the channel the watcher selects on alongside its ticker.
func (s *Session) WakeC() <-chan struct{} {
	return s.wake
}
