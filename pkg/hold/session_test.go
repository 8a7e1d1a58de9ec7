package hold

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	testPreConnect = 10 * time.Minute
	testReconnect  = 15 * time.Minute
)

func newTestSession() (*Session, *clock.Mock) {
	mock := clock.NewMock()
	return NewSession(mock, testPreConnect, testReconnect), mock
}

func TestSessionInitialStatus(t *testing.T) {
	session, _ := newTestSession()

	st := session.Status()
	if st.State != StateAwaitingFirstConnection {
		t.Errorf("got state %v, want %v", st.State, StateAwaitingFirstConnection)
	}
	if st.Timeout != testPreConnect {
		t.Errorf("got timeout %v, want %v", st.Timeout, testPreConnect)
	}
	if st.Elapsed != 0 {
		t.Errorf("got elapsed %v, want 0", st.Elapsed)
	}
}

func TestEstablishWidensTimeoutOnce(t *testing.T) {
	session, mock := newTestSession()

	session.Establish()
	st := session.Status()
	if st.State != StateConnected {
		t.Errorf("got state %v, want %v", st.State, StateConnected)
	}
	if st.Timeout != testReconnect {
		t.Errorf("got timeout %v, want %v", st.Timeout, testReconnect)
	}

	// A second announcement refreshes the heartbeat but changes nothing
	// else.
	mock.Add(5 * time.Minute)
	session.Establish()
	st = session.Status()
	if st.State != StateConnected {
		t.Errorf("got state %v, want %v", st.State, StateConnected)
	}
	if st.Timeout != testReconnect {
		t.Errorf("got timeout %v, want %v", st.Timeout, testReconnect)
	}
	if st.Elapsed != 0 {
		t.Errorf("got elapsed %v, want 0", st.Elapsed)
	}
}

func TestKeepAliveRefreshesWithoutWidening(t *testing.T) {
	session, mock := newTestSession()

	mock.Add(4 * time.Minute)
	session.KeepAlive()

	st := session.Status()
	if st.State != StateAwaitingFirstConnection {
		t.Errorf("got state %v, want %v", st.State, StateAwaitingFirstConnection)
	}
	if st.Timeout != testPreConnect {
		t.Errorf("got timeout %v, want %v", st.Timeout, testPreConnect)
	}
	if st.Elapsed != 0 {
		t.Errorf("got elapsed %v, want 0", st.Elapsed)
	}
}

func TestRequestCloseDrainsAndWakes(t *testing.T) {
	session, _ := newTestSession()
	session.Establish()

	session.RequestClose()

	if got := session.Status().State; got != StateDraining {
		t.Errorf("got state %v, want %v", got, StateDraining)
	}
	select {
	case <-session.WakeC():
	default:
		t.Error("expected a wake signal after RequestClose")
	}
}

func TestEstablishWhileDrainingStaysDraining(t *testing.T) {
	session, _ := newTestSession()
	session.RequestClose()

	session.Establish()

	if got := session.Status().State; got != StateDraining {
		t.Errorf("got state %v, want %v", got, StateDraining)
	}
}

func TestTerminateIsFinal(t *testing.T) {
	session, mock := newTestSession()
	session.Terminate()

	session.Establish()
	session.KeepAlive()
	session.RequestClose()
	mock.Add(time.Minute)

	st := session.Status()
	if st.State != StateTerminated {
		t.Errorf("got state %v, want %v", st.State, StateTerminated)
	}
	if st.Timeout != testPreConnect {
		t.Errorf("got timeout %v, want %v", st.Timeout, testPreConnect)
	}
}

func TestStatusExpiredBoundary(t *testing.T) {
	session, mock := newTestSession()

	mock.Add(testPreConnect)
	if session.Status().Expired() {
		t.Error("exactly at the budget should not be expired")
	}

	mock.Add(time.Nanosecond)
	if !session.Status().Expired() {
		t.Error("past the budget should be expired")
	}
}

func TestWakeNeverBlocks(t *testing.T) {
	session, _ := newTestSession()

	// Nothing is draining the channel; repeated wakes must not block.
	session.Wake()
	session.Wake()
	session.Wake()
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateAwaitingFirstConnection, "awaiting-first-connection"},
		{StateConnected, "connected"},
		{StateDraining, "draining"},
		{StateTerminated, "terminated"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
