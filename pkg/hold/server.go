package hold

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tether-ci/tether/pkg/log"
)

// Environment variables describing how to reach the runner, set by the
// provisioning layer and echoed back to the operator.
const (
	PodEnvVar       = "CONNECTION_POD_NAME"
	ClusterEnvVar   = "CONNECTION_CLUSTER"
	LocationEnvVar  = "CONNECTION_LOCATION"
	NamespaceEnvVar = "CONNECTION_NS"
)

// ServerConfig holds what a hold server needs to run.
type ServerConfig struct {
	// Addr is the host:port to listen on.
	Addr string

	// Session tracks liveness. Required.
	Session *Session

	// WatchInterval is how often the watcher checks the deadline and
	// reports time since the last keep-alive.
	WatchInterval time.Duration

	// Clock drives read deadlines and the watch ticker. Defaults to the
	// wall clock.
	Clock clock.Clock

	// EnvState supplies the filtered environment reported to clients.
	// Nil means an empty environment is reported.
	EnvState func() map[string]string
}

// Server listens for connection notifications and keeps the session's
// liveness bookkeeping current until the hold ends.
type Server struct {
	addr     string
	session  *Session
	watch    time.Duration
	clock    clock.Clock
	envState func() map[string]string

	mu     sync.Mutex
	active net.Conn
}

// NewServer validates cfg and builds a server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Addr == "" {
		return nil, errors.New("addr is required")
	}
	if cfg.Session == nil {
		return nil, errors.New("session is required")
	}
	if cfg.WatchInterval <= 0 {
		return nil, fmt.Errorf("invalid watch interval: %v", cfg.WatchInterval)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Server{
		addr:     cfg.Addr,
		session:  cfg.Session,
		watch:    cfg.WatchInterval,
		clock:    cfg.Clock,
		envState: cfg.EnvState,
	}, nil
}

// Run prints the connection instructions, binds the listener, and serves
// until the session ends or ctx is cancelled. A bind failure is fatal:
// without the listener the job would hang with no way to release it.
func (s *Server) Run(ctx context.Context) error {
	logConnectionInstructions()

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	log.Infof("Listening for connection notifications on %s...", s.addr)

	accepted := make(chan struct{})
	go func() {
		defer close(accepted)
		s.acceptLoop(listener)
	}()

	s.watchLoop(ctx)

	if err := listener.Close(); err != nil {
		log.Debugf("listener close: %v", err)
	}
	s.closeActive()
	<-accepted

	log.Infof("Waiting process terminated.")
	return nil
}

// acceptLoop handles connections one at a time. Notifications are tiny
// and short-lived, and the per-connection read deadline keeps a stalled
// peer from wedging the loop for more than one watch interval.
func (s *Server) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Debugf("accept: %v", err)
			}
			return
		}
		s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	s.setActive(conn)
	defer func() {
		s.setActive(nil)
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(s.clock.Now().Add(s.watch))

	// Multiple messages can arrive in one segment, so split on newlines
	// rather than assuming one message per connection.
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if done := s.handleMessage(message, conn); done {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		// A broken notification connection is not the hold's problem;
		// the watcher keeps running on its own timeout.
		log.Debugf("connection read ended: %v", err)
	}
}

// handleMessage updates the session for one wire message. It returns true
// when the connection should close immediately, which signals the client
// that a reply is complete.
func (s *Server) handleMessage(message string, conn net.Conn) bool {
	switch message {
	case MsgKeepAlive:
		log.Infof("Keep-alive received")
		s.session.KeepAlive()
	case MsgConnectionClosed:
		s.session.RequestClose()
	case MsgConnectionEstablished:
		s.session.Establish()
		log.Infof("Remote connection detected.")
	case MsgEnvStateRequested:
		log.Infof("Environment state requested")
		if err := s.sendEnvState(conn); err != nil {
			log.Errorf("failed to send environment state: %v", err)
		} else {
			log.Infof("Environment state sent to the client")
		}
		return true
	default:
		log.Warnf("Unknown message received: %q", message)
	}
	return false
}

func (s *Server) sendEnvState(conn net.Conn) error {
	env := map[string]string{}
	if s.envState != nil {
		env = s.envState()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode environment state: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("failed to write environment state: %w", err)
	}
	return nil
}

// watchLoop reports liveness every watch interval and decides when the
// hold is over: either a close was requested or the inactivity budget ran
// out. A wake from the session short-circuits the wait so a close does
// not linger for a full interval.
func (s *Server) watchLoop(ctx context.Context) {
	ticker := s.clock.Ticker(s.watch)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.session.Terminate()
			return
		case <-ticker.C:
		case <-s.session.WakeC():
		}

		st := s.session.Status()

		var msg string
		switch {
		case st.State == StateDraining:
			msg = "Connection was terminated."
		case st.Expired():
			msg = fmt.Sprintf("No connection for %d seconds.", int(st.Timeout.Seconds()))
		default:
			log.Infof("Time since last keep-alive: %ds", int(st.Elapsed.Seconds()))
			continue
		}

		log.Infof("%s Shutting down the waiting process...", msg)
		s.session.Terminate()
		return
	}
}

func (s *Server) setActive(conn net.Conn) {
	s.mu.Lock()
	s.active = conn
	s.mu.Unlock()
}

func (s *Server) closeActive() {
	s.mu.Lock()
	if s.active != nil {
		_ = s.active.Close()
	}
	s.mu.Unlock()
}

// logConnectionInstructions prints what an operator needs to reach this
// runner. The halt directory is where the tether binary lives, so the
// connecting side can find its companion tooling.
func logConnectionInstructions() {
	runnerName := os.Getenv(PodEnvVar)
	cluster := os.Getenv(ClusterEnvVar)
	location := os.Getenv(LocationEnvVar)
	ns := os.Getenv(NamespaceEnvVar)

	haltDir := ""
	if exe, err := os.Executable(); err == nil {
		haltDir = filepath.Dir(exe)
	}
	if runtime.GOOS == "windows" {
		haltDir = strings.ReplaceAll(haltDir, `\`, `\\`)
	}

	log.Infof(
		"Connection string: tether-connect --runner=%s --ns=%s --loc=%s --cluster=%s --halt_directory=%s",
		runnerName, ns, location, cluster, haltDir,
	)
}
