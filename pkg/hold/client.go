package hold

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tether-ci/tether/pkg/log"
)

// ClientConfig holds what a notification client needs.
type ClientConfig struct {
	// Addr is the host:port of the hold server.
	Addr string

	// DialTimeout bounds each connection attempt. Defaults to 5s.
	DialTimeout time.Duration

	// Clock drives the heartbeat ticker. Defaults to the wall clock.
	Clock clock.Clock
}

// Client sends notifications to a hold server. Each message uses a fresh
// connection, so a dead server costs one dial timeout rather than a
// wedged long-lived socket.
type Client struct {
	addr        string
	dialTimeout time.Duration
	clock       clock.Clock
}

// NewClient validates cfg and builds a client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Client{
		addr:        cfg.Addr,
		dialTimeout: cfg.DialTimeout,
		clock:       cfg.Clock,
	}, nil
}

// Addr returns the server address the client targets.
func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			log.Errorf("Could not connect to server at %s. Is the server running?", c.addr)
		} else {
			log.Errorf("An error occurred: %v", err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

// Notify sends a single message to the server.
func (c *Client) Notify(ctx context.Context, message string) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(message + "\n")); err != nil {
		return fmt.Errorf("failed to send %q: %w", message, err)
	}
	return nil
}

// RequestEnvState asks the server for its filtered environment. The
// server replies with one JSON object and closes the connection. Any
// failure yields nil: the caller proceeds without environment overrides
// rather than aborting the attach.
func (c *Client) RequestEnvState(ctx context.Context) map[string]string {
	env, err := c.requestEnvState(ctx)
	if err != nil {
		log.Errorf("An error occurred while requesting env state: %v", err)
		return nil
	}
	return env
}

func (c *Client) requestEnvState(ctx context.Context) (map[string]string, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(MsgEnvStateRequested + "\n")); err != nil {
		return nil, fmt.Errorf("failed to send %q: %w", MsgEnvStateRequested, err)
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment state: %w", err)
	}

	var env map[string]string
	if err := json.Unmarshal(bytes.TrimSpace(data), &env); err != nil {
		return nil, fmt.Errorf("failed to decode environment state: %w", err)
	}
	return env, nil
}

// StartHeartbeat sends keep-alives every interval until ctx is cancelled.
// Send failures are ignored: the server going away is the normal end of a
// hold, and the surrounding session will notice on its own.
func (c *Client) StartHeartbeat(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := c.clock.Ticker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = c.Notify(ctx, MsgKeepAlive)
			}
		}
	}()
}
