package remote

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/docsync/docsync"
)

// State is the connection state of a Session.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticated
	Degraded
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticated:
		return "authenticated"
	case Degraded:
		return "degraded"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

const (
	DefaultMaxAttempts = 10
	DefaultStep        = time.Second
)

// SessionConfig describes a remote session.
type SessionConfig struct {
	Endpoint   Endpoint
	Credential Credential

	// MaxAttempts is the number of consecutive failed attempts
	// after which an operation fails with docsync.ErrSessionUnavailable.
	// Default DefaultMaxAttempts.
	MaxAttempts int

	// Step is the backoff unit.
	// The wait after the nth consecutive failure is n*Step.
	// Default DefaultStep.
	Step time.Duration
}

// Session owns at most one live connection to a remote host
// and re-establishes it as needed.
//
// Operations go through Transfer and Exec,
// which retry failures to acquire a channel,
// and failures that lose the connection,
// by discarding the connection, waiting, and reconnecting.
// Other failures are returned immediately.
type Session struct {
	cfg    SessionConfig
	dialer Dialer

	mu         sync.Mutex
	conn       Conn
	state      State
	reconnects int
}

// NewSession validates cfg and produces a disconnected Session.
// No network I/O happens until the first operation.
func NewSession(cfg SessionConfig, d Dialer) (*Session, error) {
	if cfg.Endpoint.Host == "" {
		return nil, &docsync.ConfigError{Field: "host", Msg: "remote target requires a host"}
	}
	if cfg.Endpoint.Port <= 0 || cfg.Endpoint.Port > 65535 {
		return nil, docsync.ConfigErrorf("port", "invalid port %d", cfg.Endpoint.Port)
	}
	if cfg.Credential == nil {
		return nil, &docsync.ConfigError{Field: "password", Msg: "remote target requires a credential"}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Step < 0 {
		return nil, docsync.ConfigErrorf("step", "negative backoff step %s", cfg.Step)
	}
	if cfg.Step == 0 {
		cfg.Step = DefaultStep
	}
	return &Session{cfg: cfg, dialer: d}, nil
}

func (s *Session) String() string {
	return s.cfg.Credential.User() + "@" + s.cfg.Endpoint.String()
}

// State reports the session's connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reconnects is the number of times the session has replaced a failed connection.
func (s *Session) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

// Transfer calls fn with the file-transfer channel of a live connection.
func (s *Session) Transfer(ctx context.Context, fn func(FileSystem) error) error {
	return s.do(ctx, func(c Conn) error {
		fs, err := c.FileSystem()
		if err != nil {
			return errors.Wrap(docsync.ErrConnectionLost, err.Error())
		}
		return fn(fs)
	})
}

// Exec runs cmd on a live connection and returns its standard output.
func (s *Session) Exec(ctx context.Context, cmd string) ([]byte, error) {
	var out []byte
	err := s.do(ctx, func(c Conn) error {
		var err error
		out, err = c.Exec(ctx, cmd)
		return err
	})
	return out, err
}

// Close disconnects the session.
// The session may be used again afterwards;
// the next operation connects afresh.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		s.state = Disconnected
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.state = Disconnected
	return errors.Wrapf(err, "disconnecting from %s", s.cfg.Endpoint)
}

func (s *Session) do(ctx context.Context, fn func(Conn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		attempt   int
		permanent bool
	)
	op := func() error {
		attempt++
		if err := s.ensureConn(ctx); err != nil {
			if errors.Is(err, docsync.ErrNotSupported) || docsync.IsConfigError(err) {
				permanent = true
				return backoff.Permanent(err)
			}
			return err
		}
		err := fn(s.conn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, docsync.ErrConnectionLost) {
			permanent = true
			return backoff.Permanent(err)
		}
		s.degrade()
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{step: s.cfg.Step}, uint64(s.cfg.MaxAttempts-1)), ctx)
	notify := func(err error, wait time.Duration) {
		log.Printf("WARNING %s: attempt %d of %d failed, retrying in %s: %s", s, attempt, s.cfg.MaxAttempts, wait, err)
	}

	err := backoff.RetryNotify(op, b, notify)
	switch {
	case err == nil:
		return nil
	case permanent:
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	}
	s.drop()
	return errors.Wrapf(docsync.ErrSessionUnavailable, "%s after %d attempts: %s", s, attempt, err)
}

// ensureConn connects if there is no live connection.
// Replacing a connection lost after authenticating counts as a reconnect.
func (s *Session) ensureConn(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}

	switch s.state {
	case Degraded, Reconnecting:
		s.state = Reconnecting
		s.reconnects++
	default:
		s.state = Connecting
	}

	c, err := s.dialer.Dial(ctx, s.cfg.Endpoint, s.cfg.Credential)
	if err != nil {
		if s.state == Connecting {
			s.state = Disconnected
		}
		return errors.Wrapf(err, "connecting to %s", s)
	}
	s.conn = c
	s.state = Authenticated
	return nil
}

// degrade discards the current connection after it failed.
func (s *Session) degrade() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			log.Printf("ERROR %s: closing failed connection: %s", s, err)
		}
		s.conn = nil
	}
	s.state = Degraded
}

func (s *Session) drop() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.state = Disconnected
}

// linearBackOff waits n*step after the nth consecutive failure.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() {
	b.n = 0
}
