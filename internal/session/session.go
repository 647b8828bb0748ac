package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lydakis/wcfx/internal/channel"
	"github.com/lydakis/wcfx/internal/clock"
	"github.com/lydakis/wcfx/internal/wire"
)

// Default ports of the agent.
const (
	DefaultControlAddr = "tcp://127.0.0.1:10086"
	DefaultEventAddr   = "tcp://127.0.0.1:10087"

	DefaultLoginPollInterval = time.Second
)

const reachableAttempts = 5

var (
	// ErrLoginNotCompleted is returned by Start when the login gate is
	// abandoned: cancelled, or the control socket timed out or closed.
	ErrLoginNotCompleted = errors.New("login not completed")

	// ErrNotReady is returned by Call before Start has succeeded.
	ErrNotReady = errors.New("session not ready")

	// ErrStopped is returned by Call after Stop or a fatal call failure.
	ErrStopped = errors.New("session stopped")
)

// Agent is the process supervisor's side of the lifecycle. The session
// calls it but does not implement it.
type Agent interface {
	// Reachable reports whether the native agent is running.
	Reachable(ctx context.Context) error
	// Shutdown tears the native agent down.
	Shutdown(ctx context.Context) error
}

// Handler receives each decoded event, in receipt order.
type Handler func(ev wire.Event)

// Dialer opens one socket. channel.Dial is the production dialer.
type Dialer func(addr string, blocking bool, opts channel.Options) (channel.Conn, error)

// State is the session lifecycle position.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateFailed   State = "failed"
	StateStopped  State = "stopped"
)

// Config holds addresses and timing.
type Config struct {
	ControlAddr string
	EventAddr   string

	// BlockingConnect makes Start fail fast when a socket cannot be
	// dialed. Otherwise dials run in the background and the login gate
	// observes an unreachable agent as a timeout.
	BlockingConnect bool

	SendTimeout       time.Duration
	RecvTimeout       time.Duration
	CallTimeout       time.Duration
	LoginPollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ControlAddr == "" {
		c.ControlAddr = DefaultControlAddr
	}
	if c.EventAddr == "" {
		c.EventAddr = DefaultEventAddr
	}
	if c.LoginPollInterval <= 0 {
		c.LoginPollInterval = DefaultLoginPollInterval
	}
	return c
}

// Session is the bridge to one agent.
type Session struct {
	cfg Config

	// Handler receives events. May be nil until Start; it is read once
	// when the ingestion loop starts.
	Handler Handler

	// Agent, if set, is checked before dialing and shut down by Stop.
	Agent Agent

	// Logger receives lifecycle and event-loop diagnostics. If nil,
	// slog.Default() is used.
	Logger *slog.Logger

	// Clock drives the login-gate backoff. If nil, the real clock is used.
	Clock clock.Clock

	// Dial opens sockets. If nil, channel.Dial is used.
	Dial Dialer

	// sem serializes control calls; a buffered channel rather than a mutex
	// so a waiting caller can give up when its context ends.
	sem chan struct{}

	mu       sync.Mutex
	state    State
	control  *channel.Control
	event    channel.Conn
	selfID   string
	loopDone chan struct{}
	// stopping is set by Stop before the sockets close, so failures it
	// causes are not taken for a broken agent.
	stopping bool

	done     chan struct{}
	doneOnce sync.Once
	err      error

	stopOnce sync.Once
}

// New creates an idle session.
func New(cfg Config) *Session {
	return &Session{
		cfg:   cfg.withDefaults(),
		sem:   make(chan struct{}, 1),
		state: StateIdle,
		done:  make(chan struct{}),
	}
}

func (s *Session) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Session) clock() clock.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return clock.Real()
}

func (s *Session) dial(addr string) (channel.Conn, error) {
	opts := channel.Options{SendTimeout: s.cfg.SendTimeout, RecvTimeout: s.cfg.RecvTimeout}
	if s.Dial != nil {
		return s.Dial(addr, s.cfg.BlockingConnect, opts)
	}
	sock, err := channel.Dial(addr, s.cfg.BlockingConnect, opts)
	if err != nil {
		return nil, err
	}
	return sock, nil
}

// Start runs the handshake and starts the ingestion loop. It blocks until
// the agent reports a logged-in account, ctx ends, or the handshake fails.
// On failure both sockets are closed before Start returns.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session: start in state %s", state)
	}
	s.state = StateStarting
	s.mu.Unlock()

	if err := s.start(ctx); err != nil {
		s.closeChannels()
		s.fail(err)
		return err
	}
	s.setState(StateReady)
	return nil
}

// waitReachable checks the agent up to reachableAttempts times, one poll
// interval apart. A freshly injected agent needs a moment to listen.
func (s *Session) waitReachable(ctx context.Context) error {
	clk := s.clock()
	for attempt := 1; ; attempt++ {
		err := s.Agent.Reachable(ctx)
		if err == nil || attempt == reachableAttempts {
			return err
		}
		s.logger().Debug("agent not reachable yet", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-clk.After(s.cfg.LoginPollInterval):
		}
	}
}

func (s *Session) start(ctx context.Context) error {
	logger := s.logger()

	if s.Agent != nil {
		if err := s.waitReachable(ctx); err != nil {
			return fmt.Errorf("agent not reachable: %w", err)
		}
	}

	conn, err := s.dial(s.cfg.ControlAddr)
	if err != nil {
		return fmt.Errorf("control socket: %w", err)
	}
	control := channel.NewControl(conn)
	control.Logger = logger
	s.mu.Lock()
	s.control = control
	s.mu.Unlock()

	if err := s.waitForLogin(ctx); err != nil {
		return err
	}
	logger.Info("agent logged in")

	if err := s.enableReceive(); err != nil {
		return err
	}

	if resp, err := s.call(wire.Request{Func: wire.FuncGetSelfWxid}); err != nil {
		logger.Warn("fetching self wxid failed", "error", err)
	} else if id, ok := resp.Result.(wire.Str); ok {
		s.mu.Lock()
		s.selfID = string(id)
		s.mu.Unlock()
		logger.Debug("self wxid", "wxid", string(id))
	}

	event, err := s.dial(s.cfg.EventAddr)
	if err != nil {
		return fmt.Errorf("event socket: %w", err)
	}
	loopDone := make(chan struct{})
	s.mu.Lock()
	s.event = event
	s.loopDone = loopDone
	handler := s.Handler
	s.mu.Unlock()

	go func() {
		defer close(loopDone)
		s.runEvents(event, handler)
	}()
	logger.Info("event stream started", "addr", s.cfg.EventAddr)
	return nil
}

func (s *Session) enableReceive() error {
	resp, err := s.call(wire.Request{Func: wire.FuncEnableRecvTxt})
	if err != nil {
		return fmt.Errorf("enabling message receipt: %w", err)
	}
	if st, ok := resp.Result.(wire.Status); ok && st != 0 {
		return fmt.Errorf("enabling message receipt: agent returned status %d", int32(st))
	}
	return nil
}

// Call issues one control call. Concurrent callers wait their turn; a
// caller whose ctx ends while waiting gives up without sending.
func (s *Session) Call(ctx context.Context, req wire.Request) (*wire.Response, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.sem }()

	switch s.State() {
	case StateReady:
	case StateFailed, StateStopped:
		return nil, ErrStopped
	default:
		return nil, ErrNotReady
	}

	resp, err := s.callLocked(req)
	if err != nil && channel.IsFatal(err) && s.fail(err) {
		s.logger().Error("control socket unusable, ending session", "error", err)
	}
	return resp, err
}

// call is used during Start, before any external caller can reach the
// control socket.
func (s *Session) call(req wire.Request) (*wire.Response, error) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()
	return s.callLocked(req)
}

func (s *Session) callLocked(req wire.Request) (*wire.Response, error) {
	s.mu.Lock()
	control := s.control
	s.mu.Unlock()
	if control == nil {
		return nil, ErrNotReady
	}
	return control.Call(req, s.cfg.CallTimeout)
}

// Stop closes both sockets, waits for the ingestion loop, and shuts the
// agent down. It is safe to call after a failed Start and more than once.
func (s *Session) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()
		s.closeChannels()

		s.mu.Lock()
		loopDone := s.loopDone
		if s.state != StateFailed {
			s.state = StateStopped
		}
		s.mu.Unlock()

		if loopDone != nil {
			select {
			case <-loopDone:
			case <-ctx.Done():
				err = ctx.Err()
			}
		}
		s.finish(ErrStopped)

		if s.Agent != nil {
			if serr := s.Agent.Shutdown(ctx); serr != nil {
				err = errors.Join(err, fmt.Errorf("shutting agent down: %w", serr))
			}
		}
	})
	return err
}

func (s *Session) closeChannels() {
	s.mu.Lock()
	control, event := s.control, s.event
	s.mu.Unlock()

	if event != nil {
		if err := event.Close(); err != nil {
			s.logger().Debug("closing event socket", "error", err)
		}
	}
	if control != nil {
		if err := control.Close(); err != nil {
			s.logger().Debug("closing control socket", "error", err)
		}
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// fail marks the session failed and ends it with err. It reports false,
// changing nothing, once Stop has begun.
func (s *Session) fail(err error) bool {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return false
	}
	s.state = StateFailed
	s.mu.Unlock()
	s.finish(err)
	return true
}

func (s *Session) finish(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SelfID returns the logged-in account's wxid, or "" if it could not be
// fetched.
func (s *Session) SelfID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfID
}

// Done is closed when the session ends, by Stop or by a failure.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended, or nil while it is running.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
