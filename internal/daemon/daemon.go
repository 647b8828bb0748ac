package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/lydakis/wcfx/internal/action"
	"github.com/lydakis/wcfx/internal/agent"
	"github.com/lydakis/wcfx/internal/cache"
	"github.com/lydakis/wcfx/internal/config"
	"github.com/lydakis/wcfx/internal/events"
	"github.com/lydakis/wcfx/internal/httpapi"
	"github.com/lydakis/wcfx/internal/ipc"
	"github.com/lydakis/wcfx/internal/logging"
	"github.com/lydakis/wcfx/internal/paths"
	"github.com/lydakis/wcfx/internal/response"
	"github.com/lydakis/wcfx/internal/session"
)

const stopTimeout = 10 * time.Second

var (
	cacheGet = cache.Get
	cachePut = cache.Put
)

// Bridge is the session surface the daemon drives. *session.Session
// implements it.
type Bridge interface {
	action.Caller
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() session.State
	SelfID() string
	Done() <-chan struct{}
	Err() error
}

// Installer injects the agent before the session dials it.
type Installer interface {
	Install(ctx context.Context) error
}

// Options select how Run logs.
type Options struct {
	// Foreground logs to stderr instead of the daemon log file.
	Foreground bool
}

// Run starts the daemon process. Called when argv[1] == "__daemon", and by
// "wcfx serve" with Foreground set.
func Run(opts Options) error {
	if err := paths.EnsureDir(paths.RuntimeDir()); err != nil {
		return fmt.Errorf("creating runtime dir: %w", err)
	}
	if err := paths.EnsureDir(paths.StateDir()); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if verr := config.Validate(cfg); verr != nil {
		return fmt.Errorf("invalid config: %w", verr)
	}

	if opts.Foreground && isListeningFn() {
		return fmt.Errorf("a daemon is already listening on %s; run 'wcfx shutdown' first", paths.SocketPath())
	}

	var out io.Writer = os.Stderr
	if !opts.Foreground {
		f, err := logging.OpenFile(paths.LogFile())
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	level, _ := logging.ParseLevel(cfg.Log.Level)
	logger := logging.New(out, level)
	slog.SetDefault(logger)

	nonce, err := readOrCreateNonce()
	if err != nil {
		return fmt.Errorf("nonce setup: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return New(cfg, logger).Serve(ctx, nonce)
}

// Daemon owns one session and the façades in front of it.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	bridge    Bridge
	installer Installer
	hub       *events.Hub
	mapper    *action.Mapper

	shutdown context.CancelFunc
}

// New wires a session to the agent described by cfg.
func New(cfg *config.Config, logger *slog.Logger) *Daemon {
	proc := &agent.Process{
		Command:     cfg.Agent.Command,
		Debug:       cfg.Agent.Debug,
		Skip:        cfg.Agent.Skip,
		ControlAddr: cfg.Bridge.ControlAddr,
		Logger:      logger.With("component", "agent"),
	}

	sess := session.New(session.Config{
		ControlAddr:       cfg.Bridge.ControlAddr,
		EventAddr:         cfg.Bridge.EventAddr,
		BlockingConnect:   cfg.Bridge.BlockingConnect,
		SendTimeout:       config.DurationOr(cfg.Bridge.SendTimeout, 0),
		RecvTimeout:       config.DurationOr(cfg.Bridge.RecvTimeout, 0),
		CallTimeout:       config.DurationOr(cfg.Bridge.CallTimeout, 0),
		LoginPollInterval: config.DurationOr(cfg.Bridge.LoginPollInterval, 0),
	})
	sess.Agent = proc
	sess.Logger = logger.With("component", "session")

	hub := events.NewHub()
	hub.Logger = logger.With("component", "events")
	sess.Handler = hub.Publish

	d := newDaemon(cfg, logger, sess, hub)
	d.installer = proc
	return d
}

func newDaemon(cfg *config.Config, logger *slog.Logger, bridge Bridge, hub *events.Hub) *Daemon {
	return &Daemon{
		cfg:    cfg,
		logger: logger,
		bridge: bridge,
		hub:    hub,
		mapper: &action.Mapper{Caller: bridge, Logger: logger.With("component", "action")},
	}
}

// Serve runs until ctx ends, a shutdown request arrives, or the session
// fails. The IPC socket is up while the session waits for login, so the
// CLI can report progress.
func (d *Daemon) Serve(ctx context.Context, nonce string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.shutdown = cancel

	srv := ipc.NewServer(paths.SocketPath(), nonce, d.dispatch)
	srv.Logger = d.logger.With("component", "ipc")
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()
	d.logger.Info("daemon listening", "socket", paths.SocketPath(), "pid", os.Getpid())

	var front *httpapi.Server
	if listen := d.cfg.HTTP.Listen; listen != "" {
		front = &httpapi.Server{
			Invoker: d,
			Hub:     d.hub,
			Ready:   d.ready,
			Logger:  d.logger.With("component", "http"),
		}
		if err := front.Start(listen); err != nil {
			return err
		}
	}

	err := d.run(ctx)

	d.stop()
	if front != nil {
		sctx, scancel := context.WithTimeout(context.Background(), stopTimeout)
		if serr := front.Shutdown(sctx); serr != nil {
			d.logger.Warn("http shutdown", "error", serr)
		}
		scancel()
	}
	d.logger.Info("daemon stopped")
	return err
}

func (d *Daemon) run(ctx context.Context) error {
	if d.installer != nil {
		if err := d.installer.Install(ctx); err != nil {
			return fmt.Errorf("installing agent: %w", err)
		}
	}

	if err := d.bridge.Start(ctx); err != nil {
		if ctx.Err() != nil {
			d.logger.Info("shutdown during login", "error", err)
			return nil
		}
		return fmt.Errorf("starting session: %w", err)
	}
	d.logger.Info("session ready", "self_id", d.bridge.SelfID())

	select {
	case <-ctx.Done():
		d.logger.Info("shutting down")
		return nil
	case <-d.bridge.Done():
		err := d.bridge.Err()
		d.logger.Error("session ended", "error", err)
		return fmt.Errorf("session ended: %w", err)
	}
}

// stop shuts the session and agent down, then ends event streams.
func (d *Daemon) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := d.bridge.Stop(ctx); err != nil {
		d.logger.Warn("stopping session", "error", err)
	}
	d.hub.Close()
}

func (d *Daemon) ready() error {
	if state := d.bridge.State(); state != session.StateReady {
		return fmt.Errorf("session %s", state)
	}
	return nil
}

func (d *Daemon) dispatch(ctx context.Context, req *ipc.Request) *ipc.Response {
	switch req.Type {
	case ipc.TypeInvoke:
		return d.invokeRequest(ctx, req)
	case ipc.TypeActions:
		return jsonResponse(action.Catalog())
	case ipc.TypeStatus:
		return jsonResponse(d.status())
	case ipc.TypePing:
		return &ipc.Response{Content: json.RawMessage(`"pong"`)}
	case ipc.TypeShutdown:
		d.logger.Info("shutdown requested", "request_id", req.ID)
		if d.shutdown != nil {
			go d.shutdown()
		}
		return &ipc.Response{Content: json.RawMessage(`"shutting down"`)}
	default:
		return &ipc.Response{ExitCode: ipc.ExitUsageErr, Stderr: fmt.Sprintf("unknown request type: %s", req.Type)}
	}
}

func (d *Daemon) invokeRequest(ctx context.Context, req *ipc.Request) *ipc.Response {
	logger := d.logger.With("request_id", req.ID, "action", req.Action)

	var res action.Result
	var cached bool
	params, err := decodeParams(req.Params)
	if err != nil {
		logger.Warn("invalid ipc params", "error", err)
		res = action.Result{Status: action.StatusError, Msg: action.MsgBadParams, Data: map[string]any{}}
	} else {
		start := time.Now()
		res, cached = d.invoke(ctx, req.Action, params, req.NoCache)
		logger.Debug("ipc call", "status", res.Status, "cached", cached, "duration", time.Since(start))
	}

	content, err := response.Encode(res)
	if err != nil {
		return &ipc.Response{ExitCode: ipc.ExitInternal, Stderr: fmt.Sprintf("encoding result: %v", err)}
	}
	resp := &ipc.Response{Content: content, ExitCode: response.ExitCode(res), Cached: cached}
	if res.Status != action.StatusOK {
		resp.Stderr = describeFailure(res, d.bridge.State(), d.bridge.Err())
	}
	return resp
}

// Invoke runs name through the cache. It is the HTTP façade's invoker.
func (d *Daemon) Invoke(ctx context.Context, name string, params map[string]any) action.Result {
	res, _ := d.invoke(ctx, name, params, false)
	return res
}

func (d *Daemon) invoke(ctx context.Context, name string, params map[string]any, noCache bool) (action.Result, bool) {
	ttl, cacheable := d.cacheTTL(name)
	if !cacheable || noCache {
		return d.mapper.Invoke(ctx, name, params), false
	}

	// Map keys marshal sorted, so equal params give equal keys.
	key, err := json.Marshal(params)
	if err != nil {
		return d.mapper.Invoke(ctx, name, params), false
	}
	account := d.bridge.SelfID()

	if raw, age, ok := cacheGet(account, name, key); ok {
		if res, err := response.Decode(raw); err == nil {
			d.logger.Debug("cache hit", "action", name, "age", age)
			return res, true
		}
	}

	res := d.mapper.Invoke(ctx, name, params)
	if res.Status == action.StatusOK {
		if raw, err := response.Encode(res); err == nil {
			if err := cachePut(account, name, key, raw, ttl); err != nil {
				d.logger.Warn("cache store failed", "action", name, "error", err)
			}
		}
	}
	return res, false
}

// cacheTTL reports whether results of name are cached, and for how long.
// Only read-only actions qualify, and only when cache.ttl is set.
func (d *Daemon) cacheTTL(name string) (time.Duration, bool) {
	act, ok := action.Lookup(name)
	if !ok || !act.ReadOnly {
		return 0, false
	}
	ttl := config.DurationOr(d.cfg.Cache.TTL, 0)
	if ttl <= 0 {
		return 0, false
	}
	if len(d.cfg.Cache.Actions) == 0 {
		return ttl, true
	}
	for _, pattern := range d.cfg.Cache.Actions {
		if matched, err := path.Match(pattern, name); err == nil && matched {
			return ttl, true
		}
	}
	return 0, false
}

func (d *Daemon) status() ipc.Status {
	st := ipc.Status{
		State:       string(d.bridge.State()),
		SelfID:      d.bridge.SelfID(),
		ControlAddr: d.cfg.Bridge.ControlAddr,
		EventAddr:   d.cfg.Bridge.EventAddr,
		HTTPListen:  d.cfg.HTTP.Listen,
		Subscribers: d.hub.Len(),
		PID:         os.Getpid(),
	}
	if err := d.bridge.Err(); err != nil && !errors.Is(err, session.ErrStopped) {
		st.Error = err.Error()
	}
	return st
}

// decodeParams parses invoke params, keeping numbers as json.Number so
// integer params survive without float rounding.
func decodeParams(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		return nil, fmt.Errorf("params must be a JSON object: %w", err)
	}
	return params, nil
}

func jsonResponse(v any) *ipc.Response {
	data, err := json.Marshal(v)
	if err != nil {
		return &ipc.Response{ExitCode: ipc.ExitInternal, Stderr: fmt.Sprintf("encoding response: %v", err)}
	}
	return &ipc.Response{Content: data}
}
