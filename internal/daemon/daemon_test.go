package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lydakis/wcfx/internal/action"
	"github.com/lydakis/wcfx/internal/config"
	"github.com/lydakis/wcfx/internal/events"
	"github.com/lydakis/wcfx/internal/ipc"
	"github.com/lydakis/wcfx/internal/paths"
	"github.com/lydakis/wcfx/internal/response"
	"github.com/lydakis/wcfx/internal/session"
	"github.com/lydakis/wcfx/internal/wire"
)

type fakeBridge struct {
	mu       sync.Mutex
	state    session.State
	selfID   string
	err      error
	calls    []wire.Request
	callErr  error
	result   wire.Result
	startErr error
	started  chan struct{}
	// block, if set, makes Start wait for ctx.
	block   bool
	stopped int
	done    chan struct{}
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		state:   session.StateReady,
		selfID:  "wxid_self",
		result:  wire.Status(0),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (b *fakeBridge) Call(_ context.Context, req wire.Request) (*wire.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, req)
	if b.callErr != nil {
		return nil, b.callErr
	}
	return &wire.Response{Func: req.Func, Result: b.result}, nil
}

func (b *fakeBridge) Start(ctx context.Context) error {
	close(b.started)
	if b.block {
		<-ctx.Done()
		return session.ErrLoginNotCompleted
	}
	return b.startErr
}

func (b *fakeBridge) Stop(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped++
	return nil
}

func (b *fakeBridge) State() session.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *fakeBridge) SelfID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selfID
}

func (b *fakeBridge) Done() <-chan struct{} { return b.done }

func (b *fakeBridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *fakeBridge) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *fakeBridge) stopCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDaemon(t *testing.T, cfg *config.Config) (*Daemon, *fakeBridge) {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	if cfg == nil {
		cfg = config.Default()
	}
	b := newFakeBridge()
	return newDaemon(cfg, quietLogger(), b, events.NewHub()), b
}

func decodeResult(t *testing.T, resp *ipc.Response) action.Result {
	t.Helper()
	res, err := response.Decode(resp.Content)
	if err != nil {
		t.Fatalf("decoding content %q: %v", resp.Content, err)
	}
	return res
}

func TestDispatchInvokeSendsRequest(t *testing.T) {
	d, b := testDaemon(t, nil)

	resp := d.dispatch(context.Background(), &ipc.Request{
		Type:   ipc.TypeInvoke,
		Action: "send_text",
		Params: json.RawMessage(`{"msg":"hi","receiver":"filehelper","aters":""}`),
	})
	if resp.ExitCode != ipc.ExitOK {
		t.Fatalf("exit code = %d, stderr %q", resp.ExitCode, resp.Stderr)
	}
	res := decodeResult(t, resp)
	if res.Status != action.StatusOK || res.Msg != action.MsgOK {
		t.Fatalf("result = %+v", res)
	}
	if got := b.callCount(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
	if b.calls[0].Func != wire.FuncSendTxt {
		t.Fatalf("func = %v, want SEND_TXT", b.calls[0].Func)
	}
}

func TestDispatchInvokeUnknownActionIsUsageError(t *testing.T) {
	d, b := testDaemon(t, nil)

	resp := d.dispatch(context.Background(), &ipc.Request{Type: ipc.TypeInvoke, Action: "nope"})
	if resp.ExitCode != ipc.ExitUsageErr {
		t.Fatalf("exit code = %d, want %d", resp.ExitCode, ipc.ExitUsageErr)
	}
	if resp.Stderr != "nope: not implemented" {
		t.Fatalf("stderr = %q", resp.Stderr)
	}
	if res := decodeResult(t, resp); res.Status != action.StatusNotImplemented {
		t.Fatalf("status = %d, want 404", res.Status)
	}
	if b.callCount() != 0 {
		t.Fatal("agent called for unknown action")
	}
}

func TestDispatchInvokeRejectsNonObjectParams(t *testing.T) {
	d, b := testDaemon(t, nil)

	resp := d.dispatch(context.Background(), &ipc.Request{
		Type:   ipc.TypeInvoke,
		Action: "send_text",
		Params: json.RawMessage(`["hi"]`),
	})
	if resp.ExitCode != ipc.ExitUsageErr {
		t.Fatalf("exit code = %d, want %d", resp.ExitCode, ipc.ExitUsageErr)
	}
	if res := decodeResult(t, resp); res.Msg != action.MsgBadParams {
		t.Fatalf("msg = %q, want bad parameters", res.Msg)
	}
	if b.callCount() != 0 {
		t.Fatal("agent called with bad params")
	}
}

func TestDispatchInvokeKeepsLargeIntegers(t *testing.T) {
	d, b := testDaemon(t, nil)

	resp := d.dispatch(context.Background(), &ipc.Request{
		Type:   ipc.TypeInvoke,
		Action: "send_xml",
		Params: json.RawMessage(`{"receiver":"r","content":"<x/>","path":"","type":2147483647}`),
	})
	if resp.ExitCode != ipc.ExitOK {
		t.Fatalf("exit code = %d, stderr %q", resp.ExitCode, resp.Stderr)
	}
	msg, ok := b.calls[0].Payload.(wire.XMLMsg)
	if !ok {
		t.Fatalf("payload = %T, want wire.XMLMsg", b.calls[0].Payload)
	}
	if msg.Type != 2147483647 {
		t.Fatalf("type = %d", msg.Type)
	}
}

func TestDispatchInvokeFailureExplainsSessionState(t *testing.T) {
	d, b := testDaemon(t, nil)
	b.state = session.StateStarting
	b.callErr = session.ErrNotReady

	resp := d.dispatch(context.Background(), &ipc.Request{Type: ipc.TypeInvoke, Action: "get_contacts"})
	if resp.ExitCode != ipc.ExitActionErr {
		t.Fatalf("exit code = %d, want %d", resp.ExitCode, ipc.ExitActionErr)
	}
	if !strings.Contains(resp.Stderr, "waiting for the account to log in") {
		t.Fatalf("stderr = %q", resp.Stderr)
	}
}

func TestReadOnlyResultsAreCached(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.TTL = "1m"
	d, b := testDaemon(t, cfg)
	b.result = wire.DBNames{"MicroMsg.db"}

	req := func(noCache bool) *ipc.Response {
		return d.dispatch(context.Background(), &ipc.Request{Type: ipc.TypeInvoke, Action: "get_db_names", NoCache: noCache})
	}

	if first := req(false); first.Cached {
		t.Fatal("first call reported cached")
	}
	second := req(false)
	if !second.Cached {
		t.Fatal("second call not served from cache")
	}
	if b.callCount() != 1 {
		t.Fatalf("agent calls = %d, want 1", b.callCount())
	}
	res := decodeResult(t, second)
	names, ok := res.Data["dbs"].([]any)
	if !ok || len(names) != 1 || names[0] != "MicroMsg.db" {
		t.Fatalf("cached data = %#v", res.Data)
	}

	if third := req(true); third.Cached {
		t.Fatal("no-cache call reported cached")
	}
	if b.callCount() != 2 {
		t.Fatalf("agent calls after no-cache = %d, want 2", b.callCount())
	}
}

func TestWriteActionsAreNeverCached(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.TTL = "1m"
	d, b := testDaemon(t, cfg)

	for i := 0; i < 2; i++ {
		resp := d.dispatch(context.Background(), &ipc.Request{
			Type:   ipc.TypeInvoke,
			Action: "send_text",
			Params: json.RawMessage(`{"msg":"hi","receiver":"filehelper","aters":""}`),
		})
		if resp.Cached {
			t.Fatal("send_text served from cache")
		}
	}
	if b.callCount() != 2 {
		t.Fatalf("agent calls = %d, want 2", b.callCount())
	}
}

func TestCacheTTLHonoursActionGlobs(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.TTL = "30s"
	cfg.Cache.Actions = []string{"get_db_*"}
	d, _ := testDaemon(t, cfg)

	if ttl, ok := d.cacheTTL("get_db_tables"); !ok || ttl != 30*time.Second {
		t.Fatalf("cacheTTL(get_db_tables) = %v, %v", ttl, ok)
	}
	if _, ok := d.cacheTTL("get_contacts"); ok {
		t.Fatal("get_contacts cached despite glob")
	}
	if _, ok := d.cacheTTL("exec_db_query"); ok {
		t.Fatal("exec_db_query is not read-only")
	}

	d.cfg.Cache.TTL = ""
	if _, ok := d.cacheTTL("get_db_tables"); ok {
		t.Fatal("cached without ttl")
	}
}

func TestFailedResultsAreNotCached(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.TTL = "1m"
	d, b := testDaemon(t, cfg)
	b.callErr = errors.New("boom")

	for i := 0; i < 2; i++ {
		d.dispatch(context.Background(), &ipc.Request{Type: ipc.TypeInvoke, Action: "get_contacts"})
	}
	if b.callCount() != 2 {
		t.Fatalf("agent calls = %d, want 2", b.callCount())
	}
}

func TestDispatchActionsListsCatalog(t *testing.T) {
	d, _ := testDaemon(t, nil)

	resp := d.dispatch(context.Background(), &ipc.Request{Type: ipc.TypeActions})
	var acts []action.Action
	if err := json.Unmarshal(resp.Content, &acts); err != nil {
		t.Fatalf("decoding actions: %v", err)
	}
	if len(acts) != len(action.Catalog()) {
		t.Fatalf("actions = %d, want %d", len(acts), len(action.Catalog()))
	}
}

func TestDispatchStatusReportsSession(t *testing.T) {
	d, b := testDaemon(t, nil)
	d.cfg.HTTP.Listen = "127.0.0.1:18080"
	b.state = session.StateFailed
	b.err = errors.New("control socket disconnected")
	_, unsubscribe := d.hub.Subscribe(1)
	defer unsubscribe()

	resp := d.dispatch(context.Background(), &ipc.Request{Type: ipc.TypeStatus})
	var st ipc.Status
	if err := json.Unmarshal(resp.Content, &st); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if st.State != "failed" || st.SelfID != "wxid_self" || st.Subscribers != 1 {
		t.Fatalf("status = %+v", st)
	}
	if st.Error != "control socket disconnected" || st.HTTPListen != "127.0.0.1:18080" {
		t.Fatalf("status = %+v", st)
	}
	if st.PID != os.Getpid() {
		t.Fatalf("pid = %d, want %d", st.PID, os.Getpid())
	}
}

func TestDispatchStatusHidesOrdinaryStop(t *testing.T) {
	d, b := testDaemon(t, nil)
	b.state = session.StateStopped
	b.err = session.ErrStopped

	resp := d.dispatch(context.Background(), &ipc.Request{Type: ipc.TypeStatus})
	var st ipc.Status
	if err := json.Unmarshal(resp.Content, &st); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if st.Error != "" {
		t.Fatalf("error = %q, want empty", st.Error)
	}
}

func TestDispatchShutdownCancelsServe(t *testing.T) {
	d, _ := testDaemon(t, nil)
	called := make(chan struct{}, 1)
	d.shutdown = func() { called <- struct{}{} }

	resp := d.dispatch(context.Background(), &ipc.Request{Type: ipc.TypeShutdown})
	if resp.ExitCode != ipc.ExitOK {
		t.Fatalf("exit code = %d", resp.ExitCode)
	}
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("shutdown not triggered")
	}
}

func TestDispatchPingAndUnknownType(t *testing.T) {
	d, _ := testDaemon(t, nil)

	if resp := d.dispatch(context.Background(), &ipc.Request{Type: ipc.TypePing}); resp.ExitCode != ipc.ExitOK || string(resp.Content) != `"pong"` {
		t.Fatalf("ping = %+v", resp)
	}
	resp := d.dispatch(context.Background(), &ipc.Request{Type: "list_servers"})
	if resp.ExitCode != ipc.ExitUsageErr || !strings.Contains(resp.Stderr, "unknown request type") {
		t.Fatalf("unknown type = %+v", resp)
	}
}

func TestHTTPInvokeGoesThroughCache(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.TTL = "1m"
	d, b := testDaemon(t, cfg)

	for i := 0; i < 3; i++ {
		if res := d.Invoke(context.Background(), "get_msg_types", nil); res.Status != action.StatusOK {
			t.Fatalf("Invoke() = %+v", res)
		}
	}
	if b.callCount() != 1 {
		t.Fatalf("agent calls = %d, want 1", b.callCount())
	}
}

func TestReadyFollowsSessionState(t *testing.T) {
	d, b := testDaemon(t, nil)
	if err := d.ready(); err != nil {
		t.Fatalf("ready() = %v", err)
	}
	b.state = session.StateStarting
	if err := d.ready(); err == nil || !strings.Contains(err.Error(), "starting") {
		t.Fatalf("ready() = %v, want starting error", err)
	}
}

// serveDaemon points the runtime dir at a short path, since unix socket
// paths are length limited.
func serveDaemon(t *testing.T, d *Daemon) (context.CancelFunc, <-chan error) {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "wcfx-d-")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	t.Setenv("XDG_RUNTIME_DIR", dir)
	if err := paths.EnsureDir(paths.RuntimeDir()); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Serve(ctx, "nonce-1") }()
	return cancel, errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	d, b := testDaemon(t, nil)
	cancel, errc := serveDaemon(t, d)
	defer cancel()

	<-b.started
	client := ipc.NewClient(paths.SocketPath(), "nonce-1")
	client.Timeout = 2 * time.Second
	resp, err := client.Send(&ipc.Request{Type: ipc.TypePing})
	if err != nil {
		t.Fatalf("ping over socket: %v", err)
	}
	if resp.ExitCode != ipc.ExitOK {
		t.Fatalf("ping exit code = %d, stderr %q", resp.ExitCode, resp.Stderr)
	}

	cancel()
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Serve() = %v, want nil", err)
	}
	if b.stopCount() != 1 {
		t.Fatalf("Stop called %d times, want 1", b.stopCount())
	}
	if _, err := os.Stat(paths.SocketPath()); !os.IsNotExist(err) {
		t.Fatalf("socket left behind: %v", err)
	}
}

func TestServeReturnsStartFailure(t *testing.T) {
	d, b := testDaemon(t, nil)
	b.startErr = session.ErrLoginNotCompleted
	cancel, errc := serveDaemon(t, d)
	defer cancel()

	err := waitErr(t, errc)
	if !errors.Is(err, session.ErrLoginNotCompleted) {
		t.Fatalf("Serve() = %v, want ErrLoginNotCompleted", err)
	}
	if b.stopCount() != 1 {
		t.Fatalf("Stop called %d times, want 1", b.stopCount())
	}
}

func TestServeShutdownDuringLoginIsClean(t *testing.T) {
	d, b := testDaemon(t, nil)
	b.block = true
	cancel, errc := serveDaemon(t, d)
	defer cancel()

	<-b.started
	client := ipc.NewClient(paths.SocketPath(), "nonce-1")
	client.Timeout = 2 * time.Second
	if _, err := client.Send(&ipc.Request{Type: ipc.TypeShutdown}); err != nil {
		t.Fatalf("shutdown over socket: %v", err)
	}

	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Serve() = %v, want nil", err)
	}
}

func TestServeEndsWhenSessionFails(t *testing.T) {
	d, b := testDaemon(t, nil)
	b.err = errors.New("control socket disconnected")
	close(b.done)
	cancel, errc := serveDaemon(t, d)
	defer cancel()

	err := waitErr(t, errc)
	if err == nil || !strings.Contains(err.Error(), "session ended") {
		t.Fatalf("Serve() = %v, want session ended", err)
	}
}

func TestServeRejectsBadHTTPListen(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Listen = "256.0.0.1:bogus"
	d, _ := testDaemon(t, cfg)
	cancel, errc := serveDaemon(t, d)
	defer cancel()

	if err := waitErr(t, errc); err == nil || !strings.Contains(err.Error(), "http listen") {
		t.Fatalf("Serve() = %v, want http listen error", err)
	}
}
