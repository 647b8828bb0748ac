package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"reflect"
	"strings"
	"testing"
	"time"
)

type recordedCommand struct {
	name string
	args []string
}

func stubCommand(t *testing.T, exitOK bool) *[]recordedCommand {
	t.Helper()
	old, oldLook := execCommandFn, lookPathFn
	t.Cleanup(func() { execCommandFn, lookPathFn = old, oldLook })
	lookPathFn = func(file string) (string, error) { return file, nil }

	var calls []recordedCommand
	execCommandFn = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		calls = append(calls, recordedCommand{name: name, args: args})
		if exitOK {
			return exec.CommandContext(ctx, "true")
		}
		return exec.CommandContext(ctx, "sh", "-c", "echo injection failed; exit 3")
	}
	return &calls
}

func quietProcess() *Process {
	return &Process{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestInstallRunsStartVerb(t *testing.T) {
	calls := stubCommand(t, true)
	p := quietProcess()
	p.Command = `C:\wcf\wcf.exe`
	p.Debug = true

	if err := p.Install(context.Background()); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	want := []recordedCommand{
		{name: `C:\wcf\wcf.exe`, args: []string{"stop"}},
		{name: `C:\wcf\wcf.exe`, args: []string{"start", "debug"}},
	}
	if !reflect.DeepEqual(*calls, want) {
		t.Fatalf("commands = %+v, want %+v", *calls, want)
	}
}

func TestShutdownRunsStopVerbWithDefaultCommand(t *testing.T) {
	calls := stubCommand(t, true)
	p := quietProcess()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	want := []recordedCommand{{name: DefaultCommand, args: []string{"stop"}}}
	if !reflect.DeepEqual(*calls, want) {
		t.Fatalf("commands = %+v, want %+v", *calls, want)
	}
}

func TestInstallReportsLauncherFailure(t *testing.T) {
	stubCommand(t, false)
	p := quietProcess()

	err := p.Install(context.Background())
	if err == nil {
		t.Fatal("Install() error = nil, want failure")
	}
	if !strings.Contains(err.Error(), "injection failed") {
		t.Fatalf("Install() error = %v, want launcher output", err)
	}
}

func TestSkipLeavesAgentAlone(t *testing.T) {
	calls := stubCommand(t, false)
	p := quietProcess()
	p.Skip = true

	if err := p.Install(context.Background()); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if len(*calls) != 0 {
		t.Fatalf("commands = %+v, want none", *calls)
	}
}

func TestReachableDialsControlPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr().String()

	p := quietProcess()
	p.ControlAddr = "tcp://" + addr
	if err := p.Reachable(context.Background()); err != nil {
		t.Fatalf("Reachable() error = %v", err)
	}

	ln.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Reachable(ctx); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Reachable() after close error = %v, want ErrNotRunning", err)
	}
}

func TestHostPort(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "tcp://127.0.0.1:10086", want: "127.0.0.1:10086"},
		{in: "127.0.0.1:10086", want: "127.0.0.1:10086"},
		{in: "ipc:///tmp/wcf.ipc", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := hostPort(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("hostPort(%q) error = nil, want error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("hostPort(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}
