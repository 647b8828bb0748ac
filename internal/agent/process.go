// Package agent supervises the native wcf.exe agent process.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommand is the agent launcher looked up relative to the working
// directory, where the agent's own distribution puts it.
const DefaultCommand = "./wcf.exe"

const dialCheckTimeout = 500 * time.Millisecond

var (
	execCommandFn = exec.CommandContext
	dialTimeoutFn = net.DialTimeout
)

// ErrNotRunning is returned by Reachable when nothing listens on the
// control address.
var ErrNotRunning = errors.New("agent not running")

// Process starts and stops the agent with its launcher's start/stop verbs
// and dials the control port to tell whether it is up.
type Process struct {
	// Command is the launcher path. Empty means DefaultCommand.
	Command string
	// Debug passes "debug" to the start verb, enabling the agent's log.
	Debug bool
	// Skip leaves the agent alone: Install and Shutdown become no-ops, for
	// setups where something else injects the agent.
	Skip bool
	// ControlAddr is dialed by Reachable.
	ControlAddr string

	Logger *slog.Logger
}

func (p *Process) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Process) command() string {
	if strings.TrimSpace(p.Command) == "" {
		return DefaultCommand
	}
	return p.Command
}

// Install injects the agent. A stop runs first to clear an injection left
// by an earlier run; its outcome is ignored. Install succeeds when the
// start verb exits 0.
func (p *Process) Install(ctx context.Context) error {
	if p.Skip {
		return nil
	}
	if err := p.CheckLauncher(); err != nil {
		return err
	}
	if err := p.run(ctx, "stop"); err != nil {
		p.logger().Debug("clearing previous injection", "error", err)
	}
	args := []string{"start"}
	if p.Debug {
		args = append(args, "debug")
	}
	if err := p.run(ctx, args...); err != nil {
		return fmt.Errorf("starting agent: %w", err)
	}
	p.logger().Info("agent started", "command", p.command(), "debug", p.Debug)
	return nil
}

// Shutdown removes the agent. It succeeds when the launcher exits 0.
func (p *Process) Shutdown(ctx context.Context) error {
	if p.Skip {
		return nil
	}
	if err := p.run(ctx, "stop"); err != nil {
		return fmt.Errorf("stopping agent: %w", err)
	}
	p.logger().Info("agent stopped", "command", p.command())
	return nil
}

// Reachable reports whether a listener accepts connections on the control
// address.
func (p *Process) Reachable(ctx context.Context) error {
	host, err := hostPort(p.ControlAddr)
	if err != nil {
		return err
	}
	timeout := dialCheckTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	conn, err := dialTimeoutFn("tcp", host, timeout)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotRunning, host, err)
	}
	_ = conn.Close()
	return nil
}

func (p *Process) run(ctx context.Context, args ...string) error {
	cmd := execCommandFn(ctx, p.command(), args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s %s: %w: %s", p.command(), strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("%s %s: %w", p.command(), strings.Join(args, " "), err)
	}
	if len(out) > 0 {
		p.logger().Debug("agent launcher output", "args", args, "output", strings.TrimSpace(string(out)))
	}
	return nil
}

// hostPort turns an nng tcp URL or bare host:port into host:port.
func hostPort(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", errors.New("agent: empty control address")
	}
	if !strings.Contains(addr, "://") {
		return addr, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("agent: parsing control address %q: %w", addr, err)
	}
	if u.Scheme != "tcp" {
		return "", fmt.Errorf("agent: cannot check %q: only tcp addresses are supported", addr)
	}
	return u.Host, nil
}
