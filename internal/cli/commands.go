package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/lydakis/wcfx/internal/action"
	"github.com/lydakis/wcfx/internal/cache"
	"github.com/lydakis/wcfx/internal/config"
	"github.com/lydakis/wcfx/internal/daemon"
	"github.com/lydakis/wcfx/internal/ipc"
	"github.com/lydakis/wcfx/internal/paths"
)

var (
	runDaemonFn  = daemon.Run
	cachePurgeFn = cache.Purge
)

// parseCommandFlags accepts only the named boolean flags.
func parseCommandFlags(command string, args []string, allowed ...string) (map[string]bool, int) {
	set := make(map[string]bool, len(args))
	for _, arg := range args {
		ok := false
		for _, name := range allowed {
			if arg == name {
				ok = true
				break
			}
		}
		if !ok {
			fmt.Fprintf(rootStderr, "wcfx: unsupported argument for %s: %s\n", command, arg)
			return nil, ipc.ExitUsageErr
		}
		set[arg] = true
	}
	return set, ipc.ExitOK
}

// request sends req and reports transport or daemon failures on stderr.
func request(nonce string, req *ipc.Request) (*ipc.Response, int) {
	resp, err := sendFn(nonce, req)
	if err != nil {
		fmt.Fprintf(rootStderr, "wcfx: %v\n", err)
		return nil, ipc.ExitInternal
	}
	if resp.ExitCode != ipc.ExitOK {
		if resp.Stderr != "" {
			fmt.Fprintf(rootStderr, "wcfx: %s\n", resp.Stderr)
		}
		return nil, resp.ExitCode
	}
	return resp, ipc.ExitOK
}

func runActionsCommand(args []string) int {
	flags, code := parseCommandFlags("actions", args, "--json")
	if code != ipc.ExitOK {
		return code
	}
	nonce, code := connect()
	if code != ipc.ExitOK {
		return code
	}
	resp, code := request(nonce, &ipc.Request{Type: ipc.TypeActions})
	if code != ipc.ExitOK {
		return code
	}

	if flags["--json"] {
		rootStdout.Write(append(resp.Content, '\n')) //nolint:errcheck
		return ipc.ExitOK
	}

	var acts []action.Action
	if err := json.Unmarshal(resp.Content, &acts); err != nil {
		fmt.Fprintf(rootStderr, "wcfx: decoding action list: %v\n", err)
		return ipc.ExitInternal
	}
	printActionList(rootStdout, acts)
	return ipc.ExitOK
}

func printActionList(w io.Writer, acts []action.Action) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, a := range acts {
		fmt.Fprintf(tw, "%s\t%s\n", a.Name, a.Description)
	}
	tw.Flush()
}

func runStatusCommand(args []string) int {
	flags, code := parseCommandFlags("status", args, "--json")
	if code != ipc.ExitOK {
		return code
	}
	nonce, code := connectRunning()
	if code != ipc.ExitOK {
		return code
	}
	resp, code := request(nonce, &ipc.Request{Type: ipc.TypeStatus})
	if code != ipc.ExitOK {
		return code
	}

	var st ipc.Status
	if err := json.Unmarshal(resp.Content, &st); err != nil {
		fmt.Fprintf(rootStderr, "wcfx: decoding status: %v\n", err)
		return ipc.ExitInternal
	}
	if flags["--json"] {
		rootStdout.Write(append(resp.Content, '\n')) //nolint:errcheck
	} else {
		printStatus(rootStdout, st)
	}
	if st.State == "failed" {
		return ipc.ExitActionErr
	}
	return ipc.ExitOK
}

func printStatus(w io.Writer, st ipc.Status) {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "state:\t%s\n", st.State)
	if st.SelfID != "" {
		fmt.Fprintf(tw, "self_id:\t%s\n", st.SelfID)
	}
	fmt.Fprintf(tw, "control_addr:\t%s\n", st.ControlAddr)
	fmt.Fprintf(tw, "event_addr:\t%s\n", st.EventAddr)
	if st.HTTPListen != "" {
		fmt.Fprintf(tw, "http_listen:\t%s\n", st.HTTPListen)
	}
	fmt.Fprintf(tw, "subscribers:\t%d\n", st.Subscribers)
	fmt.Fprintf(tw, "pid:\t%d\n", st.PID)
	if st.Error != "" {
		fmt.Fprintf(tw, "error:\t%s\n", st.Error)
	}
	tw.Flush()
}

func runPingCommand(args []string) int {
	if _, code := parseCommandFlags("ping", args); code != ipc.ExitOK {
		return code
	}
	nonce, code := connectRunning()
	if code != ipc.ExitOK {
		return code
	}
	if _, code := request(nonce, &ipc.Request{Type: ipc.TypePing}); code != ipc.ExitOK {
		return code
	}
	fmt.Fprintln(rootStdout, "pong")
	return ipc.ExitOK
}

func runShutdownCommand(args []string) int {
	if _, code := parseCommandFlags("shutdown", args); code != ipc.ExitOK {
		return code
	}
	nonce, err := connectFn()
	if errors.Is(err, daemon.ErrNotRunning) {
		fmt.Fprintln(rootStderr, "wcfx: daemon not running")
		return ipc.ExitOK
	}
	if err != nil {
		fmt.Fprintf(rootStderr, "wcfx: %v\n", err)
		return ipc.ExitInternal
	}
	if _, code := request(nonce, &ipc.Request{Type: ipc.TypeShutdown}); code != ipc.ExitOK {
		return code
	}
	fmt.Fprintln(rootStdout, "shutting down")
	return ipc.ExitOK
}

func runServeCommand(args []string) int {
	if _, code := parseCommandFlags("serve", args); code != ipc.ExitOK {
		return code
	}
	if err := runDaemonFn(daemon.Options{Foreground: true}); err != nil {
		fmt.Fprintf(rootStderr, "wcfx: %v\n", err)
		return ipc.ExitInternal
	}
	return ipc.ExitOK
}

func runInitCommand(args []string) int {
	flags, code := parseCommandFlags("init", args, "--force")
	if code != ipc.ExitOK {
		return code
	}

	path := paths.ConfigFile()
	if _, err := os.Stat(path); err == nil && !flags["--force"] {
		fmt.Fprintf(rootStderr, "wcfx: %s already exists (use --force to overwrite)\n", path)
		return ipc.ExitUsageErr
	}
	if err := config.SaveTo(path, config.Default()); err != nil {
		fmt.Fprintf(rootStderr, "wcfx: writing config: %v\n", err)
		return ipc.ExitInternal
	}
	fmt.Fprintf(rootStdout, "wrote %s\n", path)
	return ipc.ExitOK
}

func runCacheCommand(args []string) int {
	if len(args) != 1 || args[0] != "clear" {
		fmt.Fprintln(rootStderr, "wcfx: usage: wcfx cache clear")
		return ipc.ExitUsageErr
	}
	n, err := cachePurgeFn()
	if err != nil {
		fmt.Fprintf(rootStderr, "wcfx: clearing cache: %v\n", err)
		return ipc.ExitInternal
	}
	fmt.Fprintf(rootStdout, "removed %d cached results\n", n)
	return ipc.ExitOK
}
