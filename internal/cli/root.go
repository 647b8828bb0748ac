package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/lydakis/wcfx/internal/action"
	"github.com/lydakis/wcfx/internal/config"
	"github.com/lydakis/wcfx/internal/daemon"
	"github.com/lydakis/wcfx/internal/ipc"
	"github.com/lydakis/wcfx/internal/paths"
	"github.com/lydakis/wcfx/internal/response"
)

var (
	spawnOrConnectFn = daemon.SpawnOrConnect
	connectFn        = daemon.Connect
	sendFn           = func(nonce string, req *ipc.Request) (*ipc.Response, error) {
		return ipc.NewClient(paths.SocketPath(), nonce).Send(req)
	}
	stdinIsTTYFn = func() bool { return stdinIsTTY(os.Stdin) }
)

// Run is the main CLI entry point. Returns an exit code.
func Run(args []string) int {
	if handled, code := handleRootFlags(args); handled {
		return code
	}
	if len(args) == 0 {
		printRootHelp(rootStdout)
		return ipc.ExitOK
	}

	switch args[0] {
	case "completion":
		return runCompletionCommand(args[1:], rootStdout, rootStderr)
	case "__complete":
		return runInternalCompletion(args[1:], rootStdout, rootStderr)
	case "help":
		return runHelpCommand(args[1:], rootStdout, rootStderr)
	case "actions":
		return runActionsCommand(args[1:])
	case "status":
		return runStatusCommand(args[1:])
	case "ping":
		return runPingCommand(args[1:])
	case "shutdown":
		return runShutdownCommand(args[1:])
	case "serve":
		return runServeCommand(args[1:])
	case "mcp":
		return runMCPCommand(args[1:])
	case "events":
		return runEventsCommand(args[1:])
	case "init":
		return runInitCommand(args[1:])
	case "cache":
		return runCacheCommand(args[1:])
	}

	act, ok := action.Lookup(args[0])
	if !ok {
		fmt.Fprintf(rootStderr, "wcfx: unknown command or action: %s\n", args[0])
		fmt.Fprintln(rootStderr, "Run 'wcfx actions' to list actions.")
		return ipc.ExitUsageErr
	}
	return callAction(act, args[1:])
}

// connect validates the config a spawned daemon would load, then returns
// the nonce of a running daemon, spawning one if needed.
func connect() (string, int) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(rootStderr, "wcfx: %v\n", err)
		return "", ipc.ExitInternal
	}
	if verr := config.Validate(cfg); verr != nil {
		fmt.Fprintf(rootStderr, "wcfx: invalid config: %v\n", verr)
		return "", ipc.ExitUsageErr
	}

	nonce, err := spawnOrConnectFn()
	if err != nil {
		fmt.Fprintf(rootStderr, "wcfx: %v\n", err)
		return "", ipc.ExitInternal
	}
	return nonce, ipc.ExitOK
}

// connectRunning is connect for commands that must not start a daemon.
func connectRunning() (string, int) {
	nonce, err := connectFn()
	if errors.Is(err, daemon.ErrNotRunning) {
		fmt.Fprintln(rootStderr, "wcfx: daemon not running")
		return "", ipc.ExitActionErr
	}
	if err != nil {
		fmt.Fprintf(rootStderr, "wcfx: %v\n", err)
		return "", ipc.ExitInternal
	}
	return nonce, ipc.ExitOK
}

func callAction(act action.Action, rawArgs []string) int {
	parsed, err := parseCallArgs(rawArgs, rootStdin, stdinIsTTYFn())
	if err != nil {
		fmt.Fprintf(rootStderr, "wcfx: %v\n", err)
		return ipc.ExitUsageErr
	}
	if parsed.help {
		printActionHelp(rootStdout, act)
		return ipc.ExitOK
	}

	params, err := json.Marshal(normalizeParams(act, parsed.params))
	if err != nil {
		fmt.Fprintf(rootStderr, "wcfx: invalid parameters: %v\n", err)
		return ipc.ExitUsageErr
	}

	nonce, code := connect()
	if code != ipc.ExitOK {
		return code
	}

	resp, err := sendFn(nonce, &ipc.Request{
		Type:    ipc.TypeInvoke,
		Action:  act.Name,
		Params:  params,
		NoCache: parsed.noCache,
	})
	if err != nil {
		if !parsed.quiet {
			fmt.Fprintf(rootStderr, "wcfx: %v\n", err)
		}
		return ipc.ExitInternal
	}
	return writeCallResponse(resp, parsed, rootStdout, rootStderr)
}

// writeCallResponse prints a successful result in the chosen mode. Failures
// go to stderr; json and pretty modes also print the failed result, so
// scripts always get the status envelope.
func writeCallResponse(resp *ipc.Response, parsed *callArgs, stdout, stderr io.Writer) int {
	if resp == nil {
		return ipc.ExitInternal
	}
	if parsed.verbose && resp.Cached {
		fmt.Fprintln(stderr, "wcfx: cache hit")
	}

	if resp.ExitCode != ipc.ExitOK {
		if !parsed.quiet && resp.Stderr != "" {
			fmt.Fprintf(stderr, "wcfx: %s\n", resp.Stderr)
		}
		if parsed.mode == response.ModeData || len(resp.Content) == 0 {
			return resp.ExitCode
		}
	}
	if len(resp.Content) == 0 {
		return resp.ExitCode
	}

	out, err := response.Render(resp.Content, parsed.mode)
	if err != nil {
		fmt.Fprintf(stderr, "wcfx: %v\n", err)
		return ipc.ExitInternal
	}
	stdout.Write(out) //nolint:errcheck
	return resp.ExitCode
}

func stdinIsTTY(file *os.File) bool {
	info, err := file.Stat()
	if err != nil {
		return true
	}
	return info.Mode()&fs.ModeCharDevice != 0
}
