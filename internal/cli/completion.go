package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/lydakis/wcfx/internal/action"
	"github.com/lydakis/wcfx/internal/ipc"
)

// commandNames are the built-in subcommands, offered next to action names.
var commandNames = []string{
	"actions", "cache", "completion", "events", "help", "init",
	"mcp", "ping", "serve", "shutdown", "status",
}

func runCompletionCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "wcfx: usage: wcfx completion <bash|zsh|fish>")
		return ipc.ExitUsageErr
	}

	script, ok := completionScripts[strings.ToLower(args[0])]
	if !ok {
		fmt.Fprintf(stderr, "wcfx: unknown shell for completion: %s\n", args[0])
		return ipc.ExitUsageErr
	}

	_, _ = io.WriteString(stdout, script)
	return ipc.ExitOK
}

// runInternalCompletion answers the completion scripts from the local
// catalog, so completing never starts the daemon.
func runInternalCompletion(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "wcfx: usage: wcfx __complete <words|actions|flags> ...")
		return ipc.ExitUsageErr
	}

	switch args[0] {
	case "words":
		if len(args) != 1 {
			fmt.Fprintln(stderr, "wcfx: usage: wcfx __complete words")
			return ipc.ExitUsageErr
		}
		words := append([]string{}, commandNames...)
		words = append(words, actionNames()...)
		for _, w := range uniqueSorted(words) {
			fmt.Fprintln(stdout, w)
		}
		return ipc.ExitOK
	case "actions":
		if len(args) != 1 {
			fmt.Fprintln(stderr, "wcfx: usage: wcfx __complete actions")
			return ipc.ExitUsageErr
		}
		for _, name := range actionNames() {
			fmt.Fprintln(stdout, name)
		}
		return ipc.ExitOK
	case "flags":
		if len(args) != 2 {
			fmt.Fprintln(stderr, "wcfx: usage: wcfx __complete flags <action>")
			return ipc.ExitUsageErr
		}
		act, ok := action.Lookup(args[1])
		if !ok {
			return ipc.ExitUsageErr
		}
		for _, flag := range actionFlagCompletions(act) {
			fmt.Fprintln(stdout, flag)
		}
		return ipc.ExitOK
	default:
		fmt.Fprintf(stderr, "wcfx: unknown completion query: %s\n", args[0])
		return ipc.ExitUsageErr
	}
}

func actionNames() []string {
	acts := action.Catalog()
	names := make([]string, 0, len(acts))
	for _, a := range acts {
		names = append(names, a.Name)
	}
	return names
}

func actionFlagCompletions(act action.Action) []string {
	flags := append([]string{}, globalCallFlags...)
	for _, p := range act.Params {
		flags = append(flags, paramFlagName(p.Name))
	}
	return uniqueSorted(flags)
}
