package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/lydakis/wcfx/internal/action"
	"github.com/lydakis/wcfx/internal/ipc"
)

func runHelpCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printRootHelp(stdout)
		return ipc.ExitOK
	}
	if len(args) != 1 {
		fmt.Fprintln(stderr, "wcfx: usage: wcfx help <action>")
		return ipc.ExitUsageErr
	}
	act, ok := action.Lookup(args[0])
	if !ok {
		fmt.Fprintf(stderr, "wcfx: unknown action: %s\n", args[0])
		return ipc.ExitUsageErr
	}
	printActionHelp(stdout, act)
	return ipc.ExitOK
}

func printActionHelp(w io.Writer, act action.Action) {
	fmt.Fprintf(w, "Usage: wcfx %s [FLAGS]\n", act.Name)
	if act.Description != "" {
		fmt.Fprintf(w, "\nDescription:\n  %s\n", act.Description)
	}

	fmt.Fprintln(w, "\nParameters:")
	if len(act.Params) == 0 {
		fmt.Fprintln(w, "  (none)")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, p := range act.Params {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(tw, "  %s <%s>\t%s\t%s\n", paramFlagName(p.Name), p.Type, req, p.Description)
		}
		tw.Flush()
	}

	fmt.Fprintln(w, "\nCall flags:")
	printGlobalFlags(w)

	if act.ReadOnly {
		fmt.Fprintln(w, "\nRead-only: results are cached when cache.ttl is set.")
	}
}

func printGlobalFlags(w io.Writer) {
	fmt.Fprintln(w, "  --output, -o <data|json|pretty>  Output mode (default data)")
	fmt.Fprintln(w, "  --json                           Same as --output json")
	fmt.Fprintln(w, "  --no-cache                       Bypass the result cache")
	fmt.Fprintln(w, "  --verbose, -v                    Report cache hits on stderr")
	fmt.Fprintln(w, "  --quiet, -q                      Suppress error messages")
	fmt.Fprintln(w, "  --help, -h                       Show help for the action")
}
