package cli

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
)

var (
	rootStdout   io.Writer = os.Stdout
	rootStderr   io.Writer = os.Stderr
	rootStdin    io.Reader = os.Stdin
	buildVersion           = "dev"
)

func init() {
	buildVersion = resolveBuildVersion(buildVersion)
}

func handleRootFlags(args []string) (bool, int) {
	if len(args) != 1 {
		return false, 0
	}

	switch args[0] {
	case "--version", "-V", "version":
		fmt.Fprintf(rootStdout, "wcfx %s\n", buildVersion)
		return true, 0
	case "--help", "-h":
		printRootHelp(rootStdout)
		return true, 0
	default:
		return false, 0
	}
}

func resolveBuildVersion(defaultVersion string) string {
	if defaultVersion != "" && defaultVersion != "dev" {
		return defaultVersion
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return defaultVersion
	}
	if info.Main.Version == "" || info.Main.Version == "(devel)" {
		return defaultVersion
	}
	return info.Main.Version
}

func printRootHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  wcfx <action> [--param value ...] [FLAGS]")
	fmt.Fprintln(out, "  wcfx <action> '{\"param\": \"value\"}'")
	fmt.Fprintln(out, "  wcfx actions [--json]")
	fmt.Fprintln(out, "  wcfx help <action>")
	fmt.Fprintln(out, "  wcfx status [--json]")
	fmt.Fprintln(out, "  wcfx ping")
	fmt.Fprintln(out, "  wcfx shutdown")
	fmt.Fprintln(out, "  wcfx serve")
	fmt.Fprintln(out, "  wcfx events")
	fmt.Fprintln(out, "  wcfx mcp")
	fmt.Fprintln(out, "  wcfx init [--force]")
	fmt.Fprintln(out, "  wcfx cache clear")
	fmt.Fprintln(out, "  wcfx completion <bash|zsh|fish>")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Call flags:")
	printGlobalFlags(out)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Global flags:")
	fmt.Fprintln(out, "  --help, -h       Show help")
	fmt.Fprintln(out, "  --version, -V    Show version")
}
