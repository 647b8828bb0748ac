package agent

import (
	"fmt"
	"os/exec"
	"strings"
)

type lookPathFunc func(file string) (string, error)

var lookPathFn lookPathFunc = exec.LookPath

// CheckLauncher reports whether the launcher can be executed. A bare name
// is searched in PATH; a path containing a separator is checked as is.
func (p *Process) CheckLauncher() error {
	if p.Skip {
		return nil
	}
	return checkLauncherWithLookup(p.command(), lookPathFn)
}

func checkLauncherWithLookup(command string, lookup lookPathFunc) error {
	if lookup == nil {
		lookup = exec.LookPath
	}
	command = trimBalancedQuotes(strings.TrimSpace(command))
	if command == "" {
		return fmt.Errorf("agent launcher not configured")
	}
	if _, err := lookup(command); err != nil {
		return fmt.Errorf("agent launcher %q not found (set [agent] command, or skip = true when the agent is injected elsewhere)", command)
	}
	return nil
}

func trimBalancedQuotes(token string) string {
	if len(token) < 2 {
		return token
	}
	start := token[0]
	end := token[len(token)-1]
	if (start == '\'' && end == '\'') || (start == '"' && end == '"') {
		return token[1 : len(token)-1]
	}
	return token
}
