package cli

import "sort"

var (
	globalCallFlags = []string{
		"--output",
		"-o",
		"--json",
		"--no-cache",
		"--verbose",
		"-v",
		"--quiet",
		"-q",
		"--help",
		"-h",
	}
	reservedParamFlagNames = map[string]struct{}{
		"output":   {},
		"json":     {},
		"no-cache": {},
		"verbose":  {},
		"quiet":    {},
		"help":     {},
		"version":  {},
	}
)

// paramFlagName is the flag spelling of an action param. Names that collide
// with call flags take the --param- prefix.
func paramFlagName(name string) string {
	if _, ok := reservedParamFlagNames[name]; ok {
		return "--param-" + name
	}
	return "--" + name
}

func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
