package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lydakis/wcfx/internal/action"
	"github.com/lydakis/wcfx/internal/response"
)

type callArgs struct {
	params  map[string]any
	mode    response.Mode
	noCache bool
	verbose bool
	quiet   bool
	help    bool
}

func parseCallArgs(args []string, stdin io.Reader, stdinIsTTY bool) (*callArgs, error) {
	parsed := &callArgs{
		params: make(map[string]any),
		mode:   response.ModeData,
	}

	var positionalJSON string
	hasParamFlags := false
	hasAnyFlags := false
	afterSeparator := false
	modeSet := false

	setMode := func(raw string) error {
		if modeSet {
			return fmt.Errorf("conflicting output flags")
		}
		mode, err := response.ParseMode(raw)
		if err != nil {
			return err
		}
		parsed.mode = mode
		modeSet = true
		return nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			afterSeparator = true
			continue
		}

		if !afterSeparator {
			switch {
			case arg == "-v" || arg == "--verbose":
				parsed.verbose = true
				hasAnyFlags = true
				continue
			case arg == "-q" || arg == "--quiet":
				parsed.quiet = true
				hasAnyFlags = true
				continue
			case arg == "-h" || arg == "--help":
				parsed.help = true
				hasAnyFlags = true
				continue
			case arg == "--no-cache":
				parsed.noCache = true
				hasAnyFlags = true
				continue
			case arg == "--json":
				if err := setMode(string(response.ModeJSON)); err != nil {
					return nil, err
				}
				hasAnyFlags = true
				continue
			case strings.HasPrefix(arg, "--output="):
				if err := setMode(strings.TrimPrefix(arg, "--output=")); err != nil {
					return nil, err
				}
				hasAnyFlags = true
				continue
			case arg == "-o" || arg == "--output":
				if i+1 >= len(args) {
					return nil, fmt.Errorf("missing value for %s", arg)
				}
				i++
				if err := setMode(args[i]); err != nil {
					return nil, err
				}
				hasAnyFlags = true
				continue
			}
		}

		if strings.HasPrefix(arg, "--") {
			flagArg := arg
			if strings.HasPrefix(arg, "--param-") {
				flagArg = "--" + strings.TrimPrefix(arg, "--param-")
			}
			if positionalJSON != "" {
				return nil, fmt.Errorf("cannot mix positional JSON parameters with --flags")
			}

			key, value, err := parseLongFlagValue(args, &i, flagArg)
			if err != nil {
				return nil, err
			}
			putArgValue(parsed.params, key, value)
			hasParamFlags = true
			hasAnyFlags = true
			continue
		}

		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("unsupported short flag: %s", arg)
		}

		if hasParamFlags {
			return nil, fmt.Errorf("unexpected positional argument: %s", arg)
		}
		if positionalJSON != "" {
			return nil, fmt.Errorf("multiple positional arguments are not supported")
		}
		positionalJSON = arg
	}

	if positionalJSON != "" {
		obj, err := parseJSONObject(positionalJSON)
		if err != nil {
			return nil, err
		}
		parsed.params = obj
		return parsed, nil
	}

	if !hasAnyFlags && !stdinIsTTY && stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		trimmed := strings.TrimSpace(string(data))
		if trimmed != "" {
			obj, err := parseJSONObject(trimmed)
			if err != nil {
				return nil, err
			}
			parsed.params = obj
		}
	}

	return parsed, nil
}

// normalizeParams joins repeated flags of string params with commas, the
// list form the agent expects for wxids and aters.
func normalizeParams(act action.Action, params map[string]any) map[string]any {
	for key, value := range params {
		list, ok := value.([]any)
		if !ok {
			continue
		}
		p, ok := act.Param(key)
		if !ok || p.Type != "string" {
			continue
		}
		parts := make([]string, 0, len(list))
		joinable := true
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				joinable = false
				break
			}
			parts = append(parts, s)
		}
		if joinable {
			params[key] = strings.Join(parts, ",")
		}
	}
	return params
}

func parseJSONObject(raw string) (map[string]any, error) {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON parameters: %w", err)
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("JSON parameters must be an object")
	}
	return obj, nil
}

func parseLongFlagValue(args []string, idx *int, token string) (string, any, error) {
	body := strings.TrimPrefix(token, "--")
	if body == "" {
		return "", nil, fmt.Errorf("invalid flag: %s", token)
	}

	if eq := strings.Index(body, "="); eq >= 0 {
		key := body[:eq]
		value := body[eq+1:]
		if key == "" {
			return "", nil, fmt.Errorf("invalid flag: %s", token)
		}
		return key, value, nil
	}

	if *idx+1 < len(args) && !strings.HasPrefix(args[*idx+1], "--") {
		*idx = *idx + 1
		return body, args[*idx], nil
	}

	return body, true, nil
}

func putArgValue(dst map[string]any, key string, value any) {
	if existing, ok := dst[key]; ok {
		switch v := existing.(type) {
		case []any:
			dst[key] = append(v, value)
		default:
			dst[key] = []any{v, value}
		}
		return
	}
	dst[key] = value
}
