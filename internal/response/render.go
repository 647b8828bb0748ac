// Package response turns action results into CLI output and exit codes.
package response

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/lydakis/wcfx/internal/action"
	"github.com/lydakis/wcfx/internal/ipc"
)

// Mode selects how Render prints a result.
type Mode string

const (
	// ModeData prints only the result data, indented. A bare string result
	// prints as plain text.
	ModeData Mode = "data"
	// ModeJSON prints the whole result as one compact JSON line.
	ModeJSON Mode = "json"
	// ModePretty prints the whole result indented.
	ModePretty Mode = "pretty"
)

// ParseMode validates a --output value. Empty means ModeData.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeData, nil
	case ModeData, ModeJSON, ModePretty:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown output mode %q, want data, json or pretty", s)
	}
}

// ExitCode maps a result's status onto the CLI exit codes.
func ExitCode(r action.Result) int {
	switch {
	case r.Status == action.StatusOK:
		return ipc.ExitOK
	case r.Status == action.StatusNotImplemented:
		return ipc.ExitUsageErr
	case r.Status == action.StatusError && r.Msg == action.MsgBadParams:
		return ipc.ExitUsageErr
	default:
		return ipc.ExitActionErr
	}
}

// Encode marshals r for the IPC and cache layers.
func Encode(r action.Result) (json.RawMessage, error) {
	if r.Data == nil {
		r.Data = map[string]any{}
	}
	return json.Marshal(r)
}

// Decode parses a result produced by Encode.
func Decode(raw json.RawMessage) (action.Result, error) {
	var r action.Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return action.Result{}, fmt.Errorf("decoding result: %w", err)
	}
	if r.Data == nil {
		r.Data = map[string]any{}
	}
	return r, nil
}

// Render formats raw, an encoded result, for stdout.
func Render(raw json.RawMessage, mode Mode) ([]byte, error) {
	switch mode {
	case ModeJSON:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, fmt.Errorf("rendering result: %w", err)
		}
		return ensureTrailingNewline(buf.Bytes()), nil
	case ModePretty:
		return indent(raw)
	}

	var r struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("rendering result: %w", err)
	}
	if len(r.Data) == 0 {
		return nil, nil
	}
	if str, ok := r.Data["str"]; ok && len(r.Data) == 1 {
		var s string
		if json.Unmarshal(str, &s) == nil {
			return ensureTrailingNewline([]byte(s)), nil
		}
	}
	if len(r.Data) == 1 {
		for _, v := range r.Data {
			return indent(v)
		}
	}
	data, err := json.Marshal(r.Data)
	if err != nil {
		return nil, fmt.Errorf("rendering result: %w", err)
	}
	return indent(data)
}

func indent(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("rendering result: %w", err)
	}
	return ensureTrailingNewline(buf.Bytes()), nil
}

func ensureTrailingNewline(out []byte) []byte {
	if len(out) == 0 {
		return out
	}
	if out[len(out)-1] != '\n' {
		return append(out, '\n')
	}
	return out
}
