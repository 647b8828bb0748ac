package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lydakis/wcfx/internal/wire"
)

// ErrBadParams marks a params bag that cannot fill the action's payload.
var ErrBadParams = errors.New("bad parameters")

// funcKey is accepted and ignored: callers may echo the function code the
// way the agent's own clients merge it into params.
const funcKey = "func"

// Payload builds the request payload for a from raw params. Params may be
// flat ({"msg": ..., "receiver": ...}) or nested under the variant's wire
// name ({"txt": {"msg": ...}}).
func (a Action) Payload(raw map[string]any) (wire.Payload, error) {
	flat, err := a.flatten(raw)
	if err != nil {
		return nil, err
	}
	args, err := a.coerce(flat)
	if err != nil {
		return nil, err
	}

	str := func(name string) string { s, _ := args[name].(string); return s }

	switch a.Variant {
	case "":
		return nil, nil
	case "str":
		return wire.Str(str(a.Params[0].Name)), nil
	case "txt":
		return wire.TextMsg{Msg: str("msg"), Receiver: str("receiver"), Aters: str("aters")}, nil
	case "file":
		return wire.PathMsg{Path: str("path"), Receiver: str("receiver")}, nil
	case "query":
		return wire.DBQuery{DB: str("db"), SQL: str("sql")}, nil
	case "v":
		return wire.Verification{V3: str("v3"), V4: str("v4")}, nil
	case "m":
		return wire.AddMembers{RoomID: str("roomid"), Wxids: str("wxids")}, nil
	case "xml":
		typ, _ := args["type"].(int64)
		return wire.XMLMsg{Receiver: str("receiver"), Content: str("content"), Path: str("path"), Type: int32(typ)}, nil
	default:
		return nil, fmt.Errorf("action %s: unknown variant %q", a.Name, a.Variant)
	}
}

func (a Action) flatten(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == funcKey {
			continue
		}
		out[k] = v
	}
	if a.Variant == "" {
		return out, nil
	}

	nested, ok := out[a.Variant]
	if !ok {
		return out, nil
	}
	if _, isParam := a.Param(a.Variant); isParam {
		return out, nil
	}
	delete(out, a.Variant)

	switch v := nested.(type) {
	case map[string]any:
		for k, val := range v {
			if _, dup := out[k]; dup {
				return nil, badParams("argument %q given both flat and under %q", k, a.Variant)
			}
			out[k] = val
		}
	case string:
		if a.Variant != "str" {
			return nil, badParams("argument %q must be object, got string", a.Variant)
		}
		if _, dup := out[a.Params[0].Name]; dup {
			return nil, badParams("argument %q given both flat and under %q", a.Params[0].Name, a.Variant)
		}
		out[a.Params[0].Name] = v
	default:
		return nil, badParams("argument %q must be object, got %T", a.Variant, nested)
	}
	return out, nil
}

// coerce keeps the action's params and drops any other key, the way the
// agent's request model ignores extra fields.
func (a Action) coerce(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(a.Params))
	for _, p := range a.Params {
		value, ok := raw[p.Name]
		if !ok || value == nil {
			if p.Required {
				return nil, badParams("missing required argument %q", p.Name)
			}
			continue
		}

		var err error
		switch p.Type {
		case "integer":
			out[p.Name], err = coerceInteger(value, p.Name)
		default:
			out[p.Name], err = coerceString(value, p.Name)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func coerceString(value any, path string) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", badParams("argument %q must be string, got %T", path, value)
	}
	return s, nil
}

func coerceInteger(value any, path string) (int64, error) {
	var i int64
	switch v := value.(type) {
	case int:
		i = int64(v)
	case int32:
		i = int64(v)
	case int64:
		i = v
	case float64:
		if math.Trunc(v) != v {
			return 0, badParams("argument %q must be integer", path)
		}
		i = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, badParams("argument %q must be integer: %v", path, err)
		}
		i = n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, badParams("argument %q must be integer: %v", path, err)
		}
		i = n
	default:
		return 0, badParams("argument %q must be integer, got %T", path, value)
	}
	if i < math.MinInt32 || i > math.MaxInt32 {
		return 0, badParams("argument %q out of range", path)
	}
	return i, nil
}

func badParams(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadParams, fmt.Sprintf(format, args...))
}
