package action

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/lydakis/wcfx/internal/wire"
)

// Result status codes.
const (
	StatusOK             = 200
	StatusNotImplemented = 404
	StatusError          = 500
)

// Result messages for the non-200 outcomes.
const (
	MsgOK            = "ok"
	MsgBadParams     = "bad parameters"
	MsgResponseError = "response error"
)

// Result is what every invocation produces, whatever the outcome.
type Result struct {
	Status int            `json:"status"`
	Msg    string         `json:"msg"`
	Data   map[string]any `json:"data"`
}

// Caller issues one control call. *session.Session implements it.
type Caller interface {
	Call(ctx context.Context, req wire.Request) (*wire.Response, error)
}

// Mapper turns named actions with loosely typed params into control calls.
type Mapper struct {
	Caller Caller

	// Logger receives invocation failures. If nil, slog.Default() is used.
	Logger *slog.Logger
}

func (m *Mapper) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Invoke resolves name, builds its request from params, and calls the agent.
// Resolution and parameter failures never reach the agent.
func (m *Mapper) Invoke(ctx context.Context, name string, params map[string]any) Result {
	act, ok := Lookup(name)
	if !ok {
		m.logger().Warn("unknown action", "action", name)
		return Result{Status: StatusNotImplemented, Msg: name + ": not implemented", Data: map[string]any{}}
	}

	payload, err := act.Payload(params)
	if err != nil {
		m.logger().Warn("invalid action params", "action", name, "error", err)
		return Result{Status: StatusError, Msg: MsgBadParams, Data: map[string]any{}}
	}

	resp, err := m.Caller.Call(ctx, wire.Request{Func: act.Func, Payload: payload})
	if err != nil {
		m.logger().Error("action call failed", "action", name, "error", err)
		return Result{Status: StatusError, Msg: MsgResponseError, Data: map[string]any{}}
	}

	return Result{Status: StatusOK, Msg: MsgOK, Data: Flatten(resp.Result)}
}

// Flatten renders a response result as CallResult data, keyed by the
// result's wire name. A nil result gives an empty map.
func Flatten(r wire.Result) map[string]any {
	data := map[string]any{}
	if r == nil {
		return data
	}

	var v any
	switch r := r.(type) {
	case wire.Status:
		v = int(r)
	case wire.Str:
		v = string(r)
	case wire.Event:
		v = r
	case wire.MsgTypes:
		types := make(map[string]string, len(r))
		for code, name := range r {
			types[strconv.FormatInt(int64(code), 10)] = name
		}
		v = types
	case wire.Contacts:
		v = nonNil(r)
	case wire.DBNames:
		v = nonNil(r)
	case wire.DBTables:
		v = nonNil(r)
	case wire.DBRows:
		v = nonNil(r)
	default:
		v = r
	}
	data[wire.ResultKey(r)] = v
	return data
}

func nonNil[S ~[]E, E any](s S) S {
	if s == nil {
		return S{}
	}
	return s
}
