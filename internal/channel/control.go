package channel

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lydakis/wcfx/internal/wire"
)

// CallErrorKind classifies a failed control call.
type CallErrorKind int

const (
	// CallTimeout: no reply in time. Retryable.
	CallTimeout CallErrorKind = iota + 1
	// CallDisconnected: the socket is closed. Ends the session.
	CallDisconnected
	// CallTransport: any other socket failure. Retryable.
	CallTransport
	// CallDecode: the reply could not be parsed. Ends the session, since
	// the reply stream can no longer be trusted to line up with requests.
	CallDecode
)

func (k CallErrorKind) String() string {
	switch k {
	case CallTimeout:
		return "timeout"
	case CallDisconnected:
		return "disconnected"
	case CallTransport:
		return "transport"
	case CallDecode:
		return "decode"
	default:
		return fmt.Sprintf("CallErrorKind(%d)", int(k))
	}
}

// CallError is returned by Control.Call.
type CallError struct {
	Kind CallErrorKind
	Func wire.Function
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %s: %s: %v", e.Func, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// IsFatal reports whether the session cannot continue after err.
func IsFatal(err error) bool {
	var callErr *CallError
	if !errors.As(err, &callErr) {
		return false
	}
	return callErr.Kind == CallDisconnected || callErr.Kind == CallDecode
}

type timeoutReceiver interface {
	ReceiveTimeout(d time.Duration) ([]byte, error)
}

// maxStaleReplies bounds how many late replies a call will skip. A late
// reply is recognized only by a function code that differs from the
// current call's: after a timed-out send_text, the next send_text takes
// the late reply as its own. Replies carry no request id to do better.
const maxStaleReplies = 4

// Control runs one call at a time over a Conn. It is not safe for
// concurrent use.
type Control struct {
	conn Conn

	// Logger receives stale-reply diagnostics. If nil, slog.Default() is
	// used.
	Logger *slog.Logger

	// stale counts calls that timed out; their replies may still arrive
	// and must not be taken for the next call's reply.
	stale int
}

// NewControl wraps conn.
func NewControl(conn Conn) *Control {
	return &Control{conn: conn}
}

func (c *Control) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Call sends req and waits up to timeout for its reply. A zero timeout uses
// the connection's receive timeout.
func (c *Control) Call(req wire.Request, timeout time.Duration) (*wire.Response, error) {
	if err := c.conn.Send(wire.Encode(req)); err != nil {
		return nil, callError(req.Func, err)
	}

	for {
		frame, err := c.receive(timeout)
		if err != nil {
			if errors.Is(err, ErrTimeout) && c.stale < maxStaleReplies {
				c.stale++
			}
			return nil, callError(req.Func, err)
		}

		resp, err := wire.Decode(frame)
		if err != nil {
			return nil, &CallError{Kind: CallDecode, Func: req.Func, Err: err}
		}

		if c.stale > 0 && resp.Func != req.Func && resp.Func != wire.FuncReserved {
			c.stale--
			c.logger().Debug("dropping late reply",
				"want", req.Func.String(),
				"got", resp.Func.String(),
			)
			continue
		}
		return resp, nil
	}
}

// Close closes the underlying connection.
func (c *Control) Close() error {
	return c.conn.Close()
}

func (c *Control) receive(timeout time.Duration) ([]byte, error) {
	if tr, ok := c.conn.(timeoutReceiver); ok && timeout > 0 {
		return tr.ReceiveTimeout(timeout)
	}
	return c.conn.Receive()
}

func callError(fn wire.Function, err error) error {
	kind := CallTransport
	switch {
	case errors.Is(err, ErrTimeout):
		kind = CallTimeout
	case errors.Is(err, ErrClosed):
		kind = CallDisconnected
	}
	return &CallError{Kind: kind, Func: fn, Err: err}
}
