package channel

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lydakis/wcfx/internal/wire"
)

// echoConn answers every request with a Str reply tagged by the request's
// text payload. Replies queue in send order.
type echoConn struct {
	mu      sync.Mutex
	replies [][]byte
	sent    int
}

func (c *echoConn) Send(msg []byte) error {
	req, err := wire.DecodeRequest(msg)
	if err != nil {
		return err
	}
	tag := ""
	if txt, ok := req.Payload.(wire.TextMsg); ok {
		tag = txt.Msg
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	c.replies = append(c.replies, wire.EncodeResponse(wire.Response{Func: req.Func, Result: wire.Str("reply-" + tag)}))
	return nil
}

func (c *echoConn) Receive() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return nil, ErrTimeout
	}
	frame := c.replies[0]
	c.replies = c.replies[1:]
	return frame, nil
}

func (c *echoConn) Close() error { return nil }

// scriptedConn returns queued frames and errors in order.
type scriptedConn struct {
	steps []func() ([]byte, error)
	sends [][]byte
}

func (c *scriptedConn) Send(msg []byte) error {
	c.sends = append(c.sends, msg)
	return nil
}

func (c *scriptedConn) Receive() ([]byte, error) {
	if len(c.steps) == 0 {
		return nil, ErrTimeout
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	return step()
}

func (c *scriptedConn) Close() error { return nil }

func TestCallRepliesInFIFOOrder(t *testing.T) {
	ctl := NewControl(&echoConn{})
	for i := 0; i < 20; i++ {
		tag := fmt.Sprintf("%d", i)
		resp, err := ctl.Call(wire.Request{Func: wire.FuncSendTxt, Payload: wire.TextMsg{Msg: tag}}, 0)
		if err != nil {
			t.Fatalf("Call(%d) error = %v", i, err)
		}
		if want := wire.Str("reply-" + tag); resp.Result != want {
			t.Fatalf("Call(%d) result = %#v, want %#v", i, resp.Result, want)
		}
	}
}

func TestCallClassifiesTransportFailures(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name  string
		err   error
		kind  CallErrorKind
		fatal bool
	}{
		{"timeout", ErrTimeout, CallTimeout, false},
		{"closed", ErrClosed, CallDisconnected, true},
		{"transport", &TransportError{Op: "receive", Err: boom}, CallTransport, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := &scriptedConn{steps: []func() ([]byte, error){
				func() ([]byte, error) { return nil, tc.err },
			}}
			_, err := NewControl(conn).Call(wire.Request{Func: wire.FuncIsLogin}, 0)
			var callErr *CallError
			if !errors.As(err, &callErr) {
				t.Fatalf("Call() error = %v, want *CallError", err)
			}
			if callErr.Kind != tc.kind {
				t.Fatalf("Kind = %s, want %s", callErr.Kind, tc.kind)
			}
			if callErr.Func != wire.FuncIsLogin {
				t.Fatalf("Func = %s, want FUNC_IS_LOGIN", callErr.Func)
			}
			if IsFatal(err) != tc.fatal {
				t.Fatalf("IsFatal() = %v, want %v", IsFatal(err), tc.fatal)
			}
		})
	}
}

func TestCallDecodeFailureIsFatal(t *testing.T) {
	conn := &scriptedConn{steps: []func() ([]byte, error){
		func() ([]byte, error) { return []byte{0x0a, 0x05, 'a'}, nil },
	}}
	_, err := NewControl(conn).Call(wire.Request{Func: wire.FuncGetSelfWxid}, 0)
	var callErr *CallError
	if !errors.As(err, &callErr) || callErr.Kind != CallDecode {
		t.Fatalf("Call() error = %v, want decode CallError", err)
	}
	var decErr *wire.DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("Call() error = %v, want wrapped *wire.DecodeError", err)
	}
	if !IsFatal(err) {
		t.Fatal("IsFatal(decode) = false, want true")
	}
}

func TestCallSendFailureSkipsReceive(t *testing.T) {
	conn := &failingSendConn{err: ErrClosed}
	_, err := NewControl(conn).Call(wire.Request{Func: wire.FuncSendTxt}, 0)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("Call() error = %v, want ErrClosed", err)
	}
	if conn.received {
		t.Fatal("Receive called after failed send")
	}
}

type failingSendConn struct {
	err      error
	received bool
}

func (c *failingSendConn) Send([]byte) error { return c.err }
func (c *failingSendConn) Receive() ([]byte, error) {
	c.received = true
	return nil, ErrTimeout
}
func (c *failingSendConn) Close() error { return nil }

func TestCallDropsLateReplyAfterTimeout(t *testing.T) {
	late := wire.EncodeResponse(wire.Response{Func: wire.FuncGetContacts, Result: wire.Contacts{}})
	fresh := wire.EncodeResponse(wire.Response{Func: wire.FuncGetSelfWxid, Result: wire.Str("wxid_self")})
	conn := &scriptedConn{steps: []func() ([]byte, error){
		func() ([]byte, error) { return nil, ErrTimeout },
		func() ([]byte, error) { return late, nil },
		func() ([]byte, error) { return fresh, nil },
	}}
	ctl := NewControl(conn)

	if _, err := ctl.Call(wire.Request{Func: wire.FuncGetContacts}, 0); !errors.Is(err, ErrTimeout) {
		t.Fatalf("first Call() error = %v, want ErrTimeout", err)
	}
	resp, err := ctl.Call(wire.Request{Func: wire.FuncGetSelfWxid}, 0)
	if err != nil {
		t.Fatalf("second Call() error = %v", err)
	}
	if resp.Result != wire.Str("wxid_self") {
		t.Fatalf("second Call() result = %#v, want wxid_self", resp.Result)
	}
}

// A late reply to the same function is indistinguishable from the current
// call's reply.
func TestCallTakesLateReplyOfSameFunction(t *testing.T) {
	late := wire.EncodeResponse(wire.Response{Func: wire.FuncSendTxt, Result: wire.Status(-1)})
	fresh := wire.EncodeResponse(wire.Response{Func: wire.FuncSendTxt, Result: wire.Status(0)})
	conn := &scriptedConn{steps: []func() ([]byte, error){
		func() ([]byte, error) { return nil, ErrTimeout },
		func() ([]byte, error) { return late, nil },
		func() ([]byte, error) { return fresh, nil },
	}}
	ctl := NewControl(conn)

	if _, err := ctl.Call(wire.Request{Func: wire.FuncSendTxt}, 0); !errors.Is(err, ErrTimeout) {
		t.Fatalf("first Call() error = %v, want ErrTimeout", err)
	}
	resp, err := ctl.Call(wire.Request{Func: wire.FuncSendTxt}, 0)
	if err != nil {
		t.Fatalf("second Call() error = %v", err)
	}
	if resp.Result != wire.Status(-1) {
		t.Fatalf("second Call() result = %#v, want the late reply", resp.Result)
	}
}

func TestCallUsesPerCallTimeout(t *testing.T) {
	conn := &timeoutConn{}
	if _, err := NewControl(conn).Call(wire.Request{Func: wire.FuncIsLogin}, 250*time.Millisecond); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if conn.got != 250*time.Millisecond {
		t.Fatalf("ReceiveTimeout(%v), want 250ms", conn.got)
	}
}

type timeoutConn struct {
	got time.Duration
}

func (c *timeoutConn) Send([]byte) error { return nil }
func (c *timeoutConn) Receive() ([]byte, error) {
	return nil, errors.New("Receive should not be used when a timeout is given")
}
func (c *timeoutConn) ReceiveTimeout(d time.Duration) ([]byte, error) {
	c.got = d
	return wire.EncodeResponse(wire.Response{Func: wire.FuncIsLogin, Result: wire.Status(1)}), nil
}
func (c *timeoutConn) Close() error { return nil }
