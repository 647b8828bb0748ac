package channel

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pair"

	// Registers the tcp:// transport.
	_ "go.nanomsg.org/mangos/v3/transport/tcp"
)

// DefaultTimeout applies to both directions when Options leaves one unset.
const DefaultTimeout = 2000 * time.Millisecond

var (
	// ErrTimeout means no frame arrived (or could be sent) in time. On the
	// receive side it is a polling tick, not a failure.
	ErrTimeout = errors.New("channel: timed out")

	// ErrClosed means the socket was closed locally.
	ErrClosed = errors.New("channel: closed")
)

// TransportError wraps any other socket failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConnectError reports an address that could not be dialed.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("channel: connecting to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Conn is a message-oriented duplex connection. Socket implements it; tests
// substitute in-memory fakes.
type Conn interface {
	Send(msg []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Options configures a Socket.
type Options struct {
	SendTimeout time.Duration
	RecvTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultTimeout
	}
	if o.RecvTimeout <= 0 {
		o.RecvTimeout = DefaultTimeout
	}
	return o
}

var newPairSocket = pair.NewSocket

// Socket is one PAIR0 connection to the agent.
type Socket struct {
	sock mangos.Socket
	opts Options

	// recvMu keeps a per-call receive deadline from leaking into another
	// receiver.
	recvMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewSocket opens an unconnected socket with the given timeouts.
func NewSocket(opts Options) (*Socket, error) {
	opts = opts.withDefaults()

	sock, err := newPairSocket()
	if err != nil {
		return nil, fmt.Errorf("channel: opening pair socket: %w", err)
	}
	if err := sock.SetOption(mangos.OptionSendDeadline, opts.SendTimeout); err != nil {
		sock.Close()
		return nil, fmt.Errorf("channel: setting send timeout: %w", err)
	}
	if err := sock.SetOption(mangos.OptionRecvDeadline, opts.RecvTimeout); err != nil {
		sock.Close()
		return nil, fmt.Errorf("channel: setting receive timeout: %w", err)
	}
	return &Socket{sock: sock, opts: opts}, nil
}

// Dial opens a socket and connects it to addr.
func Dial(addr string, blocking bool, opts Options) (*Socket, error) {
	s, err := NewSocket(opts)
	if err != nil {
		return nil, err
	}
	if err := s.Connect(addr, blocking); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Connect dials addr. A blocking connect fails immediately when the peer is
// unreachable; a non-blocking one returns at once and keeps dialing in the
// background, so the first Send or Receive may time out instead.
func (s *Socket) Connect(addr string, blocking bool) error {
	url := NormalizeAddr(addr)
	var err error
	if blocking {
		err = s.sock.Dial(url)
	} else {
		err = s.sock.DialOptions(url, map[string]interface{}{
			mangos.OptionDialAsynch: true,
		})
	}
	if err != nil {
		return &ConnectError{Addr: url, Err: err}
	}
	return nil
}

// Send writes one frame, waiting up to the send timeout.
func (s *Socket) Send(msg []byte) error {
	return classify("send", s.sock.Send(msg))
}

// Receive reads one frame, waiting up to the receive timeout.
func (s *Socket) Receive() ([]byte, error) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	msg, err := s.sock.Recv()
	if err != nil {
		return nil, classify("receive", err)
	}
	return msg, nil
}

// ReceiveTimeout reads one frame, waiting up to d instead of the configured
// receive timeout.
func (s *Socket) ReceiveTimeout(d time.Duration) ([]byte, error) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if d <= 0 || d == s.opts.RecvTimeout {
		msg, err := s.sock.Recv()
		return msg, classify("receive", err)
	}
	if err := s.sock.SetOption(mangos.OptionRecvDeadline, d); err != nil {
		return nil, classify("receive", err)
	}
	defer s.sock.SetOption(mangos.OptionRecvDeadline, s.opts.RecvTimeout) //nolint:errcheck

	msg, err := s.sock.Recv()
	if err != nil {
		return nil, classify("receive", err)
	}
	return msg, nil
}

// Close releases the socket. It is safe to call more than once and from a
// goroutine other than one blocked in Receive, which then returns ErrClosed.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		err := s.sock.Close()
		if err != nil && !errors.Is(err, mangos.ErrClosed) {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// NormalizeAddr turns host:port into a tcp:// URL and leaves URLs alone.
func NormalizeAddr(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "tcp://" + addr
}

func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mangos.ErrRecvTimeout), errors.Is(err, mangos.ErrSendTimeout):
		return ErrTimeout
	case errors.Is(err, mangos.ErrClosed):
		return ErrClosed
	default:
		return &TransportError{Op: op, Err: err}
	}
}
