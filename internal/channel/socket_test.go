package channel

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pair"
	_ "go.nanomsg.org/mangos/v3/transport/inproc"
)

func listenPeer(t *testing.T) (mangos.Socket, string) {
	t.Helper()
	addr := fmt.Sprintf("inproc://wcfx-%s-%d", t.Name(), time.Now().UnixNano())
	peer, err := pair.NewSocket()
	if err != nil {
		t.Fatalf("pair.NewSocket() error = %v", err)
	}
	if err := peer.SetOption(mangos.OptionRecvDeadline, time.Second); err != nil {
		t.Fatalf("SetOption() error = %v", err)
	}
	if err := peer.Listen(addr); err != nil {
		t.Fatalf("Listen(%s) error = %v", addr, err)
	}
	t.Cleanup(func() { peer.Close() })
	return peer, addr
}

func TestSocketSendReceive(t *testing.T) {
	peer, addr := listenPeer(t)

	s, err := Dial(addr, true, Options{RecvTimeout: time.Second})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer s.Close()

	if err := s.Send([]byte("ping")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, err := peer.Recv()
	if err != nil {
		t.Fatalf("peer Recv() error = %v", err)
	}
	if string(got) != "ping" {
		t.Fatalf("peer got %q, want ping", got)
	}

	if err := peer.Send([]byte("pong")); err != nil {
		t.Fatalf("peer Send() error = %v", err)
	}
	got, err = s.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if string(got) != "pong" {
		t.Fatalf("Receive() = %q, want pong", got)
	}
}

func TestSocketReceiveTimeoutIsDistinct(t *testing.T) {
	_, addr := listenPeer(t)

	s, err := Dial(addr, true, Options{RecvTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer s.Close()

	if _, err := s.Receive(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Receive() error = %v, want ErrTimeout", err)
	}
	if _, err := s.ReceiveTimeout(10 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("ReceiveTimeout() error = %v, want ErrTimeout", err)
	}
}

func TestSocketCloseUnblocksReceiver(t *testing.T) {
	_, addr := listenPeer(t)

	s, err := Dial(addr, true, Options{RecvTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Receive()
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("Receive() error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive() did not return after Close")
	}
}

func TestBlockingConnectToMissingPeerFails(t *testing.T) {
	_, err := Dial("inproc://wcfx-nobody-listens", true, Options{})
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("Dial() error = %v, want *ConnectError", err)
	}
}

func TestNormalizeAddr(t *testing.T) {
	if got := NormalizeAddr("127.0.0.1:10086"); got != "tcp://127.0.0.1:10086" {
		t.Fatalf("NormalizeAddr() = %q", got)
	}
	if got := NormalizeAddr("tcp://127.0.0.1:10087"); got != "tcp://127.0.0.1:10087" {
		t.Fatalf("NormalizeAddr() = %q", got)
	}
}
