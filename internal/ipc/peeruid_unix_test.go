//go:build linux || darwin

package ipc

import (
	"fmt"
	"net"
	"os"
	"testing"
	"time"
)

func TestPeerUIDMatchesCurrentUserForSelfConnection(t *testing.T) {
	// Short fixed directory: unix socket paths are length limited and
	// t.TempDir() can exceed that on darwin.
	socketPath := fmt.Sprintf("/tmp/wcfx-peer-%d.sock", time.Now().UnixNano())
	_ = os.Remove(socketPath)
	defer os.Remove(socketPath) //nolint:errcheck

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen unix: %v", err)
	}
	defer ln.Close()

	type result struct {
		ok  bool
		err error
	}
	results := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			results <- result{err: err}
			return
		}
		defer conn.Close()
		ok, err := peerUIDMatchesCurrentUser(conn)
		results <- result{ok: ok, err: err}
	}()

	client, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial unix: %v", err)
	}
	defer client.Close()

	res := <-results
	if res.err != nil {
		t.Fatalf("peerUIDMatchesCurrentUser() error = %v", res.err)
	}
	if !res.ok {
		t.Fatal("peerUIDMatchesCurrentUser() = false, want true")
	}
}

func TestPeerUIDRejectsNonUnixConn(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	if _, err := peerUIDMatchesCurrentUser(a); err == nil {
		t.Fatal("peerUIDMatchesCurrentUser(pipe) error = nil, want error")
	}
}
