package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// Handler processes an IPC request and returns a response. ctx is
// cancelled if the client hangs up first.
type Handler func(ctx context.Context, req *Request) *Response

var peerUIDMatchesCurrentUserFn = peerUIDMatchesCurrentUser

// Server listens for IPC connections on a Unix socket.
type Server struct {
	socketPath string
	nonce      string
	handler    Handler

	// Logger receives rejected connections. If nil, slog.Default() is used.
	Logger *slog.Logger

	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a new IPC server.
func NewServer(socketPath, nonce string, handler Handler) *Server {
	return &Server{
		socketPath: socketPath,
		nonce:      nonce,
		handler:    handler,
	}
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Start begins listening for connections. It removes any stale socket file first.
func (s *Server) Start() error {
	_ = os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		ln.Close()
		_ = os.Remove(s.socketPath)
		return fmt.Errorf("setting socket permissions: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	return nil
}

// Stop closes the listener and waits for in-flight connections.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.socketPath)
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // listener closed
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) reject(conn net.Conn, reason string, err error) {
	s.logger().Warn("rejecting ipc connection", "reason", reason, "error", err)
	writeResponse(conn, &Response{ExitCode: ExitInternal, Stderr: reason})
}

func (s *Server) handleConn(conn net.Conn) {
	ok, err := peerUIDMatchesCurrentUserFn(conn)
	if err != nil {
		s.reject(conn, "peer uid check failed", err)
		return
	}
	if !ok {
		s.reject(conn, "peer uid mismatch", nil)
		return
	}

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.reject(conn, "invalid request", err)
		return
	}
	if req.Nonce != s.nonce {
		s.reject(conn, "nonce mismatch", nil)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The client sends nothing after its request, so a completed read means
	// it hung up.
	done := make(chan struct{})
	go func() {
		defer close(done)
		var buf [1]byte
		_, _ = conn.Read(buf[:])
		cancel()
	}()

	resp := s.handler(ctx, &req)
	_ = conn.SetReadDeadline(time.Now())
	<-done
	_ = conn.SetReadDeadline(time.Time{})
	writeResponse(conn, resp)
}

func writeResponse(conn net.Conn, resp *Response) {
	_ = json.NewEncoder(conn).Encode(resp)
}
