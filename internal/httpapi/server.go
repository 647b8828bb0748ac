// Package httpapi is the HTTP façade: action calls on POST /api and the
// event stream as a websocket on GET /events.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lydakis/wcfx/internal/action"
	"github.com/lydakis/wcfx/internal/events"
)

const (
	maxBodyBytes = 1 << 20

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Invoker runs one named action. *action.Mapper implements it, as does the
// daemon's caching wrapper.
type Invoker interface {
	Invoke(ctx context.Context, name string, params map[string]any) action.Result
}

// Request is the POST /api body.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

// Server serves the façade on one TCP listener.
type Server struct {
	Invoker Invoker
	Hub     *events.Hub

	// Ready reports whether the session can take calls; /healthz answers
	// 503 with its error. Nil means always ready.
	Ready func() error

	// Logger receives request failures. If nil, slog.Default() is used.
	Logger *slog.Logger

	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api", s.handleAPI)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger().Error("http server error", "error", err)
		}
	}()
	s.logger().Info("http façade listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones. Event
// streams end when the hub closes.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	logger := s.logger().With("request_id", uuid.NewString())

	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		logger.Warn("invalid api request body", "error", err)
		writeJSON(w, http.StatusBadRequest, action.Result{
			Status: action.StatusError,
			Msg:    action.MsgBadParams,
			Data:   map[string]any{},
		})
		return
	}

	start := time.Now()
	result := s.Invoker.Invoke(r.Context(), req.Action, req.Params)
	logger.Debug("api call", "action", req.Action, "status", result.Status, "duration", time.Since(start))

	// The outcome travels in the body; HTTP status is 200 for every
	// dispatched call.
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Ready != nil {
		if err := s.Ready(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		http.Error(w, "event stream disabled", http.StatusNotFound)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger().Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, cancel := s.Hub.Subscribe(events.DefaultBuffer)
	defer cancel()
	logger := s.logger().With("subscriber", sub.ID, "remote", r.RemoteAddr)
	logger.Info("event stream opened")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		readPump(conn)
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				logger.Info("event stream closed by server")
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				logger.Info("event stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Info("event stream ping failed", "error", err)
				return
			}
		case <-closed:
			logger.Info("event stream closed by client", "dropped", sub.Dropped())
			return
		}
	}
}

// readPump discards client frames and returns when the client goes away
// or stops answering pings.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
