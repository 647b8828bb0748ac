package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/lydakis/wcfx/internal/config"
	"github.com/lydakis/wcfx/internal/ipc"
)

var dialEventsFn = func(ctx context.Context, rawURL string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	return conn, err
}

// runEventsCommand prints the daemon's event stream, one JSON object per
// line, until interrupted. The stream is served by the HTTP façade, so
// http.listen must be set.
func runEventsCommand(args []string) int {
	if _, code := parseCommandFlags("events", args); code != ipc.ExitOK {
		return code
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(rootStderr, "wcfx: %v\n", err)
		return ipc.ExitInternal
	}
	if cfg.HTTP.Listen == "" {
		fmt.Fprintln(rootStderr, "wcfx: events need [http] listen set in the config")
		return ipc.ExitUsageErr
	}
	rawURL, err := eventsURL(cfg.HTTP.Listen)
	if err != nil {
		fmt.Fprintf(rootStderr, "wcfx: %v\n", err)
		return ipc.ExitUsageErr
	}

	if _, code := connect(); code != ipc.ExitOK {
		return code
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return streamEvents(ctx, rawURL, rootStdout, rootStderr)
}

func streamEvents(ctx context.Context, rawURL string, stdout, stderr io.Writer) int {
	conn, err := dialEventsFn(ctx, rawURL)
	if err != nil {
		fmt.Fprintf(stderr, "wcfx: connecting to event stream: %v\n", err)
		return ipc.ExitInternal
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ipc.ExitOK
			}
			fmt.Fprintf(stderr, "wcfx: event stream: %v\n", err)
			return ipc.ExitInternal
		}
		stdout.Write(append(bytes.TrimSpace(msg), '\n')) //nolint:errcheck
	}
}

// eventsURL turns http.listen into a dialable websocket URL. Wildcard
// listen hosts are dialed on loopback.
func eventsURL(listen string) (string, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", fmt.Errorf("invalid http.listen %q: %w", listen, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, port), Path: "/events"}
	return u.String(), nil
}
