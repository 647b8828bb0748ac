// Package ipc is the CLI-to-daemon protocol: one JSON request and one JSON
// response per Unix socket connection, authenticated by a nonce and the
// peer's uid.
package ipc

import (
	"encoding/json"
)

// Request types.
const (
	TypeInvoke   = "invoke"   // run Action with Params
	TypeActions  = "actions"  // list the action catalog
	TypeStatus   = "status"   // report session state
	TypePing     = "ping"     // liveness and nonce check
	TypeShutdown = "shutdown" // stop the daemon
)

// Request is sent from the CLI to the daemon over the Unix socket.
type Request struct {
	Nonce  string          `json:"nonce"`
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"` // correlates daemon log lines with a CLI run
	Action string          `json:"action,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// NoCache bypasses the result cache for read-only actions.
	NoCache bool `json:"no_cache,omitempty"`
}

// Response is sent from the daemon back to the CLI. Content is JSON: an
// action result for invoke, otherwise a type-specific document.
type Response struct {
	Content  json.RawMessage `json:"content,omitempty"`
	ExitCode int             `json:"exit_code"`
	Stderr   string          `json:"stderr,omitempty"`
	Cached   bool            `json:"cached,omitempty"`
}

// Exit codes.
const (
	ExitOK        = 0
	ExitActionErr = 1 // the agent call failed or returned an error result
	ExitUsageErr  = 2 // unknown action or bad parameters
	ExitInternal  = 3
)

// Status is the Content of a status response.
type Status struct {
	State       string `json:"state"`
	Error       string `json:"error,omitempty"` // why the session ended, if it has
	SelfID      string `json:"self_id,omitempty"`
	ControlAddr string `json:"control_addr"`
	EventAddr   string `json:"event_addr"`
	HTTPListen  string `json:"http_listen,omitempty"`
	Subscribers int    `json:"subscribers"`
	PID         int    `json:"pid"`
}
