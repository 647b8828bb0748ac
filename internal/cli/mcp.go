package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lydakis/wcfx/internal/action"
	"github.com/lydakis/wcfx/internal/ipc"
	"github.com/lydakis/wcfx/internal/logging"
	"github.com/lydakis/wcfx/internal/mcpserver"
	"github.com/lydakis/wcfx/internal/response"
)

var serveMCPFn = mcpserver.Serve

// ipcInvoker runs MCP tool calls through the daemon.
type ipcInvoker struct {
	nonce string
}

func (i *ipcInvoker) Invoke(ctx context.Context, name string, params map[string]any) action.Result {
	if err := ctx.Err(); err != nil {
		return failedResult(action.MsgResponseError)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return failedResult(action.MsgBadParams)
	}

	resp, err := sendFn(i.nonce, &ipc.Request{Type: ipc.TypeInvoke, Action: name, Params: raw})
	if err != nil || len(resp.Content) == 0 {
		return failedResult(action.MsgResponseError)
	}
	res, err := response.Decode(resp.Content)
	if err != nil {
		return failedResult(action.MsgResponseError)
	}
	return res
}

func failedResult(msg string) action.Result {
	return action.Result{Status: action.StatusError, Msg: msg, Data: map[string]any{}}
}

// runMCPCommand serves the action catalog as MCP tools on stdio. Stdout
// carries the protocol, so diagnostics go to stderr.
func runMCPCommand(args []string) int {
	if _, code := parseCommandFlags("mcp", args); code != ipc.ExitOK {
		return code
	}
	nonce, code := connect()
	if code != ipc.ExitOK {
		return code
	}

	logger := logging.New(rootStderr, slog.LevelWarn)
	if err := serveMCPFn(buildVersion, &ipcInvoker{nonce: nonce}, logger); err != nil {
		fmt.Fprintf(rootStderr, "wcfx: mcp: %v\n", err)
		return ipc.ExitInternal
	}
	return ipc.ExitOK
}
