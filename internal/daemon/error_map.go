package daemon

import (
	"fmt"

	"github.com/lydakis/wcfx/internal/action"
	"github.com/lydakis/wcfx/internal/paths"
	"github.com/lydakis/wcfx/internal/session"
)

// describeFailure explains a non-OK result on the CLI's stderr. The result
// itself stays as the mapper produced it; this only adds the session's view
// of why a call could not be answered.
func describeFailure(res action.Result, state session.State, err error) string {
	if res.Msg != action.MsgResponseError {
		return res.Msg
	}

	switch state {
	case session.StateReady:
		return fmt.Sprintf("%s: the agent call failed, see %s", res.Msg, paths.LogFile())
	case session.StateIdle, session.StateStarting:
		return fmt.Sprintf("%s: session %s, waiting for the account to log in", res.Msg, state)
	default:
		if err != nil {
			return fmt.Sprintf("%s: session %s: %v", res.Msg, state, err)
		}
		return fmt.Sprintf("%s: session %s", res.Msg, state)
	}
}
