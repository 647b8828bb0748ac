package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/lydakis/wcfx/internal/channel"
	"github.com/lydakis/wcfx/internal/wire"
)

// loggedIn is the IS_LOGIN status for an authenticated account.
const loggedIn wire.Status = 1

// waitForLogin polls IS_LOGIN until the agent reports a logged-in account.
// It gives up on cancellation and on a control timeout or disconnect
// rather than polling a dead agent forever. Other transport errors are
// retried on the next tick.
func (s *Session) waitForLogin(ctx context.Context) error {
	logger := s.logger()
	clk := s.clock()
	announced := false

	for attempt := 1; ; attempt++ {
		resp, err := s.call(wire.Request{Func: wire.FuncIsLogin})
		if err != nil {
			var callErr *channel.CallError
			if errors.As(err, &callErr) && callErr.Kind != channel.CallTransport {
				return fmt.Errorf("%w: %v", ErrLoginNotCompleted, err)
			}
			logger.Warn("login check failed", "attempt", attempt, "error", err)
		} else if st, ok := resp.Result.(wire.Status); ok && st == loggedIn {
			return nil
		} else if !announced {
			logger.Info("agent is not logged in, waiting for login")
			announced = true
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrLoginNotCompleted, ctx.Err())
		case <-clk.After(s.cfg.LoginPollInterval):
		}
	}
}
