package session

import (
	"errors"
	"time"

	"github.com/lydakis/wcfx/internal/channel"
	"github.com/lydakis/wcfx/internal/wire"
)

// Bounds of the pause after a failed event receive. The pause doubles
// while failures repeat.
const (
	receiveRetryMin = 50 * time.Millisecond
	receiveRetryMax = time.Second
)

// runEvents reads the event socket until it is closed. A receive timeout
// is a polling tick; transport and decode failures cost one frame, not the
// stream.
func (s *Session) runEvents(conn channel.Conn, handler Handler) {
	logger := s.logger()
	clk := s.clock()
	var delivered uint64
	failures := 0

	for {
		frame, err := conn.Receive()
		switch {
		case err == nil:
		case errors.Is(err, channel.ErrTimeout):
			failures = 0
			continue
		case errors.Is(err, channel.ErrClosed):
			logger.Info("event stream closed", "delivered", delivered)
			return
		default:
			failures++
			if failures == 1 {
				logger.Warn("event receive failed, retrying", "error", err)
			} else {
				logger.Debug("event receive failed again", "error", err, "failures", failures)
			}
			<-clk.After(retryDelay(failures))
			continue
		}
		if failures > 1 {
			logger.Info("event receive recovered", "failures", failures)
		}
		failures = 0

		ev, err := wire.DecodeEvent(frame)
		if err != nil {
			logger.Warn("dropping undecodable event", "error", err)
			continue
		}

		delivered++
		s.deliver(handler, ev)
	}
}

func retryDelay(failures int) time.Duration {
	d := receiveRetryMin
	for i := 1; i < failures && d < receiveRetryMax; i++ {
		d *= 2
	}
	if d > receiveRetryMax {
		d = receiveRetryMax
	}
	return d
}

func (s *Session) deliver(handler Handler, ev wire.Event) {
	if handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger().Error("event handler panicked", "panic", r, "msg_id", ev.ID)
		}
	}()
	handler(ev)
}
