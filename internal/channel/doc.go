// Package channel carries frames between the bridge and the agent.
//
// [Socket] is one nng PAIR0 connection with independent send and receive
// timeouts. It never reconnects: a severed socket surfaces as [ErrClosed]
// or a [*TransportError] and the owner decides what to do. A receive
// timeout is reported as [ErrTimeout], distinct from both.
//
// [Control] layers a synchronous call on one [Conn]: encode, send, receive
// exactly one reply, decode. It has no correlation id, so callers must
// never overlap calls on the same Control.
package channel
