package connection

import "fmt"

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateChange describes one transition. Err is set when the transition was caused by a
// transport failure, and is always a *ConnectionError in that case.
type StateChange struct {
	From State
	To   State
	Err  error
}

// Listener receives inbound frames and state transitions. Frames are delivered from a single
// goroutine in wire order, and never before the StateOpen transition of their connection.
type Listener interface {
	HandleFrame(frame []byte)
	HandleStateChange(change StateChange)
}
