package session

import (
	"fmt"

	"github.com/go-go-golems/streamchat/pkg/connection"
	"github.com/go-go-golems/streamchat/pkg/conversation"
)

// Phase is the session lifecycle as seen by UI surfaces.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseActive
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseActive:
		return "active"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func phaseFor(s connection.State) Phase {
	switch s {
	case connection.StateConnecting:
		return PhaseConnecting
	case connection.StateOpen:
		return PhaseActive
	case connection.StateClosed:
		return PhaseClosed
	default:
		return PhaseIdle
	}
}

// State is the snapshot published to subscribers. Messages is a copy owned by the receiver.
type State struct {
	Phase       Phase
	Connection  connection.State
	Messages    []conversation.Message
	IsComposing bool
}

// CanSubmit reports whether Submit would be accepted in this state.
func (s State) CanSubmit() bool {
	return s.Phase == PhaseActive
}

// LastAssistant returns the most recent assistant message.
func (s State) LastAssistant() (conversation.Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == conversation.RoleAssistant {
			return s.Messages[i], true
		}
	}
	return conversation.Message{}, false
}
