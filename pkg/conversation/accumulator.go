package conversation

import (
	"github.com/go-go-golems/streamchat/pkg/protocol"
)

// Reduce folds one protocol event into the conversation.
//
// Consecutive chunks grow a single streaming assistant message in arrival order. complete
// finalizes it, error appends a system message and leaves any partial reply as it is.
// typing and unknown events do not touch the transcript.
func Reduce(c Conversation, ev protocol.Event) Conversation {
	switch e := ev.(type) {
	case protocol.Chunk:
		if _, ok := c.Streaming(); ok {
			return c.updateLast(func(m *Message) {
				m.Content += e.Content
			})
		}
		return c.append(RoleAssistant, e.Content, true)

	case protocol.Complete:
		if _, ok := c.Streaming(); !ok {
			return c
		}
		return c.updateLast(func(m *Message) {
			m.IsStreaming = false
		})

	case protocol.Error:
		return c.append(RoleSystem, e.Message, false)

	default:
		return c
	}
}

// Replay applies events in order to an empty conversation.
func Replay(events ...protocol.Event) Conversation {
	c := New()
	for _, ev := range events {
		c = Reduce(c, ev)
	}
	return c
}
