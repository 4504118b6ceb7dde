// Package conversation holds the chat transcript model and the reducer that folds decoded
// protocol events into it.
//
// A Conversation is a value. Every operation returns a new Conversation and leaves the
// receiver untouched, so snapshots handed to subscribers never change underneath them.
package conversation

import (
	"slices"

	"github.com/pkg/errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of the transcript. Content only grows, and only while IsStreaming.
type Message struct {
	ID          uint64 `json:"id"`
	Role        Role   `json:"role"`
	Content     string `json:"content"`
	IsStreaming bool   `json:"is_streaming"`
}

// Conversation is an append-only ordered list of messages.
type Conversation struct {
	messages []Message
	nextID   uint64
}

// New returns an empty conversation.
func New() Conversation {
	return Conversation{}
}

func (c Conversation) Len() int {
	return len(c.messages)
}

// Messages returns a copy of the messages in conversation order.
func (c Conversation) Messages() []Message {
	return slices.Clone(c.messages)
}

// Last returns the final message, if any.
func (c Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Streaming returns the message currently being streamed, if any.
func (c Conversation) Streaming() (Message, bool) {
	last, ok := c.Last()
	if !ok || !last.IsStreaming || last.Role != RoleAssistant {
		return Message{}, false
	}
	return last, true
}

// AppendUser adds a finalized user message.
func (c Conversation) AppendUser(content string) Conversation {
	return c.append(RoleUser, content, false)
}

// AppendSystem adds a finalized system message.
func (c Conversation) AppendSystem(content string) Conversation {
	return c.append(RoleSystem, content, false)
}

func (c Conversation) append(role Role, content string, streaming bool) Conversation {
	msgs := make([]Message, len(c.messages), len(c.messages)+1)
	copy(msgs, c.messages)
	msgs = append(msgs, Message{
		ID:          c.nextID,
		Role:        role,
		Content:     content,
		IsStreaming: streaming,
	})
	return Conversation{messages: msgs, nextID: c.nextID + 1}
}

// updateLast replaces the final message. Callers guarantee the conversation is not empty.
func (c Conversation) updateLast(fn func(m *Message)) Conversation {
	msgs := slices.Clone(c.messages)
	fn(&msgs[len(msgs)-1])
	return Conversation{messages: msgs, nextID: c.nextID}
}

// Validate checks the streaming invariant: at most one streaming message, which must be the
// last one and must belong to the assistant.
func (c Conversation) Validate() error {
	for i, m := range c.messages {
		if !m.IsStreaming {
			continue
		}
		if m.Role != RoleAssistant {
			return errors.Errorf("message %d: %s message is streaming", m.ID, m.Role)
		}
		if i != len(c.messages)-1 {
			return errors.Errorf("message %d: streaming message is not last", m.ID)
		}
	}
	return nil
}
