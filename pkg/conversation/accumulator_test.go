package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/streamchat/pkg/protocol"
)

func TestReduce_ChunksCollapseIntoOneMessage(t *testing.T) {
	parts := []string{"The ", "quick ", "", "brown ", "fox"}
	c := New()
	for _, p := range parts {
		c = Reduce(c, protocol.Chunk{Content: p})
	}

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, RoleAssistant, msgs[0].Role)
	require.Equal(t, strings.Join(parts, ""), msgs[0].Content)
	require.True(t, msgs[0].IsStreaming)
	require.NoError(t, c.Validate())
}

func TestReduce_HelloScenario(t *testing.T) {
	c := Replay(
		protocol.Typing{},
		protocol.Chunk{Content: "Hel"},
		protocol.Chunk{Content: "lo"},
		protocol.Complete{},
	)
	require.Equal(t, []Message{{ID: 0, Role: RoleAssistant, Content: "Hello", IsStreaming: false}}, c.Messages())
}

func TestReduce_CompleteDoesNotChangeContent(t *testing.T) {
	c := Replay(protocol.Chunk{Content: "abc"})
	before, _ := c.Last()

	c = Reduce(c, protocol.Complete{})
	after, _ := c.Last()
	require.Equal(t, before.Content, after.Content)
	require.False(t, after.IsStreaming)

	// a second complete is a no-op
	require.Equal(t, c, Reduce(c, protocol.Complete{}))
}

func TestReduce_CompleteWithoutChunks(t *testing.T) {
	require.Equal(t, 0, Replay(protocol.Complete{}).Len())

	c := New().AppendUser("hi")
	require.Equal(t, c, Reduce(c, protocol.Complete{}))
}

func TestReduce_ChunkAfterCompleteStartsNewMessage(t *testing.T) {
	c := Replay(
		protocol.Chunk{Content: "one"},
		protocol.Complete{},
		protocol.Chunk{Content: "two"},
	)
	msgs := c.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "one", msgs[0].Content)
	require.False(t, msgs[0].IsStreaming)
	require.Equal(t, "two", msgs[1].Content)
	require.True(t, msgs[1].IsStreaming)
	require.NotEqual(t, msgs[0].ID, msgs[1].ID)
}

func TestReduce_ChunkAfterUserMessageStartsAssistantMessage(t *testing.T) {
	c := New().AppendUser("Hi")
	c = Reduce(c, protocol.Chunk{Content: "Hello"})

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, RoleUser, msgs[0].Role)
	require.Equal(t, RoleAssistant, msgs[1].Role)
}

func TestReduce_ErrorAfterStreamingChunk(t *testing.T) {
	c := Replay(
		protocol.Chunk{Content: "partial"},
		protocol.Error{Message: "rate limited"},
	)
	require.Equal(t, []Message{
		{ID: 0, Role: RoleAssistant, Content: "partial", IsStreaming: true},
		{ID: 1, Role: RoleSystem, Content: "rate limited", IsStreaming: false},
	}, c.Messages())

	// the dangling partial reply is left streaming and Validate reports it
	require.Error(t, c.Validate())
}

func TestReduce_ErrorNeverMerges(t *testing.T) {
	c := Replay(
		protocol.Error{Message: "a"},
		protocol.Error{Message: "b"},
	)
	msgs := c.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "a", msgs[0].Content)
	require.Equal(t, "b", msgs[1].Content)
}

func TestReduce_ChunkAfterErrorDoesNotMergeIntoSystemMessage(t *testing.T) {
	c := Replay(
		protocol.Error{Message: "oops"},
		protocol.Chunk{Content: "x"},
	)
	msgs := c.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, RoleAssistant, msgs[1].Role)
	require.Equal(t, "x", msgs[1].Content)
}

func TestReduce_TypingAndUnknownAreNoops(t *testing.T) {
	c := New().AppendUser("Hi")
	require.Equal(t, c, Reduce(c, protocol.Typing{}))
	require.Equal(t, c, Reduce(c, protocol.Unknown{Kind: "bogus"}))
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	base := Replay(protocol.Chunk{Content: "a"})
	snapshot := base.Messages()

	next := Reduce(base, protocol.Chunk{Content: "b"})
	_ = Reduce(base, protocol.Complete{})
	_ = base.AppendUser("u")

	require.Equal(t, snapshot, base.Messages())
	last, _ := next.Last()
	require.Equal(t, "ab", last.Content)
}

func TestReplay_Deterministic(t *testing.T) {
	events := []protocol.Event{
		protocol.Typing{},
		protocol.Chunk{Content: "x"},
		protocol.Error{Message: "e"},
		protocol.Chunk{Content: "y"},
		protocol.Chunk{Content: "z"},
		protocol.Complete{},
		protocol.Complete{},
	}
	require.Equal(t, Replay(events...), Replay(events...))
}

func TestValidate_RejectsStreamingNonAssistant(t *testing.T) {
	c := Conversation{messages: []Message{{Role: RoleUser, IsStreaming: true}}}
	require.Error(t, c.Validate())
}
