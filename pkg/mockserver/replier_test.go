package mockserver

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEchoReplier_SplitsOnWords(t *testing.T) {
	chunks, err := EchoReplier{}.Reply(context.Background(), "a b")
	require.NoError(t, err)
	require.Equal(t, []string{"You ", "said: ", "a ", "b"}, chunks)
}

func TestScript_Reply(t *testing.T) {
	s, err := LoadScript(strings.NewReader(`
replies:
  - prompt: Hello
    chunks: ["Hi", "!"]
  - prompt: story
    text: once upon
  - prompt: fail
    error: boom
`))
	require.NoError(t, err)
	ctx := context.Background()

	chunks, err := s.Reply(ctx, " hello ")
	require.NoError(t, err)
	require.Equal(t, []string{"Hi", "!"}, chunks)

	chunks, err = s.Reply(ctx, "story")
	require.NoError(t, err)
	require.Equal(t, []string{"once ", "upon"}, chunks)

	_, err = s.Reply(ctx, "fail")
	require.EqualError(t, err, "boom")

	chunks, err = s.Reply(ctx, "other")
	require.NoError(t, err)
	require.Equal(t, "You said: other", strings.Join(chunks, ""))
}

func TestLoadScript_RejectsBlankPrompt(t *testing.T) {
	_, err := LoadScript(strings.NewReader("replies:\n  - chunks: [x]\n"))
	require.Error(t, err)
}
