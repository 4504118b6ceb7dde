package mockserver

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Replier produces the chunks streamed back for one user message. A returned error is sent
// to the client as an error frame.
type Replier interface {
	Reply(ctx context.Context, message string) ([]string, error)
}

// EchoReplier streams the user's message back word by word.
type EchoReplier struct{}

func (EchoReplier) Reply(_ context.Context, message string) ([]string, error) {
	return splitWords("You said: " + message), nil
}

func splitWords(s string) []string {
	parts := strings.SplitAfter(s, " ")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ScriptEntry maps a prompt to a canned reply. Exactly one of Chunks, Text or Error is used,
// in that order of preference.
type ScriptEntry struct {
	Prompt string   `yaml:"prompt"`
	Chunks []string `yaml:"chunks,omitempty"`
	Text   string   `yaml:"text,omitempty"`
	Error  string   `yaml:"error,omitempty"`
}

// Script answers known prompts from a YAML file and echoes everything else.
//
//	replies:
//	  - prompt: hello
//	    chunks: ["Hel", "lo"]
//	  - prompt: fail
//	    error: rate limited
type Script struct {
	Replies []ScriptEntry `yaml:"replies"`
}

func LoadScript(r io.Reader) (*Script, error) {
	var s Script
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "decode reply script")
	}
	for i, e := range s.Replies {
		if strings.TrimSpace(e.Prompt) == "" {
			return nil, errors.Errorf("reply script entry %d has no prompt", i)
		}
	}
	return &s, nil
}

func (s *Script) Reply(ctx context.Context, message string) ([]string, error) {
	key := strings.ToLower(strings.TrimSpace(message))
	for _, e := range s.Replies {
		if strings.ToLower(strings.TrimSpace(e.Prompt)) != key {
			continue
		}
		switch {
		case len(e.Chunks) > 0:
			return e.Chunks, nil
		case e.Text != "":
			return splitWords(e.Text), nil
		case e.Error != "":
			return nil, errors.New(e.Error)
		default:
			return nil, nil
		}
	}
	return EchoReplier{}.Reply(ctx, message)
}
