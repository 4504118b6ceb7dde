package protocol

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingType    = errors.New("frame has no type")
	ErrEmptyMessage   = errors.New("message is empty")
)

// IsDecodeError reports whether err came out of Decode.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrMalformedFrame) || errors.Is(err, ErrMissingType)
}

type inboundFrame struct {
	Type      string  `json:"type"`
	Status    string  `json:"status,omitempty"`
	Content   *string `json:"content,omitempty"`
	Message   *string `json:"message,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// Outbound is a user message addressed to the assistant.
type Outbound struct {
	Text     string
	ClientID string
}

type outboundFrame struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// Decode parses one inbound frame.
func Decode(frame []byte) (Event, error) {
	var f inboundFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return nil, errors.Wrapf(ErrMalformedFrame, "%v", err)
	}
	kind := strings.TrimSpace(f.Type)
	if kind == "" {
		return nil, ErrMissingType
	}

	switch EventType(kind) {
	case EventTypeTyping:
		return Typing{Status: f.Status}, nil
	case EventTypeChunk:
		if f.Content == nil {
			return nil, errors.Wrap(ErrMalformedFrame, "chunk without content")
		}
		return Chunk{Content: *f.Content}, nil
	case EventTypeComplete:
		return Complete{Timestamp: parseTimestamp(f.Timestamp)}, nil
	case EventTypeError:
		msg := ""
		if f.Message != nil {
			msg = *f.Message
		}
		return Error{Message: msg}, nil
	default:
		return Unknown{Kind: kind}, nil
	}
}

// Encode builds the outbound frame for a user message. Text is trimmed before encoding.
func Encode(o Outbound) ([]byte, error) {
	text := strings.TrimSpace(o.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	b, err := json.Marshal(outboundFrame{Message: text, UserID: o.ClientID})
	if err != nil {
		return nil, errors.Wrap(err, "encode outbound frame")
	}
	return b, nil
}

// server timestamps are ISO-8601 and usually carry no zone
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
