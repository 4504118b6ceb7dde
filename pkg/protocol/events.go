package protocol

import "time"

// EventType is the discriminator carried in the "type" field of inbound frames.
type EventType string

const (
	EventTypeTyping   EventType = "typing"
	EventTypeChunk    EventType = "chunk"
	EventTypeComplete EventType = "complete"
	EventTypeError    EventType = "error"
)

// Event is the closed set of decoded inbound frames.
type Event interface {
	Type() EventType
	isEvent()
}

// Typing signals that the assistant started composing a reply.
type Typing struct {
	Status string
}

// Chunk carries one fragment of streamed assistant output.
type Chunk struct {
	Content string
}

// Complete marks the end of a streamed reply. Timestamp is zero when the server omits it.
type Complete struct {
	Timestamp time.Time
}

// Error is a server-reported failure.
type Error struct {
	Message string
}

// Unknown is a well-formed frame whose type is not recognised. Consumers treat it as a no-op.
type Unknown struct {
	Kind string
}

func (Typing) Type() EventType   { return EventTypeTyping }
func (Chunk) Type() EventType    { return EventTypeChunk }
func (Complete) Type() EventType { return EventTypeComplete }
func (Error) Type() EventType    { return EventTypeError }
func (u Unknown) Type() EventType {
	return EventType(u.Kind)
}

func (Typing) isEvent()   {}
func (Chunk) isEvent()    {}
func (Complete) isEvent() {}
func (Error) isEvent()    {}
func (Unknown) isEvent()  {}
