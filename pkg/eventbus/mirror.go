package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/streamchat/pkg/conversation"
	"github.com/go-go-golems/streamchat/pkg/session"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Record is one finalized transcript message as it travels on the bus.
type Record struct {
	MessageID uint64            `json:"message_id"`
	Role      conversation.Role `json:"role"`
	Content   string            `json:"content"`
	ClientID  string            `json:"client_id"`
	At        time.Time         `json:"at"`
}

// Mirror publishes every message of a session once it stops streaming. Messages are
// published in the order they finalize, which is conversation order for a well-formed stream.
type Mirror struct {
	publisher message.Publisher
	topic     string
	clientID  string
	now       func() time.Time

	mu        sync.Mutex
	published map[uint64]struct{}
}

func NewMirror(publisher message.Publisher, topic, clientID string) *Mirror {
	return &Mirror{
		publisher: publisher,
		topic:     topic,
		clientID:  clientID,
		now:       time.Now,
		published: map[uint64]struct{}{},
	}
}

// Attach subscribes the mirror to the controller and returns the unsubscribe func.
func (m *Mirror) Attach(ctrl *session.Controller) func() {
	return ctrl.Subscribe(m.Observe)
}

// Observe handles one session snapshot. An empty transcript means the conversation was
// reset and message ids start over.
func (m *Mirror) Observe(s session.State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(s.Messages) == 0 {
		clear(m.published)
		return
	}
	for _, msg := range s.Messages {
		if msg.IsStreaming {
			continue
		}
		if _, ok := m.published[msg.ID]; ok {
			continue
		}
		if err := m.publish(msg); err != nil {
			log.Warn().Err(err).Str("component", "eventbus").Uint64("message_id", msg.ID).Msg("transcript publish failed")
			continue
		}
		m.published[msg.ID] = struct{}{}
	}
}

func (m *Mirror) publish(msg conversation.Message) error {
	payload, err := json.Marshal(Record{
		MessageID: msg.ID,
		Role:      msg.Role,
		Content:   msg.Content,
		ClientID:  m.clientID,
		At:        m.now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}
	wm := message.NewMessage(uuid.NewString(), payload)
	wm.Metadata.Set("role", string(msg.Role))
	wm.Metadata.Set("client_id", m.clientID)
	return m.publisher.Publish(m.topic, wm)
}

// Tail delivers records from topic to fn until ctx is cancelled or fn returns an error.
// Undecodable payloads are acked and skipped.
func Tail(ctx context.Context, sub message.Subscriber, topic string, fn func(Record) error) error {
	msgs, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return errors.Wrap(err, "subscribe transcript")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case wm, ok := <-msgs:
			if !ok {
				return nil
			}
			var rec Record
			if err := json.Unmarshal(wm.Payload, &rec); err != nil {
				log.Warn().Err(err).Str("component", "eventbus").Str("uuid", wm.UUID).Msg("skipping undecodable record")
				wm.Ack()
				continue
			}
			if err := fn(rec); err != nil {
				wm.Nack()
				return err
			}
			wm.Ack()
		}
	}
}
