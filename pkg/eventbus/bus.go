// Package eventbus mirrors the finalized chat transcript onto a watermill topic, in process
// or over Redis Streams, and tails it back.
package eventbus

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Bus is a publisher/subscriber pair bound to one topic.
type Bus struct {
	Topic      string
	Publisher  message.Publisher
	Subscriber message.Subscriber

	closers []func() error
}

// Build returns an in-memory bus unless Redis is enabled.
func Build(s Settings) (*Bus, error) {
	if strings.TrimSpace(s.Topic) == "" {
		return nil, errors.New("eventbus topic is empty")
	}
	logger := NewLogger(log.With().Str("component", "eventbus").Logger())

	if !s.RedisEnabled {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return &Bus{
			Topic:      s.Topic,
			Publisher:  ch,
			Subscriber: ch,
			closers:    []func() error{ch.Close},
		}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis publisher")
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "redis subscriber")
	}
	return &Bus{
		Topic:      s.Topic,
		Publisher:  pub,
		Subscriber: sub,
		closers:    []func() error{sub.Close, pub.Close, client.Close},
	}, nil
}

// EnsureGroupAtTail creates the consumer group at the stream tail so a new tail does not
// replay history. An existing group is left alone.
func EnsureGroupAtTail(ctx context.Context, s Settings) error {
	if !s.RedisEnabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	defer func() { _ = client.Close() }()
	err := client.XGroupCreateMkStream(ctx, s.Topic, s.Group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrap(err, "create consumer group")
	}
	log.Info().Str("stream", s.Topic).Str("group", s.Group).Msg("created redis consumer group at tail")
	return nil
}

func (b *Bus) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
