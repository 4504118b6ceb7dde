package eventbus

import (
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
)

const SettingsSlug = "eventbus"

// Settings selects the transcript transport. Without Redis the bus is in-process only.
type Settings struct {
	Topic        string `glazed:"eventbus-topic" glazed.default:"streamchat.transcript" glazed.help:"Topic finalized messages are published to"`
	RedisEnabled bool   `glazed:"eventbus-redis-enabled" glazed.default:"false" glazed.help:"Publish the transcript to Redis Streams"`
	RedisAddr    string `glazed:"eventbus-redis-addr" glazed.default:"localhost:6379" glazed.help:"Redis address host:port"`
	Group        string `glazed:"eventbus-group" glazed.default:"streamchat" glazed.help:"Redis consumer group"`
	Consumer     string `glazed:"eventbus-consumer" glazed.default:"tail-1" glazed.help:"Redis consumer name"`
}

func NewSettingsSection() (schema.Section, error) {
	return schema.NewSection(
		SettingsSlug,
		"Transcript event bus",
		schema.WithFields(
			fields.New("eventbus-topic", fields.TypeString,
				fields.WithDefault("streamchat.transcript"),
				fields.WithHelp("Topic finalized messages are published to")),
			fields.New("eventbus-redis-enabled", fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Publish the transcript to Redis Streams")),
			fields.New("eventbus-redis-addr", fields.TypeString,
				fields.WithDefault("localhost:6379"),
				fields.WithHelp("Redis address host:port")),
			fields.New("eventbus-group", fields.TypeString,
				fields.WithDefault("streamchat"),
				fields.WithHelp("Redis consumer group")),
			fields.New("eventbus-consumer", fields.TypeString,
				fields.WithDefault("tail-1"),
				fields.WithHelp("Redis consumer name")),
		),
	)
}

func DefaultSettings() Settings {
	return Settings{
		Topic:     "streamchat.transcript",
		RedisAddr: "localhost:6379",
		Group:     "streamchat",
		Consumer:  "tail-1",
	}
}
