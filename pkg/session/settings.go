package session

import (
	"strings"
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/google/uuid"

	"github.com/go-go-golems/streamchat/pkg/connection"
)

const SettingsSlug = "chat"

// Settings configures the chat session and its status poll.
type Settings struct {
	Endpoint                string `glazed:"chat-endpoint" glazed.default:"ws://localhost:8000/ws/chat" glazed.help:"Chat websocket endpoint"`
	ClientID                string `glazed:"client-id" glazed.default:"" glazed.help:"Client identifier sent with each message (generated when empty)"`
	HandshakeTimeoutSeconds int    `glazed:"handshake-timeout-seconds" glazed.default:"10" glazed.help:"Websocket handshake timeout"`
	ReadLimitBytes          int    `glazed:"read-limit-bytes" glazed.default:"1048576" glazed.help:"Maximum inbound frame size"`
	ReconnectEnabled        bool   `glazed:"reconnect-enabled" glazed.default:"true" glazed.help:"Reconnect after transport failures"`
	ReconnectMaxRetries     int    `glazed:"reconnect-max-retries" glazed.default:"5" glazed.help:"Reconnect attempts before giving up"`
	ReconnectInitialMs      int    `glazed:"reconnect-initial-ms" glazed.default:"500" glazed.help:"Initial reconnect backoff"`
	ReconnectMaxMs          int    `glazed:"reconnect-max-ms" glazed.default:"10000" glazed.help:"Maximum reconnect backoff"`
	StatusURL               string `glazed:"status-url" glazed.default:"http://localhost:8000/api/status" glazed.help:"Status endpoint polled for the availability badges (empty disables)"`
	StatusIntervalSeconds   int    `glazed:"status-interval-seconds" glazed.default:"30" glazed.help:"Status poll interval"`
}

// NewSettingsSection returns the glazed section for Settings.
func NewSettingsSection() (schema.Section, error) {
	return schema.NewSection(
		SettingsSlug,
		"Chat session configuration",
		schema.WithFields(
			fields.New("chat-endpoint", fields.TypeString, fields.WithDefault("ws://localhost:8000/ws/chat"), fields.WithHelp("Chat websocket endpoint")),
			fields.New("client-id", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Client identifier sent with each message (generated when empty)")),
			fields.New("handshake-timeout-seconds", fields.TypeInteger, fields.WithDefault(10), fields.WithHelp("Websocket handshake timeout")),
			fields.New("read-limit-bytes", fields.TypeInteger, fields.WithDefault(1048576), fields.WithHelp("Maximum inbound frame size")),
			fields.New("reconnect-enabled", fields.TypeBool, fields.WithDefault(true), fields.WithHelp("Reconnect after transport failures")),
			fields.New("reconnect-max-retries", fields.TypeInteger, fields.WithDefault(5), fields.WithHelp("Reconnect attempts before giving up")),
			fields.New("reconnect-initial-ms", fields.TypeInteger, fields.WithDefault(500), fields.WithHelp("Initial reconnect backoff in milliseconds")),
			fields.New("reconnect-max-ms", fields.TypeInteger, fields.WithDefault(10000), fields.WithHelp("Maximum reconnect backoff in milliseconds")),
			fields.New("status-url", fields.TypeString, fields.WithDefault("http://localhost:8000/api/status"), fields.WithHelp("Status endpoint polled for availability badges (empty disables)")),
			fields.New("status-interval-seconds", fields.TypeInteger, fields.WithDefault(30), fields.WithHelp("Status poll interval in seconds")),
		),
	)
}

// DefaultSettings mirrors the section defaults.
func DefaultSettings() Settings {
	return Settings{
		Endpoint:                "ws://localhost:8000/ws/chat",
		HandshakeTimeoutSeconds: 10,
		ReadLimitBytes:          1 << 20,
		ReconnectEnabled:        true,
		ReconnectMaxRetries:     5,
		ReconnectInitialMs:      500,
		ReconnectMaxMs:          10000,
		StatusURL:               "http://localhost:8000/api/status",
		StatusIntervalSeconds:   30,
	}
}

func (s Settings) ResolveClientID() string {
	if id := strings.TrimSpace(s.ClientID); id != "" {
		return id
	}
	return uuid.NewString()
}

// ReconnectPolicy returns nil when reconnection is disabled.
func (s Settings) ReconnectPolicy() *ReconnectPolicy {
	if !s.ReconnectEnabled {
		return nil
	}
	p := DefaultReconnectPolicy()
	if s.ReconnectMaxRetries >= 0 {
		p.MaxRetries = uint64(s.ReconnectMaxRetries)
	}
	if s.ReconnectInitialMs > 0 {
		p.InitialInterval = time.Duration(s.ReconnectInitialMs) * time.Millisecond
	}
	if s.ReconnectMaxMs > 0 {
		p.MaxInterval = time.Duration(s.ReconnectMaxMs) * time.Millisecond
	}
	return p
}

func (s Settings) StatusInterval() time.Duration {
	if s.StatusIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.StatusIntervalSeconds) * time.Second
}

// NewFromSettings builds a websocket-backed manager and the controller that owns it.
func NewFromSettings(s Settings) (*Controller, *connection.Manager) {
	dialer := connection.NewWebsocketDialer(
		time.Duration(s.HandshakeTimeoutSeconds)*time.Second,
		int64(s.ReadLimitBytes),
	)
	mgr := connection.NewManager(s.Endpoint, dialer)
	ctrl := New(mgr,
		WithClientID(s.ResolveClientID()),
		WithReconnectPolicy(s.ReconnectPolicy()),
	)
	return ctrl, mgr
}
