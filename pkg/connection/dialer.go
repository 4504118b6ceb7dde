package connection

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Conn is the subset of *websocket.Conn the manager relies on.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	// WriteControl may run concurrently with WriteMessage.
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens one duplex connection to an endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer    *websocket.Dialer
	Header    http.Header
	ReadLimit int64
}

func NewWebsocketDialer(handshakeTimeout time.Duration, readLimit int64) *WebsocketDialer {
	d := *websocket.DefaultDialer
	if handshakeTimeout > 0 {
		d.HandshakeTimeout = handshakeTimeout
	}
	return &WebsocketDialer{Dialer: &d, ReadLimit: readLimit}
}

func (d *WebsocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "websocket handshake (status %d)", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "websocket dial")
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return conn, nil
}
