// Package connectiontest provides an in-memory Dialer and Conn for exercising code built on
// connection.Manager without a network.
package connectiontest

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/go-go-golems/streamchat/pkg/connection"
)

// Conn is one end of an in-memory duplex connection. The test plays the server through
// Push, Drop and Written.
type Conn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	readErr   error
	writeErr  error
	writeGate chan struct{}
	stalled   int
	written   [][]byte
	sentClose bool
	isClosed  bool
}

func NewConn() *Conn {
	return &Conn{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

// Push queues a frame for the client to read.
func (c *Conn) Push(frame string) {
	select {
	case c.inbound <- []byte(frame):
	case <-c.closed:
	}
}

// Drop makes the next read fail with err, as if the remote end went away.
func (c *Conn) Drop(err error) {
	if err == nil {
		err = io.EOF
	}
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
}

// FailWrites makes every following write return err.
func (c *Conn) FailWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

// BlockWrites stalls every following write until release is called or the connection is
// closed, like a peer that stopped reading.
func (c *Conn) BlockWrites() (release func()) {
	gate := make(chan struct{})
	c.mu.Lock()
	c.writeGate = gate
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if c.writeGate == gate {
				c.writeGate = nil
			}
			c.mu.Unlock()
			close(gate)
		})
	}
}

// Stalled returns the number of writes currently held by BlockWrites.
func (c *Conn) Stalled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stalled
}

// SentClose reports whether the client sent a close frame.
func (c *Conn) SentClose() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sentClose
}

// Written returns the text frames written by the client.
func (c *Conn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.written))
	for _, b := range c.written {
		out = append(out, string(b))
	}
	return out
}

func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isClosed
}

func (c *Conn) ReadMessage() (int, []byte, error) {
	// frames pushed before a drop are still delivered first
	select {
	case b := <-c.inbound:
		return websocket.TextMessage, b, nil
	default:
	}
	select {
	case b := <-c.inbound:
		return websocket.TextMessage, b, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.readErr != nil {
			return 0, nil, c.readErr
		}
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *Conn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	if gate := c.writeGate; gate != nil {
		c.stalled++
		c.mu.Unlock()
		select {
		case <-gate:
		case <-c.closed:
		}
		c.mu.Lock()
		c.stalled--
	}
	defer c.mu.Unlock()
	if c.isClosed {
		return errors.New("write on closed connection")
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	if messageType == websocket.TextMessage {
		c.written = append(c.written, append([]byte(nil), data...))
	}
	return nil
}

// WriteControl never stalls, so it can be used while another write is blocked.
func (c *Conn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed {
		return errors.New("write on closed connection")
	}
	if messageType == websocket.CloseMessage {
		c.sentClose = true
	}
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.isClosed = true
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Dialer hands out a fresh Conn per dial.
type Dialer struct {
	mu    sync.Mutex
	err   error
	gate  chan struct{}
	conns []*Conn
}

func NewDialer() *Dialer {
	return &Dialer{}
}

// FailWith makes following dials fail with err. A nil err restores success.
func (d *Dialer) FailWith(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Hold blocks following dials until the returned release func is called.
func (d *Dialer) Hold() (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			if d.gate == gate {
				d.gate = nil
			}
			d.mu.Unlock()
			close(gate)
		})
	}
}

func (d *Dialer) Dial(ctx context.Context, _ string) (connection.Conn, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := NewConn()
	d.conns = append(d.conns, c)
	return c, nil
}

// Dials returns how many connections were handed out.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Last returns the most recent connection, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
