// Package connection owns the single duplex connection of a chat session.
//
// A Manager dials one endpoint, reads frames on a dedicated goroutine and hands them to its
// listeners in wire order. It never reconnects on its own; callers layer that policy on top.
package connection

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// closeFrameTimeout bounds how long Close waits to hand the close frame to a stalled peer.
const closeFrameTimeout = time.Second

type Manager struct {
	endpoint string
	dialer   Dialer

	mu    sync.Mutex
	state State
	conn  Conn
	// gen identifies the current connection attempt; read loops of older attempts stop
	// delivering once it moves on
	gen uint64

	writeMu sync.Mutex

	listenersMu sync.Mutex
	listeners   map[int]Listener
	order       []int
	nextID      int
}

func NewManager(endpoint string, dialer Dialer) *Manager {
	if dialer == nil {
		dialer = NewWebsocketDialer(0, 0)
	}
	return &Manager{
		endpoint:  endpoint,
		dialer:    dialer,
		state:     StateDisconnected,
		listeners: map[int]Listener{},
	}
}

func (m *Manager) Endpoint() string {
	return m.endpoint
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers l for frames and state changes until the returned func is called.
func (m *Manager) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}
	m.listenersMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.order = append(m.order, id)
	m.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenersMu.Lock()
			defer m.listenersMu.Unlock()
			delete(m.listeners, id)
			for i, v := range m.order {
				if v == id {
					m.order = append(m.order[:i], m.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Connect dials the endpoint. It is a no-op while a connection is being dialed or is open.
// A failed dial moves the manager to StateClosed and returns a *ConnectionError.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateOpen {
		m.mu.Unlock()
		return nil
	}
	from := m.state
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	wsLog := log.With().Str("component", "connection").Str("endpoint", m.endpoint).Logger()
	wsLog.Debug().Msg("connecting")
	m.notifyState(StateChange{From: from, To: StateConnecting})

	conn, err := m.dialer.Dial(ctx, m.endpoint)

	m.mu.Lock()
	if gen != m.gen || m.state != StateConnecting {
		// closed while dialing
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		m.state = StateClosed
		m.mu.Unlock()
		cerr := &ConnectionError{Endpoint: m.endpoint, Err: err}
		wsLog.Warn().Err(err).Msg("connect failed")
		m.notifyState(StateChange{From: StateConnecting, To: StateClosed, Err: cerr})
		return cerr
	}
	m.conn = conn
	m.state = StateOpen
	m.mu.Unlock()

	wsLog.Info().Msg("connected")
	m.notifyState(StateChange{From: StateConnecting, To: StateOpen})
	go m.readLoop(gen, conn)
	return nil
}

// Send writes one text frame. It fails with ErrNotConnected unless the connection is open;
// frames are never queued.
func (m *Manager) Send(frame []byte) error {
	m.mu.Lock()
	if m.state != StateOpen || m.conn == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	conn := m.conn
	gen := m.gen
	m.mu.Unlock()

	m.writeMu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, frame)
	m.writeMu.Unlock()
	if err != nil {
		log.Warn().Err(err).Str("component", "connection").Str("endpoint", m.endpoint).Msg("write failed, dropping connection")
		m.fail(gen, err)
		return &ConnectionError{Endpoint: m.endpoint, Err: err}
	}
	log.Debug().Str("component", "connection").Int("bytes", len(frame)).Msg("frame sent")
	return nil
}

// Close moves the manager to StateClosed and releases the connection. It is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	from := m.state
	m.state = StateClosed
	m.gen++
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	var err error
	if conn != nil {
		// not under writeMu: a Send stuck on the peer must not hold up Close
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeFrameTimeout))
		err = conn.Close()
	}
	log.Info().Str("component", "connection").Str("endpoint", m.endpoint).Msg("closed")
	m.notifyState(StateChange{From: from, To: StateClosed})
	return err
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.fail(gen, err)
			return
		}
		if !m.current(gen) {
			return
		}
		m.notifyFrame(data)
	}
}

// fail tears down the connection of attempt gen after a transport error. Errors from
// attempts that were already closed or replaced are ignored.
func (m *Manager) fail(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateOpen {
		m.mu.Unlock()
		return
	}
	m.state = StateClosed
	m.gen++
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	log.Warn().Err(cause).Str("component", "connection").Str("endpoint", m.endpoint).Msg("connection lost")
	m.notifyState(StateChange{
		From: StateOpen,
		To:   StateClosed,
		Err:  &ConnectionError{Endpoint: m.endpoint, Err: cause},
	})
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen && m.state == StateOpen
}

func (m *Manager) snapshotListeners() []Listener {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	out := make([]Listener, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.listeners[id])
	}
	return out
}

func (m *Manager) notifyFrame(frame []byte) {
	for _, l := range m.snapshotListeners() {
		l.HandleFrame(frame)
	}
}

func (m *Manager) notifyState(change StateChange) {
	for _, l := range m.snapshotListeners() {
		l.HandleStateChange(change)
	}
}
