// Package session composes the protocol codec, the conversation reducer and a connection
// into the single observable chat session that UI surfaces subscribe to.
//
// One Controller is meant to be shared by every surface of an application. All mutation is
// serialised on the controller; snapshots are delivered to subscribers in mutation order and
// outside the state lock, so subscribers may call back into the controller.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/streamchat/pkg/connection"
	"github.com/go-go-golems/streamchat/pkg/conversation"
	"github.com/go-go-golems/streamchat/pkg/protocol"
)

var (
	ErrEmptyInput = errors.New("message is empty")
	ErrNotReady   = errors.New("session is not active")
)

// Transport is the connection a controller drives. *connection.Manager implements it.
type Transport interface {
	Connect(ctx context.Context) error
	Send(frame []byte) error
	Close() error
	State() connection.State
	Subscribe(l connection.Listener) func()
}

type Option func(*Controller)

// WithClientID sets the identifier sent with every user message.
func WithClientID(id string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(id) != "" {
			c.clientID = strings.TrimSpace(id)
		}
	}
}

// WithReconnectPolicy enables automatic reconnection after transport failures.
func WithReconnectPolicy(p *ReconnectPolicy) Option {
	return func(c *Controller) {
		c.policy = p
	}
}

type subscriber struct {
	id int
	fn func(State)
}

type delivery struct {
	state State
	// only, when set, restricts the delivery to one subscriber
	only *subscriber
}

type Controller struct {
	transport   Transport
	clientID    string
	policy      *ReconnectPolicy
	unsubscribe func()

	// sendMu keeps conversation order and wire order of user messages identical
	sendMu sync.Mutex

	mu           sync.Mutex
	phase        Phase
	connState    connection.State
	conv         conversation.Conversation
	composing    bool
	userClosed   bool
	reconnecting bool
	retryGen     uint64
	cancelRetry  context.CancelFunc
	// sending holds back dispatch while Submit is inside transport.Send; Submit flushes after
	sending bool

	subs        []*subscriber
	nextSubID   int
	pending     []delivery
	dispatching bool
}

func New(transport Transport, opts ...Option) *Controller {
	c := &Controller{
		transport: transport,
		clientID:  uuid.NewString(),
		conv:      conversation.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.connState = transport.State()
	c.phase = phaseFor(c.connState)
	c.unsubscribe = transport.Subscribe(c)
	return c
}

func (c *Controller) ClientID() string {
	return c.clientID
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn for every state change and immediately delivers the current state
// to it. The returned func removes the subscription.
func (c *Controller) Subscribe(fn func(State)) func() {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	s := &subscriber{id: c.nextSubID, fn: fn}
	c.nextSubID++
	c.subs = append(c.subs, s)
	c.pending = append(c.pending, delivery{state: c.snapshotLocked(), only: s})
	c.mu.Unlock()
	c.flush()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, v := range c.subs {
				if v == s {
					c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Connect asks the transport to connect. The conversation is kept across reconnects.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.userClosed = false
	c.mu.Unlock()
	return c.transport.Connect(ctx)
}

// Close stops any reconnection attempts and closes the transport. Applied conversation
// state is kept.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.userClosed = true
	cancel := c.cancelRetry
	c.cancelRetry = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return c.transport.Close()
}

// Shutdown closes the session and detaches it from the transport.
func (c *Controller) Shutdown() error {
	err := c.Close()
	c.unsubscribe()
	return err
}

// Submit appends a user message and sends it. Blank input fails with ErrEmptyInput and any
// phase other than PhaseActive fails with ErrNotReady; in both cases nothing changes.
func (c *Controller) Submit(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyInput
	}
	frame, err := protocol.Encode(protocol.Outbound{Text: trimmed, ClientID: c.clientID})
	if err != nil {
		return errors.Wrap(err, "encode message")
	}

	err = c.appendAndSend(trimmed, frame)
	c.flush()
	return err
}

func (c *Controller) appendAndSend(text string, frame []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return ErrNotReady
	}
	c.conv = c.conv.AppendUser(text)
	c.publishLocked()
	c.sending = true
	c.mu.Unlock()

	err := c.transport.Send(frame)

	c.mu.Lock()
	c.sending = false
	c.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "send message")
	}
	return nil
}

// Reset clears the conversation.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.conv = conversation.New()
	c.composing = false
	c.publishLocked()
	c.mu.Unlock()
	c.flush()
}

// HandleFrame decodes one inbound frame and folds it into the conversation. Malformed
// frames and unknown event types are dropped without publishing.
func (c *Controller) HandleFrame(frame []byte) {
	ev, err := protocol.Decode(frame)
	if err != nil {
		log.Warn().Err(err).Str("component", "session").Int("bytes", len(frame)).Msg("dropping undecodable frame")
		return
	}
	if u, ok := ev.(protocol.Unknown); ok {
		log.Debug().Str("component", "session").Str("type", u.Kind).Msg("ignoring unknown event")
		return
	}

	c.mu.Lock()
	if phase := c.phase; phase != PhaseActive {
		c.mu.Unlock()
		log.Debug().Str("component", "session").Str("phase", phase.String()).Msg("dropping frame outside active session")
		return
	}
	switch ev.(type) {
	case protocol.Typing, protocol.Chunk:
		c.composing = true
	case protocol.Complete, protocol.Error:
		c.composing = false
	}
	c.conv = conversation.Reduce(c.conv, ev)
	c.publishLocked()
	c.mu.Unlock()
	c.flush()
}

// HandleStateChange tracks the transport state. Transport failures show up as system
// messages and, when a reconnect policy is set, start a reconnection loop.
func (c *Controller) HandleStateChange(change connection.StateChange) {
	// Notifications from a racing Connect and Close can arrive out of order, so the
	// transport's current state wins over change.To.
	current := c.transport.State()

	c.mu.Lock()
	c.connState = current
	c.phase = phaseFor(current)
	if current == connection.StateOpen {
		// the loop that dialed is finished; the next drop starts a new one
		c.reconnecting = false
	} else {
		c.composing = false
	}
	if change.Err != nil {
		c.conv = c.conv.AppendSystem(change.Err.Error())
	}

	var (
		retryCtx    context.Context
		retryCancel context.CancelFunc
		retryGen    uint64
	)
	if change.Err != nil && c.policy != nil && !c.userClosed && !c.reconnecting {
		c.reconnecting = true
		c.retryGen++
		retryGen = c.retryGen
		retryCtx, retryCancel = context.WithCancel(context.Background())
		c.cancelRetry = retryCancel
	}
	c.publishLocked()
	c.mu.Unlock()
	c.flush()

	if retryCtx != nil {
		go c.reconnect(retryCtx, retryCancel, retryGen)
	}
}

func (c *Controller) appendSystem(text string) {
	c.mu.Lock()
	c.conv = c.conv.AppendSystem(text)
	c.publishLocked()
	c.mu.Unlock()
	c.flush()
}

func (c *Controller) snapshotLocked() State {
	return State{
		Phase:       c.phase,
		Connection:  c.connState,
		Messages:    c.conv.Messages(),
		IsComposing: c.composing,
	}
}

func (c *Controller) publishLocked() {
	c.pending = append(c.pending, delivery{state: c.snapshotLocked()})
}

// flush delivers pending snapshots. Only one goroutine dispatches at a time; others leave
// their snapshots queued for it.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.dispatching || c.sending {
		c.mu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.pending) > 0 {
		d := c.pending[0]
		c.pending = c.pending[1:]
		subs := append([]*subscriber(nil), c.subs...)
		c.mu.Unlock()

		if d.only != nil {
			d.only.fn(d.state)
		} else {
			for _, s := range subs {
				s.fn(d.state)
			}
		}

		c.mu.Lock()
	}
	c.dispatching = false
	c.mu.Unlock()
}

var _ connection.Listener = (*Controller)(nil)
