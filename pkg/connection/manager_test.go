package connection_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/streamchat/pkg/connection"
	"github.com/go-go-golems/streamchat/pkg/connection/connectiontest"
)

type recorder struct {
	mu      sync.Mutex
	frames  []string
	changes []connection.StateChange
}

func (r *recorder) HandleFrame(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, string(frame))
}

func (r *recorder) HandleStateChange(change connection.StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *recorder) Frames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

func (r *recorder) States() []connection.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]connection.State, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.To)
	}
	return out
}

func (r *recorder) LastChange() connection.StateChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changes[len(r.changes)-1]
}

func newManager(t *testing.T) (*connection.Manager, *connectiontest.Dialer, *recorder) {
	t.Helper()
	d := connectiontest.NewDialer()
	m := connection.NewManager("ws://test/ws/chat", d)
	rec := &recorder{}
	m.Subscribe(rec)
	t.Cleanup(func() { _ = m.Close() })
	return m, d, rec
}

func TestManager_ConnectDeliversFramesInOrder(t *testing.T) {
	m, d, rec := newManager(t)
	require.Equal(t, connection.StateDisconnected, m.State())

	require.NoError(t, m.Connect(context.Background()))
	require.Equal(t, connection.StateOpen, m.State())
	require.Equal(t, []connection.State{connection.StateConnecting, connection.StateOpen}, rec.States())

	conn := d.Last()
	for _, f := range []string{"a", "b", "c", "d"} {
		conn.Push(f)
	}
	require.Eventually(t, func() bool { return len(rec.Frames()) == 4 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"a", "b", "c", "d"}, rec.Frames())
}

func TestManager_ConnectIsIdempotent(t *testing.T) {
	m, d, rec := newManager(t)
	release := d.Hold()

	done := make(chan error, 1)
	go func() { done <- m.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return m.State() == connection.StateConnecting }, time.Second, 5*time.Millisecond)

	// a second connect while dialing returns immediately
	require.NoError(t, m.Connect(context.Background()))

	release()
	require.NoError(t, <-done)
	require.NoError(t, m.Connect(context.Background()))

	require.Equal(t, 1, d.Dials())
	require.Equal(t, []connection.State{connection.StateConnecting, connection.StateOpen}, rec.States())
}

func TestManager_DialFailure(t *testing.T) {
	m, d, rec := newManager(t)
	d.FailWith(errors.New("refused"))

	err := m.Connect(context.Background())
	require.Error(t, err)
	require.True(t, connection.IsConnectionError(err))
	require.ErrorContains(t, err, "refused")
	require.Equal(t, connection.StateClosed, m.State())

	last := rec.LastChange()
	require.Equal(t, connection.StateClosed, last.To)
	require.True(t, connection.IsConnectionError(last.Err))

	// connect is allowed again from closed
	d.FailWith(nil)
	require.NoError(t, m.Connect(context.Background()))
	require.Equal(t, connection.StateOpen, m.State())
}

func TestManager_SendRequiresOpen(t *testing.T) {
	m, d, _ := newManager(t)
	require.ErrorIs(t, m.Send([]byte("x")), connection.ErrNotConnected)

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Send([]byte(`{"message":"hi"}`)))
	require.Equal(t, []string{`{"message":"hi"}`}, d.Last().Written())

	require.NoError(t, m.Close())
	require.ErrorIs(t, m.Send([]byte("x")), connection.ErrNotConnected)
}

func TestManager_CloseReleasesConnectionAndIsIdempotent(t *testing.T) {
	m, d, rec := newManager(t)
	require.NoError(t, m.Connect(context.Background()))
	conn := d.Last()

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	require.True(t, conn.IsClosed())
	require.True(t, conn.SentClose())
	require.Equal(t, connection.StateClosed, m.State())
	require.Equal(t, []connection.State{
		connection.StateConnecting,
		connection.StateOpen,
		connection.StateClosed,
	}, rec.States())
	require.NoError(t, rec.LastChange().Err)
}

func TestManager_CloseDoesNotWaitForStalledSend(t *testing.T) {
	m, d, _ := newManager(t)
	require.NoError(t, m.Connect(context.Background()))
	conn := d.Last()
	release := conn.BlockWrites()
	defer release()

	sent := make(chan error, 1)
	go func() { sent <- m.Send([]byte("stuck")) }()
	require.Eventually(t, func() bool { return conn.Stalled() == 1 }, time.Second, 5*time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- m.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("close waited for a stalled send")
	}
	require.True(t, conn.SentClose())
	require.True(t, conn.IsClosed())
	require.Equal(t, connection.StateClosed, m.State())

	// closing the connection releases the stuck writer
	select {
	case err := <-sent:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("send still blocked after close")
	}
	require.Empty(t, conn.Written())
}

func TestManager_CloseBeforeConnect(t *testing.T) {
	m, _, rec := newManager(t)
	require.NoError(t, m.Close())
	require.Equal(t, connection.StateClosed, m.State())
	require.Equal(t, []connection.State{connection.StateClosed}, rec.States())
}

func TestManager_RemoteDropReportsConnectionError(t *testing.T) {
	m, d, rec := newManager(t)
	require.NoError(t, m.Connect(context.Background()))

	conn := d.Last()
	conn.Push("last words")
	conn.Drop(io.ErrUnexpectedEOF)

	require.Eventually(t, func() bool { return m.State() == connection.StateClosed }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"last words"}, rec.Frames())
	last := rec.LastChange()
	require.Equal(t, connection.StateOpen, last.From)
	require.True(t, connection.IsConnectionError(last.Err))
	require.ErrorIs(t, last.Err, io.ErrUnexpectedEOF)
	require.True(t, conn.IsClosed())
}

func TestManager_WriteFailureClosesConnection(t *testing.T) {
	m, d, rec := newManager(t)
	require.NoError(t, m.Connect(context.Background()))
	d.Last().FailWrites(errors.New("broken pipe"))

	err := m.Send([]byte("x"))
	require.True(t, connection.IsConnectionError(err))
	require.Equal(t, connection.StateClosed, m.State())
	require.True(t, connection.IsConnectionError(rec.LastChange().Err))
}

func TestManager_CloseDuringDial(t *testing.T) {
	m, d, _ := newManager(t)
	release := d.Hold()

	done := make(chan error, 1)
	go func() { done <- m.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return m.State() == connection.StateConnecting }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Close())
	release()

	require.ErrorIs(t, <-done, connection.ErrClosed)
	require.Equal(t, connection.StateClosed, m.State())
	require.True(t, d.Last().IsClosed())
}

func TestManager_ReconnectUsesFreshConnection(t *testing.T) {
	m, d, rec := newManager(t)
	require.NoError(t, m.Connect(context.Background()))
	first := d.Last()
	require.NoError(t, m.Close())

	require.NoError(t, m.Connect(context.Background()))
	second := d.Last()
	require.NotSame(t, first, second)

	second.Push("fresh")
	require.Eventually(t, func() bool { return len(rec.Frames()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"fresh"}, rec.Frames())
}

func TestManager_Unsubscribe(t *testing.T) {
	m, d, rec := newManager(t)
	other := &recorder{}
	cancel := m.Subscribe(other)

	require.NoError(t, m.Connect(context.Background()))
	cancel()
	cancel()

	d.Last().Push("x")
	require.Eventually(t, func() bool { return len(rec.Frames()) == 1 }, time.Second, 5*time.Millisecond)
	require.Empty(t, other.Frames())
	require.Len(t, other.States(), 2)
}
