package session

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/streamchat/pkg/conversation"
)

func fastPolicy(retries uint64) *ReconnectPolicy {
	return &ReconnectPolicy{
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestReconnect_RestoresSessionAfterDrop(t *testing.T) {
	c, d, conn := newActiveController(t, WithReconnectPolicy(fastPolicy(3)))
	require.NoError(t, c.Submit("Hi"))

	conn.Drop(io.EOF)
	s := waitFor(t, c, func(s State) bool { return s.Phase == PhaseActive && d.Dials() == 2 })
	require.Len(t, s.Messages, 2)
	require.Equal(t, conversation.RoleSystem, s.Messages[1].Role)

	require.NoError(t, c.Submit("still here"))
	require.Equal(t, []string{`{"message":"still here","user_id":"web-client"}`}, d.Last().Written())
}

func TestReconnect_DropRightAfterReconnectIsRetried(t *testing.T) {
	c, d, conn := newActiveController(t, WithReconnectPolicy(fastPolicy(3)))

	// the reconnected connection goes away as soon as the session sees it active
	var once sync.Once
	c.Subscribe(func(s State) {
		if s.Phase == PhaseActive && d.Dials() == 2 {
			once.Do(func() { d.Last().Drop(io.EOF) })
		}
	})

	conn.Drop(io.EOF)
	s := waitFor(t, c, func(s State) bool { return s.Phase == PhaseActive && d.Dials() == 3 })
	require.Len(t, s.Messages, 2)
	for _, m := range s.Messages {
		require.Equal(t, conversation.RoleSystem, m.Role)
	}

	require.NoError(t, c.Submit("back"))
	require.Equal(t, []string{`{"message":"back","user_id":"web-client"}`}, d.Last().Written())
}

func TestReconnect_GivesUpAfterMaxRetries(t *testing.T) {
	c, d, conn := newActiveController(t, WithReconnectPolicy(fastPolicy(2)))
	d.FailWith(errors.New("refused"))

	conn.Drop(io.EOF)
	s := waitFor(t, c, func(s State) bool {
		last, ok := lastMessage(s)
		return ok && strings.HasPrefix(last.Content, "Giving up reconnecting")
	})
	require.Equal(t, PhaseClosed, s.Phase)
	// drop notice, three failed dials, give-up notice
	require.Len(t, s.Messages, 5)
	require.Contains(t, s.Messages[4].Content, "3 attempts")

	c.mu.Lock()
	reconnecting := c.reconnecting
	c.mu.Unlock()
	require.False(t, reconnecting)
}

func TestReconnect_NotTriggeredByUserClose(t *testing.T) {
	c, d, _ := newActiveController(t, WithReconnectPolicy(fastPolicy(3)))
	require.NoError(t, c.Close())

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, d.Dials())
	require.Equal(t, PhaseClosed, c.Snapshot().Phase)
}

func TestReconnect_CancelledByClose(t *testing.T) {
	policy := &ReconnectPolicy{MaxRetries: 10, InitialInterval: 50 * time.Millisecond, MaxInterval: 50 * time.Millisecond}
	c, d, conn := newActiveController(t, WithReconnectPolicy(policy))

	conn.Drop(io.EOF)
	waitFor(t, c, func(s State) bool { return s.Phase == PhaseClosed })
	require.NoError(t, c.Close())

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, d.Dials())
	require.Equal(t, PhaseClosed, c.Snapshot().Phase)
}

func TestReconnect_ManualConnectAfterGivingUp(t *testing.T) {
	c, d, conn := newActiveController(t, WithReconnectPolicy(fastPolicy(0)))
	d.FailWith(errors.New("refused"))
	conn.Drop(io.EOF)
	waitFor(t, c, func(s State) bool {
		last, ok := lastMessage(s)
		return ok && strings.HasPrefix(last.Content, "Giving up")
	})

	d.FailWith(nil)
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, PhaseActive, c.Snapshot().Phase)
}

func TestSettings_ReconnectPolicy(t *testing.T) {
	s := DefaultSettings()
	p := s.ReconnectPolicy()
	require.NotNil(t, p)
	require.Equal(t, uint64(5), p.MaxRetries)
	require.Equal(t, 500*time.Millisecond, p.InitialInterval)
	require.Equal(t, 10*time.Second, p.MaxInterval)

	s.ReconnectEnabled = false
	require.Nil(t, s.ReconnectPolicy())
}

func TestSettings_ResolveClientID(t *testing.T) {
	s := DefaultSettings()
	a := s.ResolveClientID()
	require.NotEmpty(t, a)
	require.NotEqual(t, a, s.ResolveClientID())

	s.ClientID = " widget-client "
	require.Equal(t, "widget-client", s.ResolveClientID())
}

func lastMessage(s State) (conversation.Message, bool) {
	if len(s.Messages) == 0 {
		return conversation.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
