package mockserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/streamchat/pkg/conversation"
	"github.com/go-go-golems/streamchat/pkg/mockserver"
	"github.com/go-go-golems/streamchat/pkg/protocol"
	"github.com/go-go-golems/streamchat/pkg/session"
	"github.com/go-go-golems/streamchat/pkg/status"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + mockserver.ChatPath
}

func readEvents(t *testing.T, conn *websocket.Conn, until protocol.EventType) []protocol.Event {
	t.Helper()
	var events []protocol.Event
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		ev, err := protocol.Decode(data)
		require.NoError(t, err)
		events = append(events, ev)
		if ev.Type() == until || ev.Type() == protocol.EventTypeError {
			return events
		}
	}
}

func TestServer_StreamsTypingChunksComplete(t *testing.T) {
	srv := httptest.NewServer(mockserver.New().Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	frame, err := protocol.Encode(protocol.Outbound{Text: "hi there", ClientID: "c1"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	events := readEvents(t, conn, protocol.EventTypeComplete)
	require.GreaterOrEqual(t, len(events), 3)
	require.Equal(t, protocol.EventTypeTyping, events[0].Type())
	require.Equal(t, protocol.EventTypeComplete, events[len(events)-1].Type())

	var text strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		chunk, ok := ev.(protocol.Chunk)
		require.True(t, ok, "unexpected %T", ev)
		text.WriteString(chunk.Content)
	}
	require.Equal(t, "You said: hi there", text.String())

	complete := events[len(events)-1].(protocol.Complete)
	require.False(t, complete.Timestamp.IsZero())
}

func TestServer_ScriptedError(t *testing.T) {
	script, err := mockserver.LoadScript(strings.NewReader(`
replies:
  - prompt: fail
    error: rate limited
`))
	require.NoError(t, err)
	srv := httptest.NewServer(mockserver.New(mockserver.WithReplier(script)).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	frame, err := protocol.Encode(protocol.Outbound{Text: "FAIL", ClientID: "c1"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	events := readEvents(t, conn, protocol.EventTypeComplete)
	require.Len(t, events, 2)
	require.Equal(t, protocol.Error{Message: "rate limited"}, events[1])
}

func TestServer_InvalidFrameKeepsConnection(t *testing.T) {
	srv := httptest.NewServer(mockserver.New().Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	events := readEvents(t, conn, protocol.EventTypeError)
	require.Equal(t, []protocol.Event{protocol.Error{Message: "invalid message"}}, events)

	frame, err := protocol.Encode(protocol.Outbound{Text: "again", ClientID: "c1"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
	events = readEvents(t, conn, protocol.EventTypeComplete)
	require.Equal(t, protocol.EventTypeComplete, events[len(events)-1].Type())
}

func TestServer_Status(t *testing.T) {
	srv := httptest.NewServer(mockserver.New().Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + mockserver.StatusPath)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var report status.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	for _, badge := range status.DefaultBadges {
		require.True(t, report.Enabled(badge.Path), badge.Label)
	}
	_, ok := report.Lookup("timestamp")
	require.True(t, ok)
}

func TestServer_EndToEndWithController(t *testing.T) {
	script, err := mockserver.LoadScript(strings.NewReader(`
replies:
  - prompt: hello
    chunks: ["Hel", "lo"]
`))
	require.NoError(t, err)
	srv := httptest.NewServer(mockserver.New(
		mockserver.WithReplier(script),
		mockserver.WithChunkDelay(5*time.Millisecond),
	).Handler())
	defer srv.Close()

	settings := session.DefaultSettings()
	settings.Endpoint = wsURL(srv)
	settings.ReconnectEnabled = false
	ctrl, _ := session.NewFromSettings(settings)
	defer func() { _ = ctrl.Shutdown() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ctrl.Connect(ctx))
	require.Eventually(t, func() bool { return ctrl.Snapshot().CanSubmit() }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ctrl.Submit("  hello "))
	require.Eventually(t, func() bool {
		last, ok := ctrl.Snapshot().LastAssistant()
		return ok && !last.IsStreaming
	}, 2*time.Second, 10*time.Millisecond)

	snap := ctrl.Snapshot()
	require.False(t, snap.IsComposing)
	require.Len(t, snap.Messages, 2)
	require.Equal(t, conversation.RoleUser, snap.Messages[0].Role)
	require.Equal(t, "hello", snap.Messages[0].Content)
	require.Equal(t, "Hello", snap.Messages[1].Content)
}
