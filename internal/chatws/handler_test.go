package chatws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/statefultalk/internal/agents"
	"github.com/ashureev/statefultalk/internal/characters"
	"github.com/ashureev/statefultalk/internal/chat"
	"github.com/ashureev/statefultalk/internal/identity"
	"github.com/ashureev/statefultalk/internal/letta"
	"github.com/ashureev/statefultalk/internal/letta/lettatest"
	"github.com/ashureev/statefultalk/internal/middleware"
	"github.com/ashureev/statefultalk/internal/session"
	"github.com/ashureev/statefultalk/internal/store"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDevice = "dev_fedcba9876543210fedcba9876543210"

type harness struct {
	fake *lettatest.Fake
	mgr  *Manager
	url  string
}

func newHarness(t *testing.T, limit int, withCredential bool) *harness {
	t.Helper()
	dir, err := characters.Bundled()
	require.NoError(t, err)

	fake := lettatest.New()
	repo := store.NewMemory()
	sessions := session.NewRegistry(repo, fake.Factory(), nil, nil)
	if withCredential {
		s, err := sessions.Get(context.Background(), testDevice)
		require.NoError(t, err)
		key := "sk-test"
		require.NoError(t, s.SetCredential(context.Background(), &key))
		s.Wait()
	}

	resolver := agents.NewResolver(dir, agents.Options{}, nil)
	limiter := middleware.NewRateLimiter(limit, time.Hour)
	t.Cleanup(limiter.Stop)
	mgr := NewManager(nil)

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	r.Get("/ws/chat/{handle}", NewHandler(sessions, chat.NewViews(dir, resolver, nil), limiter, mgr, nil, true, nil).ServeHTTP)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &harness{fake: fake, mgr: mgr, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (h *harness) dial(t *testing.T, handle string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	header := http.Header{}
	header.Add("Cookie", identity.DeviceCookieName+"="+testDevice)
	conn, _, err := websocket.Dial(ctx, h.url+"/ws/chat/"+handle, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var msg ServerMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func write(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

func TestChatOverWebSocket(t *testing.T) {
	h := newHarness(t, 10, true)
	h.fake.StreamReply = func(_, text string) ([]letta.StreamChunk, error) {
		return []letta.StreamChunk{lettatest.Text("Good "), lettatest.Text("day.")}, nil
	}
	conn := h.dial(t, "ada")

	history := read(t, conn)
	assert.Equal(t, TypeHistory, history.Type)
	assert.NotEmpty(t, history.AgentID)
	assert.Empty(t, history.Messages)

	write(t, conn, ClientMessage{Type: TypePing})
	assert.Equal(t, TypePong, read(t, conn).Type)

	write(t, conn, ClientMessage{Type: TypeSend, Content: "Hello Ada"})

	var updates []ServerMessage
	for {
		msg := read(t, conn)
		if msg.Type == TypeDone {
			assert.Equal(t, history.AgentID, msg.AgentID)
			break
		}
		require.Equal(t, TypeMessage, msg.Type, msg.Error)
		updates = append(updates, msg)
	}
	require.Len(t, updates, 5)
	assert.Equal(t, "Hello Ada", updates[0].Message.Text())
	final := updates[len(updates)-1].Message
	assert.Equal(t, "Good day.", final.Text())
	assert.False(t, final.IsStreaming)

	assert.NotNil(t, h.mgr.Active(testDevice, "ada"))
}

func TestWebSocketSendErrors(t *testing.T) {
	h := newHarness(t, 1, true)
	h.fake.StreamReply = func(string, string) ([]letta.StreamChunk, error) {
		return nil, errors.New("boom")
	}
	conn := h.dial(t, "marcus")
	read(t, conn)

	write(t, conn, ClientMessage{Type: TypeSend, Content: "one"})
	var last ServerMessage
	for last = read(t, conn); last.Type == TypeMessage; last = read(t, conn) {
	}
	assert.Equal(t, TypeError, last.Type)
	assert.Contains(t, last.Error, "boom")

	write(t, conn, ClientMessage{Type: TypeSend, Content: "two"})
	limited := read(t, conn)
	assert.Equal(t, TypeError, limited.Type)
	assert.Equal(t, http.StatusTooManyRequests, limited.Status)
}

func TestWebSocketBlankSend(t *testing.T) {
	h := newHarness(t, 1, true)
	h.fake.StreamReply = func(string, string) ([]letta.StreamChunk, error) {
		return []letta.StreamChunk{lettatest.Text("Hello.")}, nil
	}
	conn := h.dial(t, "ada")
	read(t, conn)

	for range 3 {
		write(t, conn, ClientMessage{Type: TypeSend, Content: "  "})
		msg := read(t, conn)
		assert.Equal(t, TypeError, msg.Type)
		assert.Equal(t, http.StatusBadRequest, msg.Status)
	}
	assert.Zero(t, h.fake.Calls("StreamMessage"))

	// Blank sends do not use up the single allowed send.
	write(t, conn, ClientMessage{Type: TypeSend, Content: "hi"})
	var last ServerMessage
	for last = read(t, conn); last.Type == TypeMessage; last = read(t, conn) {
	}
	assert.Equal(t, TypeDone, last.Type, last.Error)
}

func TestWebSocketWithoutCredential(t *testing.T) {
	h := newHarness(t, 10, false)
	conn := h.dial(t, "ada")

	msg := read(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, http.StatusUnauthorized, msg.Status)
}

func TestManagerCloseDevice(t *testing.T) {
	h := newHarness(t, 10, true)
	conn := h.dial(t, "ada")
	read(t, conn)

	require.Eventually(t, func() bool {
		return h.mgr.Active(testDevice, "ada") != nil
	}, 5*time.Second, 10*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		h.mgr.CloseDevice(testDevice)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))

	<-closed
	assert.Nil(t, h.mgr.Active(testDevice, "ada"))
}

func TestManagerUnregisterStale(t *testing.T) {
	m := NewManager(nil)
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	m.Register("dev", "ada", conn1)
	m.Register("dev", "marcus", conn2)
	m.Unregister("dev", "marcus", conn1)

	assert.Same(t, conn2, m.Active("dev", "marcus"))
	m.Unregister("dev", "ada", conn1)
	assert.Nil(t, m.Active("dev", "ada"))
	assert.Same(t, conn2, m.Active("dev", "marcus"))
}
