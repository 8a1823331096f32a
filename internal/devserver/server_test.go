package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nfrund/chatsync/internal/api"
	"github.com/nfrund/chatsync/internal/auth"
	"github.com/nfrund/chatsync/internal/domain"
	"github.com/nfrund/chatsync/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv    *Server
	http   *httptest.Server
	tokens *auth.Tokens
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tokens := auth.NewTokens("test-secret", time.Hour)
	store := newTestStore(t, "u1", "u2", "u3")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(tokens, WithStore(store), WithLogger(logger), WithRateLimit(1000))
	ts := httptest.NewServer(srv)

	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &testEnv{srv: srv, http: ts, tokens: tokens}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.tokens.Issue(userID)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) client(t *testing.T, userID string) *api.Client {
	return api.New(e.http.URL, e.token(t, userID), api.WithTimeout(5*time.Second))
}

func (e *testEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+e.token(t, userID))

	wsURL := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return e.srv.Hub().Online(userID) > 0 },
		2*time.Second, 10*time.Millisecond, "connection was not registered")
	return conn
}

// readFrame reads frames until one named event arrives.
func readFrame(t *testing.T, conn *websocket.Conn, event string) realtime.Frame {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		frame, err := realtime.ParseFrame(raw)
		require.NoError(t, err)
		if frame.Event == event {
			return frame
		}
	}
}

func writeFrame(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	frame, err := realtime.NewFrame(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(frame))
}

func TestServer_RESTContract(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u1 := env.client(t, "u1")
	u2 := env.client(t, "u2")

	chat, err := u1.CreateChat(ctx, []string{"u2"})
	require.NoError(t, err)

	for i := 0; i < 35; i++ {
		_, err := u2.SendMessage(ctx, chat.ID, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	t.Run("chat list carries unread count and last message", func(t *testing.T) {
		chats, err := u1.ListChats(ctx, 1, domain.ChatPageSize)
		require.NoError(t, err)
		require.Len(t, chats, 1)
		assert.Equal(t, 35, chats[0].UnreadCount)
		require.NotNil(t, chats[0].LastMessage)
		assert.Equal(t, "msg 34", chats[0].LastMessage.Content)
	})

	t.Run("message pages walk backwards with a cursor", func(t *testing.T) {
		page, err := u1.ListMessages(ctx, chat.ID, domain.MessagePageSize, "")
		require.NoError(t, err)
		require.Len(t, page.Messages, 30)
		assert.True(t, page.HasMore)
		assert.Equal(t, "msg 5", page.Messages[0].Content)

		older, err := u1.ListMessages(ctx, chat.ID, domain.MessagePageSize, page.Cursor())
		require.NoError(t, err)
		require.Len(t, older.Messages, 5)
		assert.False(t, older.HasMore)
		assert.Empty(t, older.Cursor())
		assert.Equal(t, "msg 0", older.Messages[0].Content)
	})

	t.Run("mark read resets the unread count", func(t *testing.T) {
		require.NoError(t, u1.MarkRead(ctx, chat.ID))
		chats, err := u1.ListChats(ctx, 1, domain.ChatPageSize)
		require.NoError(t, err)
		require.Len(t, chats, 1)
		assert.Equal(t, 0, chats[0].UnreadCount)
	})

	t.Run("errors map to status codes", func(t *testing.T) {
		var statusErr *api.StatusError

		_, err := env.client(t, "u3").ListMessages(ctx, chat.ID, 10, "")
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusForbidden, statusErr.Code)

		_, err = u1.ListMessages(ctx, "missing", 10, "")
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusNotFound, statusErr.Code)

		_, err = u1.SendMessage(ctx, chat.ID, "   ")
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusUnprocessableEntity, statusErr.Code)

		_, err = api.New(env.http.URL, "garbage").ListChats(ctx, 1, 10)
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	})
}

func TestServer_QueryValidation(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/chats?page=zero", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "u1"))
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_RealtimeBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	chat, err := env.client(t, "u1").CreateChat(ctx, []string{"u2"})
	require.NoError(t, err)

	ws1 := env.dial(t, "u1")
	ws2 := env.dial(t, "u2")

	t.Run("new_message reaches every participant", func(t *testing.T) {
		sent, err := env.client(t, "u2").SendMessage(ctx, chat.ID, "hello")
		require.NoError(t, err)

		for _, conn := range []*websocket.Conn{ws1, ws2} {
			frame := readFrame(t, conn, "new_message")
			var msg domain.Message
			require.NoError(t, json.Unmarshal(frame.Data, &msg))
			assert.Equal(t, sent.ID, msg.ID)
			assert.Equal(t, chat.ID, msg.ChatID)
		}
	})

	t.Run("typing is relayed to the other participants only", func(t *testing.T) {
		writeFrame(t, ws2, "typing_start", domain.TypingSignal{ChatID: chat.ID, UserID: "u2"})

		frame := readFrame(t, ws1, "user_typing")
		var ev domain.TypingEvent
		require.NoError(t, json.Unmarshal(frame.Data, &ev))
		assert.Equal(t, domain.TypingEvent{UserID: "u2", ChatID: chat.ID, IsTyping: true}, ev)
	})

	t.Run("read receipt from the socket is broadcast", func(t *testing.T) {
		writeFrame(t, ws1, "messages_read", domain.ReadReceipt{ChatID: chat.ID, UserID: "u1"})

		frame := readFrame(t, ws2, "messages_read")
		var rr domain.ReadReceipt
		require.NoError(t, json.Unmarshal(frame.Data, &rr))
		assert.Equal(t, domain.ReadReceipt{ChatID: chat.ID, UserID: "u1"}, rr)

		view, err := env.srv.Store().Chat("u1", chat.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, view.UnreadCount)
	})

	t.Run("dropping a typing connection sends a stop", func(t *testing.T) {
		require.NoError(t, ws2.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

		frame := readFrame(t, ws1, "user_typing")
		var ev domain.TypingEvent
		require.NoError(t, json.Unmarshal(frame.Data, &ev))
		assert.False(t, ev.IsTyping)
		assert.Equal(t, "u2", ev.UserID)
	})
}

func TestServer_ChatCreatedIsPushed(t *testing.T) {
	env := newTestEnv(t)
	ws2 := env.dial(t, "u2")

	chat, err := env.client(t, "u1").CreateChat(context.Background(), []string{"u2"})
	require.NoError(t, err)

	frame := readFrame(t, ws2, "chat_created")
	var upd domain.ChatUpdate
	require.NoError(t, json.Unmarshal(frame.Data, &upd))
	assert.True(t, upd.IsNew)
	assert.Equal(t, chat.ID, upd.Chat.ID)
}

func TestServer_WebSocketRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+env.token(t, "u3"), nil)
	require.NoError(t, err)
	conn.Close()
}

func TestServer_Endpoints(t *testing.T) {
	env := newTestEnv(t)
	env.dial(t, "u1")

	resp, err := http.Get(env.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "chatsync_ws_connections 1")
}
