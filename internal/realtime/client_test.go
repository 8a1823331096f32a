package realtime_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/chatsync/internal/domain"
	"github.com/nfrund/chatsync/internal/events"
	"github.com/nfrund/chatsync/internal/pubsub"
	"github.com/nfrund/chatsync/internal/realtime"
)

// echoServer pushes the scripted frames after accepting and forwards every
// frame it receives to received.
func echoServer(t *testing.T, script []string, received chan<- string) (*httptest.Server, <-chan string) {
	t.Helper()
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		for _, raw := range script {
			if err := conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
				return
			}
		}
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if received != nil {
				received <- string(data)
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, auth
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient_PublishesInboundEvents(t *testing.T) {
	script := []string{
		`not json`,
		`{"event":"server_reboot","data":{}}`,
		`{"event":"new_message","data":{"id":"m1","chat":"c1","sender":"u2","content":"hi"}}`,
		`{"event":"user_typing","data":{"userId":"u2","chatId":"c1","isTyping":true}}`,
	}
	srv, auth := echoServer(t, script, nil)

	bus := pubsub.NewWatermillBridge()
	defer bus.Close()

	client := realtime.New(wsURL(srv), "secret", bus)

	gotMessage := make(chan domain.Message, 1)
	gotTyping := make(chan domain.TypingEvent, 1)
	offMsg := pubsub.On(client, events.NewMessage, nil, func(_ context.Context, m domain.Message) { gotMessage <- m })
	defer offMsg()
	offTyping := pubsub.On(client, events.UserTyping, nil, func(_ context.Context, e domain.TypingEvent) { gotTyping <- e })
	defer offTyping()

	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	assert.Equal(t, "Bearer secret", <-auth)

	select {
	case m := <-gotMessage:
		assert.Equal(t, "m1", m.ID)
		assert.Equal(t, "c1", m.ChatID)
	case <-time.After(2 * time.Second):
		t.Fatal("new_message not delivered")
	}

	select {
	case e := <-gotTyping:
		assert.True(t, e.IsTyping)
		assert.Equal(t, "u2", e.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("user_typing not delivered")
	}
	assert.True(t, client.Connected())
}

func TestClient_Emit(t *testing.T) {
	received := make(chan string, 4)
	srv, _ := echoServer(t, nil, received)

	bus := pubsub.NewWatermillBridge()
	defer bus.Close()
	client := realtime.New(wsURL(srv), "secret", bus)
	ctx := context.Background()

	err := client.Emit(ctx, events.TypingStart.Name(), domain.TypingSignal{ChatID: "c1", UserID: "u1"})
	assert.True(t, errors.Is(err, realtime.ErrNotConnected))

	require.NoError(t, client.Connect(ctx))

	err = client.Emit(ctx, events.UserTyping.Name(), domain.TypingEvent{})
	assert.True(t, errors.Is(err, realtime.ErrUnknownEvent), "inbound-only names cannot be emitted")

	require.NoError(t, client.Emit(ctx, events.TypingStart.Name(), domain.TypingSignal{ChatID: "c1", UserID: "u1"}))

	select {
	case raw := <-received:
		assert.JSONEq(t, `{"event":"typing_start","data":{"chatId":"c1","userId":"u1"}}`, raw)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received by server")
	}

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.False(t, client.Connected())

	err = client.Emit(ctx, events.TypingStop.Name(), domain.TypingSignal{ChatID: "c1", UserID: "u1"})
	assert.True(t, errors.Is(err, realtime.ErrNotConnected))
}

func TestClient_DoneWhenServerCloses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.Close(websocket.StatusGoingAway, "bye")
	}))
	defer srv.Close()

	bus := pubsub.NewWatermillBridge()
	defer bus.Close()
	client := realtime.New(wsURL(srv), "", bus)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop")
	}
	assert.False(t, client.Connected())
}

func TestClient_ReconnectsAfterServerCloses(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			conn.Close(websocket.StatusGoingAway, "restarting")
			return
		}
		defer conn.CloseNow()
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	bus := pubsub.NewWatermillBridge()
	defer bus.Close()
	client := realtime.New(wsURL(srv), "", bus)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))
	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop")
	}

	err := client.Emit(ctx, events.TypingStop.Name(), domain.TypingSignal{ChatID: "c1", UserID: "u1"})
	assert.True(t, errors.Is(err, realtime.ErrNotConnected))

	require.NoError(t, client.Connect(ctx))
	assert.Equal(t, int32(2), dials.Load(), "Connect must redial a dropped socket")
	assert.True(t, client.Connected())
	require.NoError(t, client.Emit(ctx, events.TypingStop.Name(), domain.TypingSignal{ChatID: "c1", UserID: "u1"}))

	// A live socket is reused.
	require.NoError(t, client.Connect(ctx))
	assert.Equal(t, int32(2), dials.Load())
}

func TestParseFrame(t *testing.T) {
	f, err := realtime.ParseFrame([]byte(`{"event":"messages_read","data":{"chatId":"c1","userId":"u1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "messages_read", f.Event)

	_, err = realtime.ParseFrame([]byte(`{"data":{}}`))
	assert.Error(t, err)
}
