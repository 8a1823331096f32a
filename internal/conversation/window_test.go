package conversation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/chatsync/internal/api/mock"
	"github.com/nfrund/chatsync/internal/cache"
	"github.com/nfrund/chatsync/internal/conversation"
	"github.com/nfrund/chatsync/internal/domain"
	"github.com/nfrund/chatsync/internal/events"
	"github.com/nfrund/chatsync/internal/metrics"
	"github.com/nfrund/chatsync/internal/pubsub"
)

const viewer = "me"

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func msg(id, chatID string, minute int) domain.Message {
	return domain.Message{
		ID:        id,
		ChatID:    chatID,
		SenderID:  "peer",
		Content:   "text " + id,
		CreatedAt: base.Add(time.Duration(minute) * time.Minute),
	}
}

func page(hasMore bool, cursor string, msgs ...domain.Message) domain.MessagePage {
	p := domain.MessagePage{Messages: msgs, HasMore: hasMore}
	if cursor != "" {
		p.NextCursor = &cursor
	}
	return p
}

func ids(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
	data   []any
}

func (e *recordingEmitter) Emit(_ context.Context, event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	e.data = append(e.data, payload)
	return nil
}

func (e *recordingEmitter) snapshot() ([]string, []any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...), append([]any(nil), e.data...)
}

func TestNewWindow(t *testing.T) {
	w := conversation.New("a", viewer, mock.NewMockChatAPI(gomock.NewController(t)))
	assert.Equal(t, "a", w.ChatID())
	assert.Empty(t, w.Messages())
	assert.True(t, w.HasMore())
	assert.Empty(t, w.NextCursor())
}

func TestFetchMessages_InitialThenOlder(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock.NewMockChatAPI(ctrl)
	gomock.InOrder(
		api.EXPECT().ListMessages(gomock.Any(), "a", conversation.DefaultPageSize, "").
			Return(page(true, "m3", msg("m3", "a", 3), msg("m4", "a", 4)), nil),
		api.EXPECT().ListMessages(gomock.Any(), "a", conversation.DefaultPageSize, "m3").
			Return(page(false, "", msg("m1", "a", 1), msg("m2", "a", 2), msg("m3", "a", 3)), nil),
	)

	w := conversation.New("a", viewer, api)
	ctx := context.Background()

	require.NoError(t, w.FetchMessages(ctx, false))
	assert.Equal(t, []string{"m3", "m4"}, ids(w.Messages()))
	assert.True(t, w.HasMore())
	assert.Equal(t, "m3", w.NextCursor())

	require.NoError(t, w.FetchMessages(ctx, true))
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids(w.Messages()), "older page prepended without duplicates")
	assert.False(t, w.HasMore())
	assert.Empty(t, w.NextCursor())
}

func TestFetchMessages_LoadMoreAfterHistoryExhaustedIsNoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock.NewMockChatAPI(ctrl)
	gomock.InOrder(
		api.EXPECT().ListMessages(gomock.Any(), "a", conversation.DefaultPageSize, "").
			Return(page(true, "m3", msg("m3", "a", 3), msg("m4", "a", 4)), nil),
		api.EXPECT().ListMessages(gomock.Any(), "a", conversation.DefaultPageSize, "m3").
			Return(page(false, "", msg("m1", "a", 1), msg("m2", "a", 2)), nil),
	)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	w := conversation.New("a", viewer, api, conversation.WithMetrics(m))
	ctx := context.Background()

	require.NoError(t, w.FetchMessages(ctx, false))
	require.NoError(t, w.FetchMessages(ctx, true))

	// Scrolling past the oldest message must not refetch or reset the window.
	require.NoError(t, w.FetchMessages(ctx, true))
	require.NoError(t, w.FetchMessages(ctx, true))

	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids(w.Messages()))
	assert.False(t, w.HasMore())
	assert.Empty(t, w.NextCursor())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Skipped("conversation")))
}

func TestFetchMessages_LoadMoreWithoutCursorIsInitialFetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock.NewMockChatAPI(ctrl)
	api.EXPECT().ListMessages(gomock.Any(), "a", conversation.DefaultPageSize, "").
		Return(page(true, "m5", msg("m5", "a", 5)), nil)

	w := conversation.New("a", viewer, api)
	require.NoError(t, w.FetchMessages(context.Background(), true))
	assert.Equal(t, []string{"m5"}, ids(w.Messages()))
}

func TestFetchMessages_CacheTTL(t *testing.T) {
	clock := cache.NewFakeClock(base)
	ctrl := gomock.NewController(t)
	api := mock.NewMockChatAPI(ctrl)
	api.EXPECT().ListMessages(gomock.Any(), "a", gomock.Any(), "").
		Return(page(false, "", msg("m1", "a", 1)), nil).
		Times(2)

	w := conversation.New("a", viewer, api, conversation.WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, w.FetchMessages(ctx, false))
	clock.Advance(9 * time.Second)
	require.NoError(t, w.FetchMessages(ctx, false))
	clock.Advance(2 * time.Second)
	require.NoError(t, w.FetchMessages(ctx, false))
}

func TestFetchMessages_SingleFlight(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock.NewMockChatAPI(ctrl)
	started := make(chan struct{})
	release := make(chan struct{})
	api.EXPECT().ListMessages(gomock.Any(), "a", gomock.Any(), "").
		DoAndReturn(func(ctx context.Context, chatID string, limit int, before string) (domain.MessagePage, error) {
			close(started)
			<-release
			return page(false, "", msg("m1", "a", 1)), nil
		}).
		Times(1)

	w := conversation.New("a", viewer, api)
	done := make(chan error, 1)
	go func() { done <- w.FetchMessages(context.Background(), false) }()
	<-started

	assert.True(t, w.Loading())
	assert.NoError(t, w.FetchMessages(context.Background(), true))

	close(release)
	require.NoError(t, <-done)
	assert.False(t, w.Loading())
}

func TestFetchMessages_ErrorKeepsState(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock.NewMockChatAPI(ctrl)
	boom := errors.New("timeout")
	gomock.InOrder(
		api.EXPECT().ListMessages(gomock.Any(), "a", gomock.Any(), "").Return(page(true, "m2", msg("m2", "a", 2)), nil),
		api.EXPECT().ListMessages(gomock.Any(), "a", gomock.Any(), "m2").Return(domain.MessagePage{}, boom),
	)

	w := conversation.New("a", viewer, api)
	ctx := context.Background()
	require.NoError(t, w.FetchMessages(ctx, false))

	err := w.FetchMessages(ctx, true)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, []string{"m2"}, ids(w.Messages()))
	assert.Equal(t, "m2", w.NextCursor())
	assert.True(t, w.HasMore())
}

func TestAddMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock.NewMockChatAPI(ctrl)
	api.EXPECT().ListMessages(gomock.Any(), "a", gomock.Any(), "").
		Return(page(false, "", msg("m1", "a", 1)), nil).
		Times(2)

	w := conversation.New("a", viewer, api)
	ctx := context.Background()
	require.NoError(t, w.FetchMessages(ctx, false))

	w.AddMessage(msg("m2", "a", 2))
	w.AddMessage(msg("m2", "a", 2))
	assert.Equal(t, []string{"m1", "m2"}, ids(w.Messages()))

	// The add cleared the cache, so the next fetch goes to the network.
	require.NoError(t, w.FetchMessages(ctx, false))
}

func TestAddMessage_KeepsChronologicalOrder(t *testing.T) {
	w := conversation.New("a", viewer, mock.NewMockChatAPI(gomock.NewController(t)))
	w.AddMessage(msg("m3", "a", 3))
	w.AddMessage(msg("m1", "a", 1))
	w.AddMessage(msg("m2", "a", 2))
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(w.Messages()))
}

func TestHandleNewMessage_OtherChatIsIgnored(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock.NewMockChatAPI(ctrl)
	api.EXPECT().ListMessages(gomock.Any(), "a", gomock.Any(), "").
		Return(page(true, "m1", msg("m1", "a", 1)), nil)

	w := conversation.New("a", viewer, api)
	require.NoError(t, w.FetchMessages(context.Background(), false))
	before := w.Messages()

	w.HandleNewMessage(msg("b1", "b", 2))
	assert.Equal(t, before, w.Messages())
	assert.Equal(t, "m1", w.NextCursor())

	w.HandleNewMessage(msg("a2", "a", 2))
	assert.Equal(t, []string{"m1", "a2"}, ids(w.Messages()))
}

func TestHandleNewMessage_CountsOnlyAppliedMessages(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	w := conversation.New("a", viewer, mock.NewMockChatAPI(gomock.NewController(t)), conversation.WithMetrics(m))

	w.HandleNewMessage(msg("m1", "a", 1))
	w.HandleNewMessage(msg("m1", "a", 1))
	w.Close()
	w.HandleNewMessage(msg("m2", "a", 2))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Applied("conversation", events.NewMessage.Name())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped("conversation", metrics.ReasonDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped("conversation", metrics.ReasonClosed)))
	assert.Equal(t, []string{"m1"}, ids(w.Messages()))
}

func TestHandleMessagesRead(t *testing.T) {
	w := conversation.New("a", viewer, mock.NewMockChatAPI(gomock.NewController(t)))
	own := msg("m1", "a", 1)
	own.SenderID = viewer
	w.AddMessage(own)
	w.AddMessage(msg("m2", "a", 2))

	w.HandleMessagesRead(domain.ReadReceipt{ChatID: "a", UserID: "peer"})
	w.HandleMessagesRead(domain.ReadReceipt{ChatID: "a", UserID: "peer"})
	w.HandleMessagesRead(domain.ReadReceipt{ChatID: "b", UserID: "other"})

	msgs := w.Messages()
	assert.Equal(t, []string{"peer"}, msgs[0].ReadBy)
	assert.Empty(t, msgs[1].ReadBy, "a sender does not read its own message")
}

func TestMarkAsRead(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock.NewMockChatAPI(ctrl)
	api.EXPECT().MarkRead(gomock.Any(), "a").Return(nil)

	emitter := &recordingEmitter{}
	w := conversation.New("a", viewer, api, conversation.WithEmitter(emitter))

	ctx, cancel := context.WithCancel(context.Background())
	w.MarkAsRead(ctx)
	cancel()
	w.Close()

	names, data := emitter.snapshot()
	assert.Equal(t, []string{events.MarkRead.Name()}, names)
	assert.Equal(t, domain.ReadReceipt{ChatID: "a", UserID: viewer}, data[0])
}

func TestMarkAsRead_FailureStillAnnounces(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock.NewMockChatAPI(ctrl)
	api.EXPECT().MarkRead(gomock.Any(), "a").Return(errors.New("503"))

	emitter := &recordingEmitter{}
	w := conversation.New("a", viewer, api, conversation.WithEmitter(emitter))
	w.MarkAsRead(context.Background())
	w.Close()

	names, _ := emitter.snapshot()
	assert.Len(t, names, 1)
}

func TestClose_CancelsInFlightFetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock.NewMockChatAPI(ctrl)
	started := make(chan struct{})
	api.EXPECT().ListMessages(gomock.Any(), "a", gomock.Any(), "").
		DoAndReturn(func(ctx context.Context, chatID string, limit int, before string) (domain.MessagePage, error) {
			close(started)
			<-ctx.Done()
			return page(false, "", msg("late", "a", 1)), ctx.Err()
		})

	w := conversation.New("a", viewer, api)
	done := make(chan error, 1)
	go func() { done <- w.FetchMessages(context.Background(), false) }()
	<-started

	w.Close()
	err := <-done
	assert.True(t, errors.Is(err, conversation.ErrClosed))
	assert.Empty(t, w.Messages(), "late response does not mutate a closed window")

	w.AddMessage(msg("m9", "a", 9))
	assert.Empty(t, w.Messages())
	assert.True(t, errors.Is(w.FetchMessages(context.Background(), false), conversation.ErrClosed))
}

func TestAttach(t *testing.T) {
	bus := pubsub.NewWatermillBridge()
	defer bus.Close()

	w := conversation.New("a", viewer, mock.NewMockChatAPI(gomock.NewController(t)))
	w.Attach(bus)
	ctx := context.Background()

	require.NoError(t, pubsub.Publish(ctx, bus, events.NewMessage, msg("a1", "a", 1)))
	require.NoError(t, pubsub.Publish(ctx, bus, events.NewMessage, msg("b1", "b", 2)))
	require.NoError(t, pubsub.Publish(ctx, bus, events.MessagesRead, domain.ReadReceipt{ChatID: "a", UserID: "u9"}))

	msgs := w.Messages()
	require.Equal(t, []string{"a1"}, ids(msgs))
	assert.Equal(t, []string{"u9"}, msgs[0].ReadBy)

	w.Close()
	require.NoError(t, pubsub.Publish(ctx, bus, events.NewMessage, msg("a2", "a", 3)))
	assert.Equal(t, []string{"a1"}, ids(w.Messages()))
}
