package devserver

import (
	"fmt"
	"testing"
	"time"

	"github.com/nfrund/chatsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore(t *testing.T, users ...string) *Store {
	t.Helper()
	s := NewStore(steppingClock())
	for _, id := range users {
		require.NoError(t, s.AddUser(domain.Participant{ID: id, Name: "User " + id}))
	}
	return s
}

func TestStore_CreateChat(t *testing.T) {
	s := newTestStore(t, "u1", "u2")

	chat, err := s.CreateChat("u1", []string{"u2", "u2", "u1"})
	require.NoError(t, err)
	assert.NotEmpty(t, chat.ID)
	require.Len(t, chat.Participants, 2)
	assert.Equal(t, "u1", chat.Participants[0].ID)
	assert.Equal(t, "User u2", chat.Participants[1].Name)

	_, err = s.CreateChat("u1", []string{"ghost"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.CreateChat("u1", nil)
	assert.Error(t, err)
}

func TestStore_ListChatsOrderAndPaging(t *testing.T) {
	s := newTestStore(t, "u1", "u2", "u3")

	var ids []string
	for i := 0; i < 3; i++ {
		chat, err := s.CreateChat("u1", []string{"u2"})
		require.NoError(t, err)
		ids = append(ids, chat.ID)
	}
	other, err := s.CreateChat("u2", []string{"u3"})
	require.NoError(t, err)

	// Activity in the oldest chat moves it to the front.
	_, err = s.PostMessage("u2", ids[0], "bump")
	require.NoError(t, err)

	first := s.ListChats("u1", 1, 2)
	require.Len(t, first, 2)
	assert.Equal(t, ids[0], first[0].ID)
	assert.Equal(t, ids[2], first[1].ID)
	assert.Equal(t, 1, first[0].UnreadCount)
	require.NotNil(t, first[0].LastMessage)
	assert.Equal(t, "bump", first[0].LastMessage.Content)

	second := s.ListChats("u1", 2, 2)
	require.Len(t, second, 1)
	assert.Equal(t, ids[1], second[0].ID)

	assert.Empty(t, s.ListChats("u1", 3, 2))
	for _, c := range s.ListChats("u1", 1, 50) {
		assert.NotEqual(t, other.ID, c.ID, "u1 must not see chats it is not part of")
	}
}

func TestStore_ListMessagesCursor(t *testing.T) {
	s := newTestStore(t, "u1", "u2")
	chat, err := s.CreateChat("u1", []string{"u2"})
	require.NoError(t, err)

	for i := 0; i < 45; i++ {
		_, err := s.PostMessage("u2", chat.ID, fmt.Sprintf("m%02d", i))
		require.NoError(t, err)
	}

	latest, err := s.ListMessages("u1", chat.ID, 30, "")
	require.NoError(t, err)
	require.Len(t, latest.Messages, 30)
	assert.True(t, latest.HasMore)
	assert.Equal(t, "m15", latest.Messages[0].Content)
	assert.Equal(t, "m44", latest.Messages[29].Content)
	assert.Equal(t, latest.Messages[0].ID, latest.Cursor())

	older, err := s.ListMessages("u1", chat.ID, 30, latest.Cursor())
	require.NoError(t, err)
	require.Len(t, older.Messages, 15)
	assert.False(t, older.HasMore)
	assert.Nil(t, older.NextCursor)
	assert.Equal(t, "m00", older.Messages[0].Content)
	assert.Equal(t, "m14", older.Messages[14].Content)

	_, err = s.ListMessages("u1", chat.ID, 30, "no-such-message")
	assert.ErrorIs(t, err, ErrBadCursor)
}

func TestStore_MembershipAndReads(t *testing.T) {
	s := newTestStore(t, "u1", "u2", "u3")
	chat, err := s.CreateChat("u1", []string{"u2"})
	require.NoError(t, err)

	_, err = s.PostMessage("u3", chat.ID, "intruder")
	assert.ErrorIs(t, err, domain.ErrNotMember)

	_, err = s.PostMessage("u1", chat.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyContent)

	_, err = s.ListMessages("u1", "missing", 10, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	msg, err := s.PostMessage("u1", chat.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, msg.ReadBy)
	require.NotNil(t, msg.DeliveredAt)

	view, err := s.Chat("u2", chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.UnreadCount)
	view, err = s.Chat("u1", chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, view.UnreadCount, "own messages never count as unread")

	require.NoError(t, s.MarkRead("u2", chat.ID))
	view, err = s.Chat("u2", chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, view.UnreadCount)
	assert.ElementsMatch(t, []string{"u1", "u2"}, view.LastMessage.ReadBy)
}
