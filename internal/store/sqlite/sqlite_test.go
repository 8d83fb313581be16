package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/presence-gateway/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestUserPresenceFlag(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice", "Alice", false)
	req.NoError(err)
	bot, err := s.CreateUser(ctx, "ironman", "Tony Stark", true)
	req.NoError(err)
	_, err = s.CreateUser(ctx, "bob", "", false)
	req.NoError(err)

	req.False(alice.IsOnline)
	req.True(bot.IsBot)

	req.NoError(s.SetOnline(ctx, alice.ID, true))
	req.NoError(s.SetOnline(ctx, bot.ID, true))

	online, err := s.ListOnline(ctx)
	req.NoError(err)
	ids := make([]string, 0, len(online))
	for _, u := range online {
		ids = append(ids, u.ID)
	}
	req.ElementsMatch([]string{alice.ID, bot.ID}, ids)

	req.NoError(s.SetOnline(ctx, alice.ID, false))
	got, err := s.GetUser(ctx, alice.ID)
	req.NoError(err)
	req.False(got.IsOnline)
	req.Equal("Alice", got.DisplayName())
}

func TestMissingRecordsReturnNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetUser(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetOnline(ctx, "ghost", true); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from SetOnline, got %v", err)
	}
	if err := s.TouchConversation(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from TouchConversation, got %v", err)
	}
	if _, err := s.GetUserByUsername(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from GetUserByUsername, got %v", err)
	}
}

func TestConversationMessagesAndParticipants(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice", "", false)
	req.NoError(err)
	bot, err := s.CreateUser(ctx, "bot", "Bot", true)
	req.NoError(err)

	conv, err := s.CreateConversation(ctx, "chat", []string{alice.ID, bot.ID})
	req.NoError(err)

	participants, err := s.ListParticipants(ctx, conv.ID)
	req.NoError(err)
	req.Len(participants, 2)

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three"} {
		req.NoError(s.CreateMessage(ctx, &store.Message{
			ConversationID: conv.ID,
			SenderID:       alice.ID,
			Content:        text,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}))
	}

	latest, err := s.ListMessages(ctx, conv.ID, 2)
	req.NoError(err)
	req.Len(latest, 2)
	req.Equal("two", latest[0].Content)
	req.Equal("three", latest[1].Content)
	req.Equal(store.MessageTypeText, latest[0].Type)
	req.NotEmpty(latest[0].ID)

	before, err := s.GetConversation(ctx, conv.ID)
	req.NoError(err)
	req.NoError(s.TouchConversation(ctx, conv.ID))
	after, err := s.GetConversation(ctx, conv.ID)
	req.NoError(err)
	req.False(after.UpdatedAt.Before(before.UpdatedAt))
}

func TestUpdateUserName(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "carol", "", false)
	req.NoError(err)
	req.Equal("carol", u.DisplayName())

	u, err = s.UpdateUserName(ctx, u.ID, "Carol")
	req.NoError(err)
	req.Equal("Carol", u.Name)

	byName, err := s.GetUserByUsername(ctx, "carol")
	req.NoError(err)
	req.Equal(u.ID, byName.ID)
}

// stepClock makes s.now advance by one second per call.
func stepClock(s *SQLiteStore) {
	next := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		next = next.Add(time.Second)
		return next
	}
}

func TestListUsersPaginates(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	stepClock(s)
	ctx := context.Background()

	for _, name := range []string{"u1", "u2", "u3"} {
		_, err := s.CreateUser(ctx, name, "", false)
		req.NoError(err)
	}

	total, err := s.CountUsers(ctx)
	req.NoError(err)
	req.Equal(3, total)

	first, err := s.ListUsers(ctx, 0, 2)
	req.NoError(err)
	req.Len(first, 2)
	req.Equal("u3", first[0].Username)
	req.Equal("u2", first[1].Username)

	rest, err := s.ListUsers(ctx, 2, 2)
	req.NoError(err)
	req.Len(rest, 1)
	req.Equal("u1", rest[0].Username)

	empty, err := s.ListUsers(ctx, 10, 2)
	req.NoError(err)
	req.Empty(empty)
}

func TestFindDirectConversation(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	stepClock(s)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice", "", false)
	req.NoError(err)
	bob, err := s.CreateUser(ctx, "bob", "", false)
	req.NoError(err)
	carol, err := s.CreateUser(ctx, "carol", "", false)
	req.NoError(err)

	_, err = s.FindDirectConversation(ctx, alice.ID, bob.ID)
	req.ErrorIs(err, store.ErrNotFound)

	// A group holding both users is not a direct conversation.
	_, err = s.CreateConversation(ctx, "group", []string{alice.ID, bob.ID, carol.ID})
	req.NoError(err)
	_, err = s.CreateConversation(ctx, "", []string{alice.ID, carol.ID})
	req.NoError(err)
	_, err = s.FindDirectConversation(ctx, alice.ID, bob.ID)
	req.ErrorIs(err, store.ErrNotFound)

	direct, err := s.CreateConversation(ctx, "", []string{alice.ID, bob.ID})
	req.NoError(err)

	got, err := s.FindDirectConversation(ctx, bob.ID, alice.ID)
	req.NoError(err)
	req.Equal(direct.ID, got.ID)
}

func TestListUserConversationsNewestFirst(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	stepClock(s)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice", "", false)
	req.NoError(err)
	bob, err := s.CreateUser(ctx, "bob", "", false)
	req.NoError(err)

	older, err := s.CreateConversation(ctx, "older", []string{alice.ID, bob.ID})
	req.NoError(err)
	newer, err := s.CreateConversation(ctx, "newer", []string{alice.ID})
	req.NoError(err)

	convs, err := s.ListUserConversations(ctx, alice.ID)
	req.NoError(err)
	req.Len(convs, 2)
	req.Equal(newer.ID, convs[0].ID)

	req.NoError(s.TouchConversation(ctx, older.ID))
	convs, err = s.ListUserConversations(ctx, alice.ID)
	req.NoError(err)
	req.Equal(older.ID, convs[0].ID)
	req.Equal(newer.ID, convs[1].ID)

	convs, err = s.ListUserConversations(ctx, bob.ID)
	req.NoError(err)
	req.Len(convs, 1)

	convs, err = s.ListUserConversations(ctx, "ghost")
	req.NoError(err)
	req.Empty(convs)
}
