package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/group"
	"chatrelay/internal/app/message"
	"chatrelay/internal/app/store"
	"chatrelay/internal/pkg/randx"
)

// openTestStore connects to the database named by TEST_DATABASE_URL and skips
// the test when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := NewPool(context.Background(), dsn)
	require.NoError(t, err)

	s := New(pool)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_MessageLifecycle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := openTestStore(t)

	alice, bob := randx.MessageID(), randx.MessageID()
	_, err := s.EnsureUser(ctx, alice, "Alice")
	req.NoError(err)
	u, err := s.EnsureUser(ctx, alice, "Renamed")
	req.NoError(err)
	req.Equal("Alice", u.DisplayName)

	at := time.Now().UTC().Truncate(time.Microsecond)
	m := message.Draft{Sender: alice, Destination: message.ToUser(bob), Body: "hi"}.Build(randx.MessageID(), at)
	req.NoError(s.InsertMessage(ctx, m))
	req.ErrorIs(s.InsertMessage(ctx, m), store.ErrAlreadyExists)

	dup, ok, err := s.FindRecentDuplicate(ctx, m.Fingerprint, at.Add(-time.Second))
	req.NoError(err)
	req.True(ok)
	req.Equal(m.ID, dup.ID)
	req.True(at.Equal(dup.Timestamp))

	_, ok, err = s.FindRecentDuplicate(ctx, m.Fingerprint, at.Add(time.Second))
	req.NoError(err)
	req.False(ok)

	got, err := s.AdvanceStatus(ctx, m.ID, message.StatusRead)
	req.NoError(err)
	req.Equal(message.StatusRead, got.Status)

	got, err = s.AdvanceStatus(ctx, m.ID, message.StatusDelivered)
	req.ErrorIs(err, store.ErrStatusConflict)
	req.Equal(message.StatusRead, got.Status)

	_, err = s.AdvanceStatus(ctx, randx.MessageID(), message.StatusRead)
	req.ErrorIs(err, store.ErrNotFound)

	conv, err := s.Conversation(ctx, bob, alice)
	req.NoError(err)
	req.Len(conv, 1)
	req.Equal(bob, conv[0].Receiver)
}

func TestStore_Groups(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := openTestStore(t)

	alice, bob := randx.MessageID(), randx.MessageID()
	g, err := group.New(randx.GroupID(), "Team", []string{bob, alice}, "", time.Now().UTC().Truncate(time.Microsecond))
	req.NoError(err)
	req.NoError(s.CreateGroup(ctx, g))

	got, err := s.GetGroup(ctx, g.ID)
	req.NoError(err)
	req.ElementsMatch([]string{alice, bob}, got.Members)

	groups, err := s.GroupsForUser(ctx, alice)
	req.NoError(err)
	req.Len(groups, 1)

	_, err = s.GetGroup(ctx, randx.GroupID())
	req.ErrorIs(err, store.ErrNotFound)

	m := message.Draft{Sender: alice, Destination: message.ToGroup(g.ID), Body: "team"}.Build(randx.MessageID(), time.Now().UTC())
	req.NoError(s.InsertMessage(ctx, m))
	history, err := s.GroupMessages(ctx, g.ID)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(g.ID, history[0].Group)
}
