package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/group"
	"chatrelay/internal/app/message"
	"chatrelay/internal/app/store"
	"chatrelay/internal/app/user"
	"chatrelay/internal/pkg/errs"
)

func TestPipeline_DirectScenario(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	core := newTestCore(t, openStore(t))
	core.users(t, "alice", "bob")

	alice := core.connect(t, "a1", "alice")
	bob := core.connect(t, "b1", "bob")

	m, duplicate, err := core.pipeline.Submit(ctx, direct("alice", "bob", "hi"), "")
	req.NoError(err)
	req.False(duplicate)
	req.Equal(message.StatusSent, m.Status)
	req.NotEmpty(m.ID)

	req.Eventually(func() bool { return bob.count(EventReceiveMessage) == 1 }, waitFor, tick)
	req.Eventually(func() bool { return alice.count(EventReceiveMessage) == 1 }, waitFor, tick)

	history, err := core.pipeline.Conversation(ctx, "bob", "alice")
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(m.ID, history[0].ID)
	req.Equal(message.StatusDelivered, history[0].Status)

	// The sender fetching the same history changes nothing.
	history, err = core.pipeline.Conversation(ctx, "alice", "bob")
	req.NoError(err)
	req.Equal(message.StatusDelivered, history[0].Status)

	updated, err := core.pipeline.MarkRead(ctx, "bob", []string{m.ID})
	req.NoError(err)
	req.Len(updated, 1)
	req.Equal(message.StatusRead, updated[0].Status)

	req.Eventually(func() bool { return len(alice.statuses(m.ID)) == 2 }, waitFor, tick)
	req.Equal([]message.Status{message.StatusDelivered, message.StatusRead}, alice.statuses(m.ID))

	// The recipient is not notified of its own status changes.
	req.Empty(bob.statuses(m.ID))
}

func TestPipeline_DedupWithinWindow(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	core := newTestCore(t, openStore(t))
	core.users(t, "alice", "bob")
	bob := core.connect(t, "b1", "bob")

	first, duplicate, err := core.pipeline.Submit(ctx, direct("alice", "bob", "hi"), "")
	req.NoError(err)
	req.False(duplicate)

	second, duplicate, err := core.pipeline.Submit(ctx, direct("alice", "bob", "hi"), "")
	req.NoError(err)
	req.True(duplicate)
	req.Equal(first.ID, second.ID)

	history, err := core.store.Conversation(ctx, "alice", "bob")
	req.NoError(err)
	req.Len(history, 1)

	// A retry is not fanned out again.
	req.Eventually(func() bool { return bob.count(EventReceiveMessage) == 1 }, waitFor, tick)
	req.Never(func() bool { return bob.count(EventReceiveMessage) > 1 }, 100*time.Millisecond, tick)

	// A different body is a different send.
	other, duplicate, err := core.pipeline.Submit(ctx, direct("alice", "bob", "hi again"), "")
	req.NoError(err)
	req.False(duplicate)
	req.NotEqual(first.ID, other.ID)
}

func TestPipeline_DedupWindowExpires(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	core := newTestCore(t, openStore(t))
	core.users(t, "alice", "bob")

	start := time.Now().UTC().Truncate(time.Microsecond)
	core.pipeline.now = func() time.Time { return start }

	first, _, err := core.pipeline.Submit(ctx, direct("alice", "bob", "hi"), "")
	req.NoError(err)

	core.pipeline.now = func() time.Time { return start.Add(core.pipeline.cfg.DedupWindow + time.Second) }

	second, duplicate, err := core.pipeline.Submit(ctx, direct("alice", "bob", "hi"), "")
	req.NoError(err)
	req.False(duplicate)
	req.NotEqual(first.ID, second.ID)
}

func TestPipeline_ConcurrentRetriesStoreOnce(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	core := newTestCore(t, openStore(t))
	core.users(t, "alice", "bob")

	ids := make(chan string, 10)
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, _, err := core.pipeline.Submit(ctx, direct("alice", "bob", "retry"), "")
			if err == nil {
				ids <- m.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{})
	for id := range ids {
		seen[id] = struct{}{}
	}
	req.Len(seen, 1)

	history, err := core.store.Conversation(ctx, "alice", "bob")
	req.NoError(err)
	req.Len(history, 1)
}

func TestPipeline_SubmitValidation(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t, openStore(t))
	core.users(t, "alice", "bob", "carol")

	g, err := group.New("g1", "Team", []string{"alice", "bob"}, "", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, core.store.CreateGroup(ctx, g))

	tests := []struct {
		name  string
		draft message.Draft
		code  int
	}{
		{"neither destination", message.Draft{Sender: "alice", Body: "x"}, errs.ErrInvalidDestination},
		{"both destinations", message.Draft{Sender: "alice", Destination: message.Destination{Receiver: "bob", Group: "g1"}, Body: "x"}, errs.ErrInvalidDestination},
		{"empty body without attachment", direct("alice", "bob", "   "), errs.ErrEmptyMessage},
		{"unknown receiver", direct("alice", "nobody", "x"), errs.ErrUserNotFound},
		{"unknown group", message.Draft{Sender: "alice", Destination: message.ToGroup("nope"), Body: "x"}, errs.ErrGroupNotFound},
		{"not a member", message.Draft{Sender: "carol", Destination: message.ToGroup("g1"), Body: "x"}, errs.ErrNotGroupMember},
		{"foreign attachment key", message.Draft{Sender: "alice", Destination: message.ToUser("bob"), Attachment: AttachmentKeyRoot + "bob/x.png"}, errs.ErrAttachmentKeyInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := core.pipeline.Submit(ctx, tt.draft, "")
			require.Error(t, err)
			require.True(t, errs.HasCode(err, tt.code), "got %v", err)
		})
	}

	history, err := core.store.Conversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestPipeline_AttachmentOnly(t *testing.T) {
	req := require.New(t)
	core := newTestCore(t, openStore(t))
	core.users(t, "alice", "bob")

	m, _, err := core.pipeline.Submit(context.Background(), message.Draft{
		Sender:      "alice",
		Destination: message.ToUser("bob"),
		Attachment:  AttachmentKeyRoot + "alice/photo.png",
	}, "")
	req.NoError(err)
	req.Empty(m.Body)
	req.Equal(AttachmentKeyRoot+"alice/photo.png", m.Attachment)
}

func TestPipeline_AdvanceStatusIsMonotonic(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	core := newTestCore(t, openStore(t))
	core.users(t, "alice", "bob")

	m, _, err := core.pipeline.Submit(ctx, direct("alice", "bob", "hi"), "")
	req.NoError(err)

	// Skipping straight to read is allowed.
	got, err := core.pipeline.AdvanceStatus(ctx, "bob", m.ID, message.StatusRead)
	req.NoError(err)
	req.Equal(message.StatusRead, got.Status)

	got, err = core.pipeline.AdvanceStatus(ctx, "bob", m.ID, message.StatusDelivered)
	req.True(errs.HasCode(err, errs.ErrStatusConflict))
	req.Equal(errs.KindConflict, errs.KindOf(err))
	req.Equal(message.StatusRead, got.Status)

	_, err = core.pipeline.AdvanceStatus(ctx, "bob", m.ID, message.StatusRead)
	req.True(errs.HasCode(err, errs.ErrStatusConflict))

	_, err = core.pipeline.AdvanceStatus(ctx, "bob", "missing", message.StatusRead)
	req.True(errs.HasCode(err, errs.ErrMessageNotFound))
	req.Equal(errs.KindNotFound, errs.KindOf(err))
}

func TestPipeline_OnlyRecipientsAdvance(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	core := newTestCore(t, openStore(t))
	core.users(t, "alice", "bob", "carol")

	m, _, err := core.pipeline.Submit(ctx, direct("alice", "bob", "hi"), "")
	req.NoError(err)

	for _, actor := range []string{"alice", "carol"} {
		_, err = core.pipeline.AdvanceStatus(ctx, actor, m.ID, message.StatusRead)
		req.True(errs.HasCode(err, errs.ErrNotRecipient), actor)
	}

	stored, err := core.store.GetMessage(ctx, m.ID)
	req.NoError(err)
	req.Equal(message.StatusSent, stored.Status)
}

func TestPipeline_ConcurrentAdvanceNeverRegresses(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	core := newTestCore(t, openStore(t))
	core.users(t, "alice", "bob")
	alice := core.connect(t, "a1", "alice")

	m, _, err := core.pipeline.Submit(ctx, direct("alice", "bob", "hi"), "")
	req.NoError(err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := message.StatusDelivered
			if i%2 == 1 {
				next = message.StatusRead
			}
			_, _ = core.pipeline.AdvanceStatus(ctx, "bob", m.ID, next)
		}()
	}
	wg.Wait()

	stored, err := core.store.GetMessage(ctx, m.ID)
	req.NoError(err)
	req.Equal(message.StatusRead, stored.Status)

	// The sender observed a strictly increasing subsequence of sent, delivered, read.
	req.Eventually(func() bool {
		s := alice.statuses(m.ID)
		return len(s) > 0 && s[len(s)-1] == message.StatusRead
	}, waitFor, tick)
	observed := alice.statuses(m.ID)
	for i := 1; i < len(observed); i++ {
		req.Greater(observed[i], observed[i-1])
	}
}

func TestPipeline_MarkReadBatch(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	core := newTestCore(t, openStore(t))
	core.users(t, "alice", "bob")

	var ids []string
	for _, body := range []string{"one", "two", "three"} {
		m, _, err := core.pipeline.Submit(ctx, direct("alice", "bob", body), "")
		req.NoError(err)
		ids = append(ids, m.ID)
	}

	_, err := core.pipeline.AdvanceStatus(ctx, "bob", ids[0], message.StatusRead)
	req.NoError(err)

	updated, err := core.pipeline.MarkRead(ctx, "bob", ids)
	req.NoError(err)
	req.Len(updated, 2)

	_, err = core.pipeline.MarkRead(ctx, "bob", []string{"missing"})
	req.True(errs.HasCode(err, errs.ErrMessageNotFound))
}

func TestPipeline_ReadAckRelays(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	core := newTestCore(t, openStore(t))
	core.users(t, "alice", "bob")
	alice := core.connect(t, "a1", "alice")

	m, _, err := core.pipeline.Submit(ctx, direct("alice", "bob", "hi"), "")
	req.NoError(err)

	got, err := core.pipeline.ReadAck(ctx, "bob", m.ID, "alice")
	req.NoError(err)
	req.Equal(message.StatusRead, got.Status)

	// A repeated receipt is relayed again rather than rejected.
	_, err = core.pipeline.ReadAck(ctx, "bob", m.ID, "alice")
	req.NoError(err)

	req.Eventually(func() bool { return len(alice.statuses(m.ID)) == 2 }, waitFor, tick)
}

func TestPipeline_GroupHistoryDelivered(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	core := newTestCore(t, openStore(t))
	core.users(t, "alice", "bob", "carol")

	g, err := group.New("g1", "Team", []string{"alice", "bob"}, "", time.Now().UTC())
	req.NoError(err)
	req.NoError(core.store.CreateGroup(ctx, g))

	m, _, err := core.pipeline.Submit(ctx, message.Draft{Sender: "alice", Destination: message.ToGroup("g1"), Body: "hello"}, "")
	req.NoError(err)

	history, err := core.pipeline.GroupHistory(ctx, "alice", "g1")
	req.NoError(err)
	req.Equal(message.StatusSent, history[0].Status)

	history, err = core.pipeline.GroupHistory(ctx, "bob", "g1")
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(m.ID, history[0].ID)
	req.Equal(message.StatusDelivered, history[0].Status)

	_, err = core.pipeline.GroupHistory(ctx, "carol", "g1")
	req.True(errs.HasCode(err, errs.ErrNotGroupMember))

	// The sender cannot mark its own group message read.
	_, err = core.pipeline.AdvanceStatus(ctx, "alice", m.ID, message.StatusRead)
	req.True(errs.HasCode(err, errs.ErrNotRecipient))
}

// stalledStore blocks every call until its context expires.
type stalledStore struct {
	store.Store
}

func (stalledStore) GetUser(ctx context.Context, _ string) (u user.User, err error) {
	<-ctx.Done()
	return u, ctx.Err()
}

func TestPipeline_StoreTimeoutFailsSubmit(t *testing.T) {
	req := require.New(t)
	base := openStore(t)
	core := newTestCore(t, base)
	core.users(t, "alice", "bob")

	core.pipeline.store = stalledStore{Store: base}
	core.pipeline.cfg.StoreTimeout = 50 * time.Millisecond

	start := time.Now()
	_, _, err := core.pipeline.Submit(context.Background(), direct("alice", "bob", "hi"), "")
	req.Error(err)
	req.Equal(errs.KindStoreUnavailable, errs.KindOf(err))
	req.Less(time.Since(start), time.Second)

	history, err := base.Conversation(context.Background(), "alice", "bob")
	req.NoError(err)
	req.Empty(history)
}
