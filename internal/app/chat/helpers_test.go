package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/message"
	"chatrelay/internal/app/store"
	"chatrelay/internal/app/store/badgerstore"
)

const (
	testTimeout = 2 * time.Second
	waitFor     = 2 * time.Second
	tick        = 10 * time.Millisecond
)

// fakeConn records every event sent to it.
type fakeConn struct {
	id     string
	userID string

	mu     sync.Mutex
	events []Event
	closed bool
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, userID: userID}
}

func (f *fakeConn) ID() string     { return f.id }
func (f *fakeConn) UserID() string { return f.userID }

func (f *fakeConn) Send(ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClientClosed
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeConn) Close(int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// of returns the recorded events of the given type.
func (f *fakeConn) of(kind EventType) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Event
	for _, ev := range f.events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeConn) count(kind EventType) int {
	return len(f.of(kind))
}

// statuses returns the status updates received for messageID, in order.
func (f *fakeConn) statuses(messageID string) []message.Status {
	var out []message.Status
	for _, ev := range f.of(EventUpdateMessageStatus) {
		p := ev.Payload.(StatusUpdatePayload)
		if p.MessageID == messageID {
			out = append(out, p.Status)
		}
	}
	return out
}

// testCore is the delivery core wired to an in-memory Badger store.
type testCore struct {
	store    store.Store
	registry *Registry
	presence *PresenceTracker
	rooms    *Rooms
	router   *Router
	pipeline *Pipeline
	typing   *TypingRelay
}

func openStore(t *testing.T) store.Store {
	t.Helper()
	s, err := badgerstore.Open(badgerstore.Options{InMemory: true, DedupRetention: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestCore(t *testing.T, st store.Store) *testCore {
	t.Helper()

	registry := NewRegistry(64)
	rooms := NewRooms(st, testTimeout)
	router := NewRouter(registry, rooms)
	core := &testCore{
		store:    st,
		registry: registry,
		presence: NewPresenceTracker(registry, st, testTimeout),
		rooms:    rooms,
		router:   router,
		pipeline: NewPipeline(st, rooms, router, PipelineConfig{StoreTimeout: testTimeout, DedupWindow: 5 * time.Second}),
		typing:   NewTypingRelay(registry),
	}

	core.presence.Start()
	core.router.Start()
	t.Cleanup(func() {
		registry.Close()
		core.presence.Stop()
		core.router.Stop()
	})
	return core
}

// users creates the given users in the store.
func (c *testCore) users(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := c.store.EnsureUser(context.Background(), id, id)
		require.NoError(t, err)
	}
}

// connect registers a new fake connection for userID.
func (c *testCore) connect(t *testing.T, connID, userID string) *fakeConn {
	t.Helper()
	conn := newFakeConn(connID, userID)
	require.NoError(t, c.registry.Register(conn))
	return conn
}

func direct(sender, receiver, body string) message.Draft {
	return message.Draft{Sender: sender, Destination: message.ToUser(receiver), Body: body}
}
