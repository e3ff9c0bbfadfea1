package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/app/user"
	"chatrelay/internal/pkg/logx"
)

// ErrRegistryClosed is returned by Register after Close.
var ErrRegistryClosed = errors.New("connection registry is closed")

// Connection is a live socket as seen by the delivery components.
type Connection interface {
	// ID is unique among live connections.
	ID() string

	// UserID is the authenticated owner of the connection.
	UserID() string

	// Send queues ev for the client without blocking. It fails when the
	// connection is gone or its queue is full.
	Send(ev Event) error
}

// TransitionKind classifies a registry change.
type TransitionKind int

const (
	// TransitionOnline is a user's 0→1 connection transition.
	TransitionOnline TransitionKind = iota + 1

	// TransitionOffline is a user's 1→0 connection transition.
	TransitionOffline

	// TransitionDeviceAdded is a further connection of an already online user.
	TransitionDeviceAdded
)

// Transition is emitted by the Registry after every connection change that
// the presence tracker cares about.
type Transition struct {
	Kind         TransitionKind
	UserID       string
	ConnectionID string
	At           time.Time
}

// Registry tracks live connections per user. All mutation goes through its
// methods and is serialized by mu; transitions are published after the lock
// is released.
type Registry struct {
	mu sync.RWMutex

	// connections maps a connection ID to its connection.
	connections map[string]Connection

	// byUser maps a user ID to the set of its connection IDs.
	byUser map[string]map[string]struct{}

	// lastSeen records when each user last went offline.
	lastSeen map[string]time.Time

	transitions chan Transition
	done        chan struct{}
	closeOnce   sync.Once

	now    func() time.Time
	logger zerolog.Logger
}

// NewRegistry creates an empty registry whose transition channel holds buffer events.
func NewRegistry(buffer int) *Registry {
	return &Registry{
		connections: make(map[string]Connection),
		byUser:      make(map[string]map[string]struct{}),
		lastSeen:    make(map[string]time.Time),
		transitions: make(chan Transition, buffer),
		done:        make(chan struct{}),
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		logger:      logx.Component("Registry"),
	}
}

// Transitions is the stream consumed by the presence tracker.
func (r *Registry) Transitions() <-chan Transition {
	return r.transitions
}

// Register adds c to its user's connection set. Registering the same
// connection twice is a no-op.
func (r *Registry) Register(c Connection) error {
	select {
	case <-r.done:
		return ErrRegistryClosed
	default:
	}

	r.mu.Lock()
	if _, exists := r.connections[c.ID()]; exists {
		r.mu.Unlock()
		return nil
	}

	set, ok := r.byUser[c.UserID()]
	if !ok {
		set = make(map[string]struct{})
		r.byUser[c.UserID()] = set
	}
	set[c.ID()] = struct{}{}
	r.connections[c.ID()] = c

	kind := TransitionDeviceAdded
	if len(set) == 1 {
		kind = TransitionOnline
	}
	count := len(set)
	r.mu.Unlock()

	r.logger.Debug().
		Str("user_id", c.UserID()).
		Str("conn_id", c.ID()).
		Int("connections", count).
		Msg("Connection registered.")

	r.publish(Transition{Kind: kind, UserID: c.UserID(), ConnectionID: c.ID(), At: r.now()})
	return nil
}

// Unregister removes the connection with the given ID. It returns the owning
// user and whether that was the user's last connection. Unknown IDs are ignored.
func (r *Registry) Unregister(connID string) (userID string, wentOffline bool) {
	r.mu.Lock()
	c, ok := r.connections[connID]
	if !ok {
		r.mu.Unlock()
		return "", false
	}

	userID = c.UserID()
	delete(r.connections, connID)

	set := r.byUser[userID]
	delete(set, connID)

	at := r.now()
	if len(set) == 0 {
		delete(r.byUser, userID)
		r.lastSeen[userID] = at
		wentOffline = true
	}
	r.mu.Unlock()

	r.logger.Debug().
		Str("user_id", userID).
		Str("conn_id", connID).
		Bool("went_offline", wentOffline).
		Msg("Connection unregistered.")

	if wentOffline {
		r.publish(Transition{Kind: TransitionOffline, UserID: userID, ConnectionID: connID, At: at})
	}
	return userID, wentOffline
}

// publish hands t to the tracker; it gives up once the registry is closed.
func (r *Registry) publish(t Transition) {
	select {
	case r.transitions <- t:
	case <-r.done:
	}
}

// ConnectionsFor returns the live connections of userID, empty when offline.
func (r *Registry) ConnectionsFor(userID string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	conns := make([]Connection, 0, len(set))
	for id := range set {
		conns = append(conns, r.connections[id])
	}
	return conns
}

// Lookup returns the live connection with the given ID.
func (r *Registry) Lookup(connID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connections[connID]
	return c, ok
}

// All returns every live connection.
func (r *Registry) All() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Connection, 0, len(r.connections))
	for _, c := range r.connections {
		conns = append(conns, c)
	}
	return conns
}

// Presence returns the registry's view of userID. LastSeen is nil when the
// user has not gone offline during this process lifetime.
func (r *Registry) Presence(userID string) user.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p := user.Presence{Online: len(r.byUser[userID]) > 0}
	if seen, ok := r.lastSeen[userID]; ok {
		p.LastSeen = &seen
	}
	return p
}

// Overlay replaces the presence fields of users with the live registry view.
// Stored last-seen values are kept when the registry has none.
func (r *Registry) Overlay(users []user.User) user.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(user.Snapshot, len(users)+len(r.byUser))
	for _, u := range users {
		p := u.PresenceOf()
		p.Online = len(r.byUser[u.ID]) > 0
		if seen, ok := r.lastSeen[u.ID]; ok {
			p.LastSeen = &seen
		}
		snapshot[u.ID] = p
	}
	for userID := range r.byUser {
		if _, ok := snapshot[userID]; !ok {
			snapshot[userID] = user.Presence{Online: true}
		}
	}
	return snapshot
}

// Close stops transition publishing and rejects further registrations.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}
