package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/app/store"
	"chatrelay/internal/app/user"
	"chatrelay/internal/pkg/logx"
)

// PresenceTracker persists presence changes published by the Registry and
// broadcasts the full presence snapshot to every live connection.
type PresenceTracker struct {
	registry *Registry
	users    store.UserStore
	timeout  time.Duration

	// known is the last user list read from the store. It backs the snapshot
	// when the store cannot be reached.
	known []user.User

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger zerolog.Logger
}

// NewPresenceTracker creates a tracker; call Start to begin consuming transitions.
func NewPresenceTracker(registry *Registry, users store.UserStore, timeout time.Duration) *PresenceTracker {
	return &PresenceTracker{
		registry: registry,
		users:    users,
		timeout:  timeout,
		stop:     make(chan struct{}),
		logger:   logx.Component("PresenceTracker"),
	}
}

// Start launches the presence loop.
func (p *PresenceTracker) Start() {
	p.wg.Add(1)
	go p.run()
}

// run handles transitions until Stop is called.
func (p *PresenceTracker) run() {
	defer p.wg.Done()

	p.logger.Info().Msg("Presence loop started.")

	for {
		select {
		case <-p.stop:
			p.logger.Info().Msg("Presence loop stopped.")
			return
		case t := <-p.registry.Transitions():
			p.handle(t)
		}
	}
}

// Stop ends the presence loop and waits for it to finish.
func (p *PresenceTracker) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

func (p *PresenceTracker) handle(t Transition) {
	if t.Kind == TransitionDeviceAdded {
		c, ok := p.registry.Lookup(t.ConnectionID)
		if !ok {
			return
		}
		p.sendSnapshot([]Connection{c}, p.snapshot())
		return
	}

	// The registry may have moved on since t was published; persist what it
	// holds now so the stored flag converges on the latest state.
	current := p.registry.Presence(t.UserID)
	if err := p.persist(t.UserID, current); err != nil {
		p.logger.Error().Err(err).
			Str("user_id", t.UserID).
			Bool("online", current.Online).
			Msg("Failed to persist presence.")
	}

	p.sendSnapshot(p.registry.All(), p.snapshot())
}

func (p *PresenceTracker) persist(userID string, presence user.Presence) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	var lastSeen *time.Time
	if !presence.Online {
		lastSeen = presence.LastSeen
	}
	return p.users.SetPresence(ctx, userID, presence.Online, lastSeen)
}

// snapshot builds the full presence view from the stored users overlaid with
// the live registry state.
func (p *PresenceTracker) snapshot() user.Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	users, err := p.users.ListUsers(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to list users, using the last known list.")
	} else {
		p.known = users
	}

	return p.registry.Overlay(p.known)
}

func (p *PresenceTracker) sendSnapshot(targets []Connection, snapshot user.Snapshot) {
	ev := Event{Type: EventUpdateUserStatus, Payload: snapshot}
	for _, c := range targets {
		if err := c.Send(ev); err != nil {
			p.logger.Debug().Err(err).Str("conn_id", c.ID()).Msg("Presence snapshot not delivered.")
		}
	}
}
