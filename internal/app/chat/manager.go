/*
Package chat contains the real-time delivery core: the connection registry,
presence tracking, the message pipeline, fan-out and the typing relay.

This file defines the Manager struct, which owns every component of the core,
wires them together and exposes the operations used by the HTTP and socket layers.
*/
package chat

import (
	"context"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatrelay/internal/app/group"
	"chatrelay/internal/app/store"
	"chatrelay/internal/app/user"
	"chatrelay/internal/configs"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/randx"
)

const transitionBuffer = 1024

// Manager struct is responsible for coordinating the delivery components.
type Manager struct {
	store    store.Store
	registry *Registry
	presence *PresenceTracker
	rooms    *Rooms
	router   *Router
	pipeline *Pipeline
	typing   *TypingRelay

	timeout time.Duration

	// ctx is the parent of every connection context; cancel ends them on shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	// structured logger with Manager context.
	logger zerolog.Logger
}

// NewManager constructs the core over st and starts its loops.
func NewManager(st store.Store, cfg *configs.AppConfig) *Manager {
	registry := NewRegistry(transitionBuffer)
	rooms := NewRooms(st, cfg.StoreTimeout)
	router := NewRouter(registry, rooms)

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		store:    st,
		registry: registry,
		presence: NewPresenceTracker(registry, st, cfg.StoreTimeout),
		rooms:    rooms,
		router:   router,
		pipeline: NewPipeline(st, rooms, router, PipelineConfig{
			StoreTimeout: cfg.StoreTimeout,
			DedupWindow:  cfg.DedupWindow,
		}),
		typing:  NewTypingRelay(registry),
		timeout: cfg.StoreTimeout,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logx.Component("Manager"),
	}

	m.presence.Start()
	m.router.Start()

	return m
}

// Registry returns the connection registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Pipeline returns the message pipeline.
func (m *Manager) Pipeline() *Pipeline { return m.pipeline }

// Typing returns the typing relay.
func (m *Manager) Typing() *TypingRelay { return m.typing }

// Identity is the authenticated caller of a socket connection.
type Identity struct {
	UserID      string
	DisplayName string
	ExpiresAt   time.Time
}

// Connect records the user, registers the socket and starts its loops. On
// error the caller still owns wsConn.
func (m *Manager) Connect(wsConn *websocket.Conn, id Identity) (*Client, error) {
	if _, err := m.EnsureUser(m.ctx, id.UserID, id.DisplayName); err != nil {
		return nil, err
	}

	connID, err := randx.ConnectionID()
	if err != nil {
		return nil, errs.Wrap(errs.ErrUnknown, err)
	}

	client := newClient(m, wsConn, connID, id.UserID, id.ExpiresAt)
	if err := m.registry.Register(client); err != nil {
		return nil, errs.Wrap(errs.ErrUnknown, err)
	}

	go client.WritePump()
	go client.ReadPump(m.ctx)

	client.logger.Info().Msg("Client connected.")
	return client, nil
}

// disconnect is called once per client when its read loop ends.
func (m *Manager) disconnect(c *Client) {
	if _, wentOffline := m.registry.Unregister(c.ID()); wentOffline {
		c.logger.Info().Msg("User went offline.")
	}
}

// EnsureUser creates the user record on first sight.
func (m *Manager) EnsureUser(ctx context.Context, userID, displayName string) (user.User, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	u, err := m.store.EnsureUser(ctx, userID, displayName)
	if err != nil {
		return user.User{}, storeError(err, errs.ErrUserNotFound)
	}
	return u, nil
}

// Users lists every user with the live presence view applied.
func (m *Manager) Users(ctx context.Context) ([]user.User, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	users, err := m.store.ListUsers(ctx)
	if err != nil {
		return nil, storeError(err, errs.ErrUserNotFound)
	}

	snapshot := m.registry.Overlay(users)
	for i := range users {
		p := snapshot[users[i].ID]
		users[i].Online = p.Online
		users[i].LastSeen = p.LastSeen
	}
	return users, nil
}

// CreateGroup creates a group owned by creator, who is always a member.
func (m *Manager) CreateGroup(ctx context.Context, creator, name string, members []string, avatar string) (group.Group, error) {
	g, err := group.New(randx.GroupID(), name, append(slices.Clone(members), creator), avatar, time.Now().UTC().Truncate(time.Microsecond))
	if err != nil {
		return group.Group{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.store.CreateGroup(ctx, g); err != nil {
		return group.Group{}, storeError(err, errs.ErrGroupNotFound)
	}
	m.rooms.Put(g)

	m.logger.Info().Str("group_id", g.ID).Int("members", len(g.Members)).Msg("Group created.")
	return g, nil
}

// GroupsFor lists the groups userID belongs to.
func (m *Manager) GroupsFor(ctx context.Context, userID string) ([]group.Group, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	groups, err := m.store.GroupsForUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, errs.ErrGroupNotFound)
	}
	return groups, nil
}

// JoinGroup verifies membership and warms the group's room.
func (m *Manager) JoinGroup(ctx context.Context, userID, groupID string) (group.Group, error) {
	return m.rooms.Join(ctx, groupID, userID)
}

// Ping checks the store.
func (m *Manager) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.store.Ping(ctx)
}

// Shutdown closes every connection and stops the loops. The store is left open.
func (m *Manager) Shutdown() {
	m.logger.Info().Msg("Shutting down Manager...")

	m.registry.Close()
	for _, c := range m.registry.All() {
		if closer, ok := c.(interface{ Close(code int, reason string) }); ok {
			closer.Close(websocket.CloseGoingAway, "server shutting down")
		}
	}
	m.cancel()

	m.presence.Stop()
	m.router.Stop()

	m.logger.Info().Msg("Manager shutdown complete.")
}
