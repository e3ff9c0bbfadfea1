package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"chatrelay/internal/app/group"
	"chatrelay/internal/app/store"
	"chatrelay/internal/pkg/errs"
)

// Rooms resolves a group to its broadcast room: the fixed member set whose
// live connections receive the group's messages. Membership never changes
// after creation, so loaded groups are cached for the process lifetime.
type Rooms struct {
	groups  store.GroupStore
	timeout time.Duration

	// mu protects access to the cache map.
	mu    sync.RWMutex
	cache map[string]group.Group
}

// NewRooms creates an empty room directory backed by groups.
func NewRooms(groups store.GroupStore, timeout time.Duration) *Rooms {
	return &Rooms{
		groups:  groups,
		timeout: timeout,
		cache:   make(map[string]group.Group),
	}
}

// Get returns the group with the given ID, loading it on first use.
func (r *Rooms) Get(ctx context.Context, groupID string) (group.Group, error) {
	r.mu.RLock()
	g, ok := r.cache[groupID]
	r.mu.RUnlock()
	if ok {
		return g, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	g, err := r.groups.GetGroup(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return group.Group{}, errs.Wrap(errs.ErrGroupNotFound, err)
	}
	if err != nil {
		return group.Group{}, errs.Wrap(errs.ErrStoreUnavailable, err)
	}

	r.Put(g)
	return g, nil
}

// Put caches g, typically right after it was created.
func (r *Rooms) Put(g group.Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[g.ID] = g
}

// Join verifies that userID belongs to groupID and returns the group.
func (r *Rooms) Join(ctx context.Context, groupID, userID string) (group.Group, error) {
	g, err := r.Get(ctx, groupID)
	if err != nil {
		return group.Group{}, err
	}
	if !g.HasMember(userID) {
		return group.Group{}, errs.NewError(errs.ErrNotGroupMember)
	}
	return g, nil
}
