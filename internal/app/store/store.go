/*
Package store declares the persistence contract of the delivery subsystem.

Two implementations exist: internal/app/db (PostgreSQL) and
internal/app/store/badgerstore (embedded Badger). Both return the sentinel
errors below; every other error is treated by callers as the store being
unavailable.
*/
package store

import (
	"context"
	"errors"
	"time"

	"chatrelay/internal/app/group"
	"chatrelay/internal/app/message"
	"chatrelay/internal/app/user"
)

var (
	// ErrNotFound is returned when the referenced record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrStatusConflict is returned by AdvanceStatus when the stored status is
	// already at or past the requested one.
	ErrStatusConflict = errors.New("store: status not advanced")

	// ErrAlreadyExists is returned when inserting a record whose id is taken.
	ErrAlreadyExists = errors.New("store: already exists")
)

// UserStore persists users and their presence fields.
type UserStore interface {
	// EnsureUser creates the user if missing and returns the stored record.
	// An existing user's display name is left untouched.
	EnsureUser(ctx context.Context, id, displayName string) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error
}

// MessageStore persists messages and their status.
type MessageStore interface {
	InsertMessage(ctx context.Context, m message.Message) error
	GetMessage(ctx context.Context, id string) (message.Message, error)

	// FindRecentDuplicate returns the newest message with the given fingerprint
	// whose timestamp is not before since.
	FindRecentDuplicate(ctx context.Context, fingerprint string, since time.Time) (message.Message, bool, error)

	// AdvanceStatus sets the status to next only if it is strictly later than
	// the stored one. On ErrStatusConflict the current message is returned.
	AdvanceStatus(ctx context.Context, id string, next message.Status) (message.Message, error)

	// Conversation returns the direct messages between a and b, oldest first.
	Conversation(ctx context.Context, a, b string) ([]message.Message, error)

	// GroupMessages returns the messages of a group, oldest first.
	GroupMessages(ctx context.Context, groupID string) ([]message.Message, error)
}

// GroupStore persists groups.
type GroupStore interface {
	CreateGroup(ctx context.Context, g group.Group) error
	GetGroup(ctx context.Context, id string) (group.Group, error)
	GroupsForUser(ctx context.Context, userID string) ([]group.Group, error)
}

// Store is the full persistence contract.
type Store interface {
	UserStore
	MessageStore
	GroupStore

	Ping(ctx context.Context) error
	Close() error
}
