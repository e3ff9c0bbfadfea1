/*
Package user contains the representation of a chat participant and its presence.

Identity is owned by the external auth service; this package only records the
display name it handed us and the presence fields this service maintains.
*/
package user

import "time"

// User represents a chat participant as persisted by the store.
type User struct {
	// ID is the identifier issued by the auth service.
	ID string `json:"id"`

	// DisplayName is the name shown to other participants.
	DisplayName string `json:"displayName"`

	// Online is true while the user has at least one live connection.
	Online bool `json:"online"`

	// LastSeen is the time the user's last connection closed, nil if never seen offline.
	LastSeen *time.Time `json:"lastSeen"`
}

// Presence is the per-user entry of a presence snapshot.
type Presence struct {
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen"`
}

// Snapshot is the full presence view broadcast to clients, keyed by user ID.
type Snapshot map[string]Presence

// PresenceOf returns the presence fields of u.
func (u User) PresenceOf() Presence {
	return Presence{Online: u.Online, LastSeen: u.LastSeen}
}
