/*
Package group defines chat groups. Membership is fixed at creation.
*/
package group

import (
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"chatrelay/internal/pkg/errs"
)

const (
	// MinMembers is the smallest group that may be created.
	MinMembers = 2

	// MaxNameLength bounds the group name.
	MaxNameLength = 100
)

// Group is a named, fixed set of members.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether userID belongs to g.
func (g Group) HasMember(userID string) bool {
	return slices.Contains(g.Members, userID)
}

// New builds a group from its name and members, deduplicating and sorting the
// member list. It fails on a blank or over-long name, and when fewer than
// MinMembers distinct members remain.
func New(id, name string, members []string, avatar string, now time.Time) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxNameLength {
		return Group{}, errs.NewError(errs.ErrInvalidGroupName, MaxNameLength)
	}

	unique := lo.Uniq(lo.Compact(members))
	if len(unique) < MinMembers {
		return Group{}, errs.NewError(errs.ErrGroupTooSmall, MinMembers)
	}
	slices.Sort(unique)

	return Group{
		ID:        id,
		Name:      name,
		Members:   unique,
		Avatar:    avatar,
		CreatedAt: now,
	}, nil
}
