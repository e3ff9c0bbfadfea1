package group

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatrelay/internal/pkg/errs"
)

func TestNew(t *testing.T) {
	req := require.New(t)

	g, err := New("g1", "  Team  ", []string{"carol", "alice", "carol", "", "bob"}, "", time.Now())

	req.NoError(err)
	req.Equal("Team", g.Name)
	req.Equal([]string{"alice", "bob", "carol"}, g.Members)
	req.True(g.HasMember("bob"))
	req.False(g.HasMember("dave"))
}

func TestNew_TooSmall(t *testing.T) {
	req := require.New(t)

	_, err := New("g1", "Solo", []string{"alice", "alice"}, "", time.Now())
	req.True(errs.HasCode(err, errs.ErrGroupTooSmall))
}

func TestNew_InvalidName(t *testing.T) {
	req := require.New(t)

	_, err := New("g1", " ", []string{"alice", "bob"}, "", time.Now())
	req.True(errs.HasCode(err, errs.ErrInvalidGroupName))

	_, err = New("g1", strings.Repeat("x", MaxNameLength+1), []string{"alice", "bob"}, "", time.Now())
	req.True(errs.HasCode(err, errs.ErrInvalidGroupName))
	req.False(errs.HasCode(err, errs.ErrGroupTooSmall))
}
