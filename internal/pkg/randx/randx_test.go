package randx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectionID(t *testing.T) {
	req := require.New(t)
	seen := make(map[string]struct{})

	for range 200 {
		id, err := ConnectionID()
		req.NoError(err)
		req.True(IsValidConnectionID(id), id)

		_, dup := seen[id]
		req.False(dup)
		seen[id] = struct{}{}
	}
}

func TestIsValidConnectionID(t *testing.T) {
	req := require.New(t)

	req.False(IsValidConnectionID("conn_short"))
	req.False(IsValidConnectionID("sock_ABCDEFGHIJKL"))
	req.False(IsValidConnectionID("conn_ABCDEFGHIJK!"))
	req.True(IsValidConnectionID("conn_ABCDEFGHIJKL"))
}

func TestEntityIDs(t *testing.T) {
	req := require.New(t)

	req.True(IsUUID(MessageID()))
	req.True(IsUUID(GroupID()))
	req.NotEqual(MessageID(), MessageID())
	req.False(IsUUID("not-a-uuid"))
}
