package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLock_SerializesSameKey(t *testing.T) {
	s := New(8)
	counter := 0

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("message-1")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	require.Equal(t, 100, counter)
}

func TestLock_SameKeySameStripe(t *testing.T) {
	s := New(0)

	require.Len(t, s.stripes, DefaultStripes)
	require.Same(t, s.stripe("a"), s.stripe("a"))
}
