/*
Package keylock provides striped mutual exclusion keyed by string.

A fixed array of mutexes is indexed by the FNV-1a hash of the key, so two
operations on the same key always serialize while unrelated keys rarely
contend. Memory use is constant regardless of how many keys are seen.
*/
package keylock

import (
	"hash/fnv"
	"sync"
)

// DefaultStripes is the stripe count used by New when n <= 0.
const DefaultStripes = 256

// Striped is a set of mutexes selected by key.
type Striped struct {
	stripes []sync.Mutex
}

// New returns a Striped lock with n stripes.
func New(n int) *Striped {
	if n <= 0 {
		n = DefaultStripes
	}
	return &Striped{stripes: make([]sync.Mutex, n)}
}

func (s *Striped) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%uint32(len(s.stripes))]
}

// Lock acquires the stripe for key and returns its unlock function.
func (s *Striped) Lock(key string) (unlock func()) {
	mu := s.stripe(key)
	mu.Lock()
	return mu.Unlock
}
