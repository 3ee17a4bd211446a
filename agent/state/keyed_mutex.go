package state

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// KeyedMutex serializes work per key. Entries are reference counted and
// dropped when the last holder unlocks, so idle keys cost nothing.
type KeyedMutex struct {
	locks *xsync.MapOf[string, *keyedEntry]
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: xsync.NewMapOf[string, *keyedEntry]()}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	entry, _ := k.locks.Compute(key, func(e *keyedEntry, loaded bool) (*keyedEntry, bool) {
		if !loaded {
			e = &keyedEntry{}
		}
		e.refs++
		return e, false
	})
	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			k.locks.Compute(key, func(e *keyedEntry, loaded bool) (*keyedEntry, bool) {
				if !loaded {
					return nil, true
				}
				e.refs--
				return e, e.refs <= 0
			})
		})
	}
}
