// Package lock provides a per-key advisory mutex used to serialize ledger
// mutations against the same account.
//
// Two concurrent lifecycle operations on one account both read the same
// pre-image balance before applying their deltas; under snapshot isolation
// that is classic write skew. Holding the account's lock across the whole
// reverse-then-repost sequence removes the race for a single instance. For
// horizontal scaling, replace with database advisory locks or serializable
// transactions.
package lock

import "sync"

// Keyed is a set of named mutexes. Locks are created on first use and kept
// for the lifetime of the set; account cardinality in a back office is low
// enough that eviction is not worth the complexity.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyed creates an empty keyed lock set.
func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it if needed. Blocks until the
// lock is available.
func (k *Keyed) Lock(key string) {
	k.mutexFor(key).Lock()
}

// Unlock releases the mutex for key. Panics if the key was never locked,
// same as unlocking an unlocked sync.Mutex.
func (k *Keyed) Unlock(key string) {
	k.mutexFor(key).Unlock()
}

func (k *Keyed) mutexFor(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}
