// Package store provides the per-entity locking contract shared by every
// product database. The lock table is the only mutex in the engine: at most
// one mutation is in flight per entity, and unrelated entities proceed fully
// in parallel.
package store

import "sync"

// LockTable tracks which entities currently have a mutation in flight.
// Acquisition is fail-fast: contending callers observe a busy entity and
// retry after backoff rather than queueing, since the Ledger is the final
// arbiter of ordering anyway.
type LockTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLockTable() *LockTable {
	return &LockTable{held: make(map[string]struct{})}
}

// TryAcquire takes the exclusive lock for the entity, reporting false if
// another operation already holds it.
func (t *LockTable) TryAcquire(entityID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.held[entityID]; busy {
		return false
	}
	t.held[entityID] = struct{}{}
	return true
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (t *LockTable) Release(entityID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, entityID)
}

// Held reports whether a mutation is in flight for the entity. Product
// databases reject updates unless the coordinator holds the lock.
func (t *LockTable) Held(entityID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.held[entityID]
	return ok
}
