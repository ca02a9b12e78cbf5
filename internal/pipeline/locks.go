package pipeline

import "sync"

// docLocks serializes indexing work per document ID. Operations on
// different documents proceed in parallel; two operations on the same
// document queue behind each other, which is what makes delete-then-
// insert safe without a global write lock.
type docLocks struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

func newDocLocks() *docLocks {
	return &docLocks{locks: make(map[string]*docLock)}
}

// lock acquires the lock for id, creating it on first use.
func (d *docLocks) lock(id string) {
	d.mu.Lock()
	l, ok := d.locks[id]
	if !ok {
		l = &docLock{}
		d.locks[id] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
}

// unlock releases the lock for id and frees it once nobody waits.
func (d *docLocks) unlock(id string) {
	d.mu.Lock()
	l := d.locks[id]
	l.refs--
	if l.refs == 0 {
		delete(d.locks, id)
	}
	d.mu.Unlock()

	l.mu.Unlock()
}
