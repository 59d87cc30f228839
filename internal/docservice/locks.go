package docservice

import "sync"

// idLocks serializes mutations per document id: at most one in-flight
// create/update/delete per id, mutations on different ids in parallel.
type idLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newIDLocks() *idLocks {
	return &idLocks{entries: make(map[string]*lockEntry)}
}

// lock acquires the exclusive section for id and returns the release
// func. Entries are refcounted so the map does not grow unbounded.
func (l *idLocks) lock(id string) func() {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
