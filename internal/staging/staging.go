package staging

import "sync"

// Area collects pending file upserts and deletions for one round.
// Staging never fails; errors only arise downstream at commit time.
//
// A path is held as either content or a tombstone, never both: staging a
// delete discards prior staged content for that path and vice versa.
type Area struct {
	mu        sync.Mutex
	upserts   map[string][]byte
	tombstone map[string]struct{}
}

// Snapshot is an immutable view of the staged state. Path order is
// irrelevant; paths are unique across both maps.
type Snapshot struct {
	Upserts map[string][]byte
	Deletes map[string]struct{}
}

// New returns an empty staging area.
func New() *Area {
	return &Area{
		upserts:   make(map[string][]byte),
		tombstone: make(map[string]struct{}),
	}
}

// StageUpsert records content for path, overwriting any prior staged
// content and clearing any prior tombstone.
func (a *Area) StageUpsert(path string, content []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tombstone, path)
	buf := make([]byte, len(content))
	copy(buf, content)
	a.upserts[path] = buf
}

// StageDelete records a tombstone for path, discarding any prior staged
// content for the same path.
func (a *Area) StageDelete(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.upserts, path)
	a.tombstone[path] = struct{}{}
}

// Snapshot returns a copy of the current staged state.
func (a *Area) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		Upserts: make(map[string][]byte, len(a.upserts)),
		Deletes: make(map[string]struct{}, len(a.tombstone)),
	}
	for path, content := range a.upserts {
		buf := make([]byte, len(content))
		copy(buf, content)
		snap.Upserts[path] = buf
	}
	for path := range a.tombstone {
		snap.Deletes[path] = struct{}{}
	}
	return snap
}

// Clear empties both sets. Called after a commit attempt so stale state
// is never re-committed.
func (a *Area) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.upserts = make(map[string][]byte)
	a.tombstone = make(map[string]struct{})
}

// Len returns the number of staged entries (upserts plus tombstones).
func (a *Area) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.upserts) + len(a.tombstone)
}

// Empty reports whether nothing is staged.
func (s Snapshot) Empty() bool {
	return len(s.Upserts) == 0 && len(s.Deletes) == 0
}
