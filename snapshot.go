package viewdb

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/autom8ter/viewdb/kv"
)

// version is an immutable, published database state: the state of every view plus the row store version it was
// committed at
type version struct {
	snapshot  uint64
	kvVersion uint64
	views     map[string]*registeredView
	// changeset is the changeset that produced this version from the previous one
	changeset *Changeset
	refs      atomic.Int64
}

// registeredView is a view definition together with its state at one version
type registeredView struct {
	view  *View
	state *viewState
}

// snapshotStore owns every version still referenced by a connection or a pending changeset queue. A version is
// released once nothing references it and a newer one has been published.
type snapshotStore struct {
	mu        sync.Mutex
	versions  map[uint64]*version
	latest    atomic.Pointer[version]
	conns     map[*Connection]struct{}
	discarder kv.VersionDiscarder
	metrics   *metrics
	logger    Logger
}

func newSnapshotStore(kvVersion uint64, discarder kv.VersionDiscarder, m *metrics, logger Logger) *snapshotStore {
	initial := &version{
		snapshot:  0,
		kvVersion: kvVersion,
		views:     map[string]*registeredView{},
	}
	// the latest slot holds a reference
	initial.refs.Store(1)
	s := &snapshotStore{
		versions:  map[uint64]*version{0: initial},
		conns:     map[*Connection]struct{}{},
		discarder: discarder,
		metrics:   m,
		logger:    logger,
	}
	s.latest.Store(initial)
	m.liveVersions.Set(1)
	return s
}

// head returns the latest version without adding a reference
func (s *snapshotStore) head() *version {
	return s.latest.Load()
}

// attach registers the connection and returns the latest version with a reference held for it
func (s *snapshotStore) attach(c *Connection) *version {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
	v := s.latest.Load()
	v.refs.Add(1)
	return v
}

// detach unregisters the connection. It will no longer receive changesets.
func (s *snapshotStore) detach(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// publish makes next the latest version and queues it on every attached connection other than the committer.
// The committer receives a reference for its own cache.
func (s *snapshotStore) publish(ctx context.Context, next *version, committer *Connection) {
	s.mu.Lock()
	// one reference for the latest slot and one for the committer
	next.refs.Store(2)
	for c := range s.conns {
		if c == committer {
			continue
		}
		next.refs.Add(1)
		c.enqueue(next)
	}
	s.versions[next.snapshot] = next
	prev := s.latest.Swap(next)
	s.metrics.snapshot.Set(float64(next.snapshot))
	s.metrics.liveVersions.Set(float64(len(s.versions)))
	s.mu.Unlock()
	s.release(ctx, prev)
}

// release drops a reference to the version and frees it once it is unreferenced
func (s *snapshotStore) release(ctx context.Context, v *version) {
	if v == nil || v.refs.Add(-1) > 0 {
		return
	}
	s.mu.Lock()
	if v.refs.Load() > 0 || s.latest.Load() == v {
		s.mu.Unlock()
		return
	}
	delete(s.versions, v.snapshot)
	oldest := s.oldestKVVersion()
	s.metrics.liveVersions.Set(float64(len(s.versions)))
	s.mu.Unlock()
	if s.discarder != nil {
		if err := s.discarder.DiscardBefore(ctx, oldest); err != nil {
			s.logger.Warn(ctx, "failed to discard row store versions", map[string]any{
				"version": oldest,
				"error":   err.Error(),
			})
		}
	}
}

// oldestKVVersion returns the row store version of the oldest retained version. The caller must hold s.mu.
func (s *snapshotStore) oldestKVVersion() uint64 {
	var oldest uint64
	for _, v := range s.versions {
		if oldest == 0 || v.kvVersion < oldest {
			oldest = v.kvVersion
		}
	}
	return oldest
}

// live returns the number of retained versions
func (s *snapshotStore) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.versions)
}
