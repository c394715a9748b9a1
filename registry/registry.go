// Package registry maintains, per service name, the ordered set of peers
// currently known to be alive and selects among them with round-robin
// fairness.
package registry

import (
	"slices"
	"sync"

	"github.com/rs/xid"
	"go.uber.org/atomic"
)

// PeerId is the opaque, fixed-width, totally-ordered identifier the
// transport assigns to a session. xid.ID already satisfies every invariant
// the data model asks for: 12 bytes, monotonically sortable, string
// convertible, hash-stable as a map key.
type PeerId = xid.ID

// ServiceName identifies a set of interchangeable peers.
type ServiceName string

// entry holds the ordered membership for one service plus its rotation
// counter. Mutation is single-writer under mu: readers never observe a
// partially updated slice.
type entry struct {
	mu      sync.RWMutex
	members []PeerId
	next    *atomic.Uint64
}

func newEntry() *entry {
	return &entry{next: atomic.NewUint64(0)}
}

// Registry is a concurrent map from ServiceName to its entry. The outer
// map is guarded by its own mutex; per-entry mutation is independent so
// selecting from one service never blocks inserts into another.
type Registry struct {
	mu      sync.RWMutex
	entries map[ServiceName]*entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: map[ServiceName]*entry{}}
}

func (r *Registry) getOrCreate(service ServiceName) *entry {
	r.mu.RLock()
	e, ok := r.entries[service]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[service]; ok {
		return e
	}
	e = newEntry()
	r.entries[service] = e
	return e
}

// Insert idempotently adds peer to service's membership. After Insert
// returns, peer is a member of service.
func (r *Registry) Insert(service ServiceName, peer PeerId) {
	e := r.getOrCreate(service)

	e.mu.Lock()
	defer e.mu.Unlock()
	if slices.Contains(e.members, peer) {
		return
	}
	members := append(slices.Clone(e.members), peer)
	slices.SortFunc(members, PeerId.Compare)
	e.members = members
}

// Remove deletes peer from service's membership, reporting whether it was
// present. The entry itself is kept (possibly with an empty set) so the
// rotation counter survives membership churn.
func (r *Registry) Remove(service ServiceName, peer PeerId) bool {
	r.mu.RLock()
	e, ok := r.entries[service]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	idx := slices.Index(e.members, peer)
	if idx < 0 {
		return false
	}
	e.members = slices.Delete(slices.Clone(e.members), idx, idx+1)
	return true
}

// Select returns a peer for service chosen by round-robin rotation over
// the ordered membership, or false if the service is unknown or empty.
func (r *Registry) Select(service ServiceName) (PeerId, bool) {
	r.mu.RLock()
	e, ok := r.entries[service]
	r.mu.RUnlock()
	if !ok {
		return PeerId{}, false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	n := len(e.members)
	if n == 0 {
		return PeerId{}, false
	}

	idx := e.next.Inc() % uint64(n)
	return e.members[idx], true
}

// Contains reports whether service has any registered membership entry.
func (r *Registry) Contains(service ServiceName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[service]
	return ok
}

// Keys returns every service name the Registry currently tracks.
func (r *Registry) Keys() []ServiceName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceName, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	return out
}

// Len returns the number of distinct service names tracked.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IsEmpty reports whether the Registry tracks no services at all.
func (r *Registry) IsEmpty() bool {
	return r.Len() == 0
}
