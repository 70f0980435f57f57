// Package registry implements the per-node authoritative view of API
// definitions. It owns the only shared mutable structure in the gateway
// (the local-replica map), serializes every mutation behind a single
// mutex, and publishes a copy-on-write snapshot after each mutation so
// the matcher's hot path never blocks behind a slow Tracker callback.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/flowgate/gateway/gateway/apitypes"
	"github.com/flowgate/gateway/gateway/tracker"
	log "github.com/sirupsen/logrus"
)

// ErrAlreadyTracked is returned by AddAPI when the Tracker already holds
// (apiID, self).
var ErrAlreadyTracked = tracker.ErrAlreadyTracked

// ErrNotFound is returned by UpdateAPI/DeleteAPI for an unknown id.
var ErrNotFound = errors.New("not_found")

// Registry is the local, authoritative view of API definitions, kept
// convergent with the rest of the cluster via conflict resolution applied
// to the Tracker's join/leave callbacks.
type Registry struct {
	node    string
	tracker tracker.Tracker

	mu   sync.Mutex
	apis map[string]apitypes.Definition // primary map, read and written only under mu

	snapMu sync.RWMutex
	snap   map[string]apitypes.Definition // published copy for lock-free reads
}

// New builds a Registry bound to the given node identity and Tracker. The
// registry registers itself as the Tracker's listener.
func New(node string, t tracker.Tracker) *Registry {
	r := &Registry{
		node:    node,
		tracker: t,
		apis:    make(map[string]apitypes.Definition),
		snap:    make(map[string]apitypes.Definition),
	}
	if l, ok := t.(interface {
		SetListener(tracker.Listener)
	}); ok {
		l.SetListener(r)
	}
	return r
}

func (r *Registry) publishLocked() {
	snap := make(map[string]apitypes.Definition, len(r.apis))
	for id, d := range r.apis {
		snap[id] = d
	}
	r.snapMu.Lock()
	r.snap = snap
	r.snapMu.Unlock()
}

// ListAPIs returns a snapshot of every local replica, ordered by api_id so
// iteration order (and therefore matcher behaviour) is deterministic.
func (r *Registry) ListAPIs() []apitypes.Definition {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()

	ids := make([]string, 0, len(r.snap))
	for id := range r.snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]apitypes.Definition, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.snap[id])
	}
	return out
}

// APIs returns a snapshot of every local replica paired with the api_id it
// is keyed under, in the same deterministic order as ListAPIs. The matcher
// uses this instead of ListAPIs because a Definition never carries its own
// api_id (Name is a separate, human-supplied label).
func (r *Registry) APIs() []apitypes.NamedDefinition {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()

	ids := make([]string, 0, len(r.snap))
	for id := range r.snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]apitypes.NamedDefinition, 0, len(ids))
	for _, id := range ids {
		out = append(out, apitypes.NamedDefinition{ID: id, Definition: r.snap[id]})
	}
	return out
}

// GetAPI returns the local replica for apiID, if this node hosts it.
func (r *Registry) GetAPI(apiID string) (apitypes.Definition, bool) {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	d, ok := r.snap[apiID]
	return d, ok
}

// AddAPI creates a new local replica at ref_number 0 and tracks it.
func (r *Registry) AddAPI(apiID string, def apitypes.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def.NodeName = r.node
	def.RefNumber = 0
	def.Timestamp = time.Now()

	phxRef, err := r.tracker.Track(apiID, def)
	if err != nil {
		return err
	}
	def.PhxRef = phxRef
	r.apis[apiID] = def
	r.publishLocked()
	return nil
}

// UpdateAPI bumps ref_number, refreshes the timestamp, and pushes the new
// definition to the Tracker.
func (r *Registry) UpdateAPI(apiID string, def apitypes.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.apis[apiID]
	if !ok {
		return ErrNotFound
	}

	def.NodeName = r.node
	def.RefNumber = current.RefNumber + 1
	def.Timestamp = time.Now()

	phxRef, err := r.tracker.Update(apiID, def)
	if err != nil {
		return err
	}
	def.PhxRef = phxRef
	r.apis[apiID] = def
	r.publishLocked()
	return nil
}

// DeleteAPI withdraws the local replica.
func (r *Registry) DeleteAPI(apiID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.apis[apiID]; !ok {
		return ErrNotFound
	}
	if err := r.tracker.Untrack(apiID); err != nil {
		return err
	}
	delete(r.apis, apiID)
	r.publishLocked()
	return nil
}

// OnJoin implements tracker.Listener. It applies the conflict
// resolution rule: adopt an absent local replica as-is, defer to
// ref_number when the two differ, and fall back to a quorum vote (with a
// timestamp tie-break at an exact half) when ref_number matches but the
// definitions disagree.
func (r *Registry) OnJoin(apiID string, incoming apitypes.Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	local, ok := r.apis[apiID]
	if !ok {
		r.apis[apiID] = incoming
		r.publishLocked()
		log.WithField("api_id", apiID).Debug("registry: bootstrapped local replica from peer join")
		return
	}

	switch {
	case local.RefNumber > incoming.RefNumber:
		return // ours is newer, skip
	case local.RefNumber < incoming.RefNumber:
		r.apis[apiID] = incoming
		r.publishLocked()
		return
	default:
		if local.Equal(incoming) {
			return
		}
		if r.resolveQuorum(apiID, local, incoming) {
			r.apis[apiID] = incoming
			r.publishLocked()
		}
	}
}

// resolveQuorum implements the equal-ref_number tie-break: count replicas
// across the cluster that already match incoming, then compare the count
// against half the total, falling back to the timestamp when the vote is
// split exactly down the middle.
func (r *Registry) resolveQuorum(apiID string, local, incoming apitypes.Definition) bool {
	replicas := r.tracker.FindAll(apiID)
	total := len(replicas)
	matching := 0
	if total == 0 {
		// Nothing to vote with beyond the two definitions in hand; treat
		// the cluster as just {local, incoming}, incoming matching itself.
		total = 2
		matching = 1
	}

	for _, p := range replicas {
		if p.Definition.Equal(incoming) {
			matching++
		}
	}

	half := float64(total) / 2
	switch {
	case float64(matching) > half:
		return true
	case float64(matching) < half:
		return false
	default:
		return incoming.Timestamp.After(local.Timestamp)
	}
}

// OnLeave implements tracker.Listener.
func (r *Registry) OnLeave(apiID string, departing apitypes.Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	local, ok := r.apis[apiID]
	if !ok {
		return
	}

	if departing.NodeName == r.node {
		if departing.PhxRef == local.PhxRef {
			delete(r.apis, apiID)
			r.publishLocked()
		}
		return
	}

	if local.PhxRef == departing.PhxRef {
		delete(r.apis, apiID)
		r.publishLocked()
		return
	}

	if _, stillPresent := r.tracker.FindByNode(apiID, departing.NodeName); !stillPresent {
		delete(r.apis, apiID)
		r.publishLocked()
	}
}
