// Package tracker implements the cluster presence service the registry
// consumes: a map of {api_id, node} -> definition, replicated by whatever
// transport is wired in (see gossip.go for the default one), delivering
// join/leave callbacks to a single Listener.
//
// The map itself is one mutex guarding a nested map, locked for the
// duration of a mutation and released before any listener callback runs
// so a slow Registry never holds up a concurrent Track/Untrack from
// another goroutine.
package tracker

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/flowgate/gateway/gateway/apitypes"
	log "github.com/sirupsen/logrus"
)

// ErrAlreadyTracked is returned by Track when (apiID, self) is already
// present.
var ErrAlreadyTracked = errors.New("already_tracked")

// ErrNotTracked is returned by Update/Untrack when no local replica exists.
var ErrNotTracked = errors.New("not_tracked")

// Presence is one replica's entry in the cluster-wide presence map.
type Presence struct {
	APIID      string
	NodeName   string
	Definition apitypes.Definition
}

// Listener receives presence-change notifications. The registry is the
// only production implementation; it must tolerate duplicate and
// self-originated deliveries.
type Listener interface {
	OnJoin(apiID string, meta apitypes.Definition)
	OnLeave(apiID string, meta apitypes.Definition)
}

// Tracker is the presence service contract the registry is built against.
type Tracker interface {
	Track(apiID string, meta apitypes.Definition) (phxRef string, err error)
	Untrack(apiID string) error
	Update(apiID string, meta apitypes.Definition) (phxRef string, err error)
	ListByNode(node string) []Presence
	FindByNode(apiID, node string) (Presence, bool)
	FindAll(apiID string) []Presence
}

// Local is the in-memory presence map for a single node. It implements
// Tracker directly and exposes Deliver so a transport (gossip.go, or a
// test) can inject remote join/leave events.
type Local struct {
	node string

	mu sync.RWMutex
	// apiID -> node -> Presence
	byAPI map[string]map[string]Presence

	refSeq uint64

	listenerMu sync.RWMutex
	listener   Listener

	onBroadcast func(kind string, apiID string, meta apitypes.Definition, phxRef string)
}

// New returns a Local tracker for the given node identity.
func New(node string) *Local {
	return &Local{
		node:  node,
		byAPI: make(map[string]map[string]Presence),
	}
}

// SetListener registers the callback target for join/leave events. Must be
// called before any remote deliveries arrive.
func (l *Local) SetListener(listener Listener) {
	l.listenerMu.Lock()
	defer l.listenerMu.Unlock()
	l.listener = listener
}

// OnBroadcast registers a hook invoked after a successful local
// Track/Untrack/Update, so a transport can gossip the change to peers. It
// is not invoked for remote deliveries (Deliver), which avoids echoing a
// peer's own announcement back out.
func (l *Local) OnBroadcast(fn func(kind string, apiID string, meta apitypes.Definition, phxRef string)) {
	l.onBroadcast = fn
}

func (l *Local) newPhxRef() string {
	seq := atomic.AddUint64(&l.refSeq, 1)
	return fmt.Sprintf("%s-%d", l.node, seq)
}

// Track announces a local replica. Fails with ErrAlreadyTracked if
// (apiID, self) is already held.
func (l *Local) Track(apiID string, meta apitypes.Definition) (string, error) {
	l.mu.Lock()
	nodes, ok := l.byAPI[apiID]
	if !ok {
		nodes = make(map[string]Presence)
		l.byAPI[apiID] = nodes
	}
	if _, exists := nodes[l.node]; exists {
		l.mu.Unlock()
		return "", ErrAlreadyTracked
	}
	phxRef := l.newPhxRef()
	meta.NodeName = l.node
	meta.PhxRef = phxRef
	nodes[l.node] = Presence{APIID: apiID, NodeName: l.node, Definition: meta}
	l.mu.Unlock()

	log.WithFields(log.Fields{"api_id": apiID, "node": l.node, "phx_ref": phxRef}).Debug("tracked local replica")
	if l.onBroadcast != nil {
		l.onBroadcast("join", apiID, meta, phxRef)
	}
	return phxRef, nil
}

// Update replaces the metadata of the local replica, keeping its phx_ref.
func (l *Local) Update(apiID string, meta apitypes.Definition) (string, error) {
	l.mu.Lock()
	nodes, ok := l.byAPI[apiID]
	if !ok {
		l.mu.Unlock()
		return "", ErrNotTracked
	}
	existing, ok := nodes[l.node]
	if !ok {
		l.mu.Unlock()
		return "", ErrNotTracked
	}
	meta.NodeName = l.node
	meta.PhxRef = existing.Definition.PhxRef
	nodes[l.node] = Presence{APIID: apiID, NodeName: l.node, Definition: meta}
	phxRef := meta.PhxRef
	l.mu.Unlock()

	log.WithFields(log.Fields{"api_id": apiID, "node": l.node}).Debug("updated local replica")
	if l.onBroadcast != nil {
		l.onBroadcast("join", apiID, meta, phxRef)
	}
	return phxRef, nil
}

// Untrack withdraws the local replica.
func (l *Local) Untrack(apiID string) error {
	l.mu.Lock()
	nodes, ok := l.byAPI[apiID]
	if !ok {
		l.mu.Unlock()
		return ErrNotTracked
	}
	existing, ok := nodes[l.node]
	if !ok {
		l.mu.Unlock()
		return ErrNotTracked
	}
	delete(nodes, l.node)
	if len(nodes) == 0 {
		delete(l.byAPI, apiID)
	}
	l.mu.Unlock()

	log.WithFields(log.Fields{"api_id": apiID, "node": l.node}).Debug("untracked local replica")
	if l.onBroadcast != nil {
		l.onBroadcast("leave", apiID, existing.Definition, existing.Definition.PhxRef)
	}
	return nil
}

// ListByNode returns every presence currently held by the given node.
func (l *Local) ListByNode(node string) []Presence {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Presence
	for _, nodes := range l.byAPI {
		if p, ok := nodes[node]; ok {
			out = append(out, p)
		}
	}
	return out
}

// FindByNode returns the presence for (apiID, node), if any.
func (l *Local) FindByNode(apiID, node string) (Presence, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	nodes, ok := l.byAPI[apiID]
	if !ok {
		return Presence{}, false
	}
	p, ok := nodes[node]
	return p, ok
}

// FindAll returns every replica of apiID across the cluster.
func (l *Local) FindAll(apiID string) []Presence {
	l.mu.RLock()
	defer l.mu.RUnlock()

	nodes, ok := l.byAPI[apiID]
	if !ok {
		return nil
	}
	out := make([]Presence, 0, len(nodes))
	for _, p := range nodes {
		out = append(out, p)
	}
	return out
}

// Deliver injects a remote join/leave event, recording it in the presence
// map and invoking the registered listener. It is the entry point a
// transport (or a test) uses to feed in events that did not originate
// from this node's own Track/Untrack/Update calls.
func (l *Local) Deliver(kind string, apiID string, meta apitypes.Definition) {
	l.mu.Lock()
	nodes, ok := l.byAPI[apiID]
	if !ok {
		nodes = make(map[string]Presence)
		l.byAPI[apiID] = nodes
	}
	switch kind {
	case "join":
		nodes[meta.NodeName] = Presence{APIID: apiID, NodeName: meta.NodeName, Definition: meta}
	case "leave":
		delete(nodes, meta.NodeName)
		if len(nodes) == 0 {
			delete(l.byAPI, apiID)
		}
	}
	l.mu.Unlock()

	l.listenerMu.RLock()
	listener := l.listener
	l.listenerMu.RUnlock()
	if listener == nil {
		return
	}
	switch kind {
	case "join":
		listener.OnJoin(apiID, meta)
	case "leave":
		listener.OnLeave(apiID, meta)
	}
}
