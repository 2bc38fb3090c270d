// Package topology owns the live mesh graph and its liveness timestamps.
//
// Every exported method takes the same mutex, so an announcement, an eviction
// pass and a snapshot never interleave. Readers only ever see copies.
package topology

import (
	"sort"
	"sync"
	"time"

	"meshview/internal/domain"
	"meshview/internal/platform/clock"
)

// Store holds the current mesh graph. The zero value is not usable; call New.
type Store struct {
	mu    sync.Mutex
	clock clock.Clock
	nodes map[string]*domain.Node
	// parent maps child -> parent. A map keyed by child makes a second
	// incoming edge unrepresentable.
	parent map[string]string
}

// New creates an empty store reading time from clk.
func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.System{}
	}
	return &Store{
		clock:  clk,
		nodes:  make(map[string]*domain.Node),
		parent: make(map[string]string),
	}
}

// ApplyAnnouncement upserts the announcing node, re-points its parent edge
// and marks every declared child as seen. Applying the same announcement
// twice leaves the graph unchanged apart from timestamps.
func (s *Store) ApplyAnnouncement(a domain.Announcement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	n := s.ensure(a.ID, now)
	n.SetHops(a.Hops)
	n.IsRoot = a.IsRoot()
	n.LastSeen = now

	delete(s.parent, a.ID)
	if !a.IsRoot() && a.Parent != a.ID && a.Parent != domain.RouterID {
		s.ensure(a.Parent, now)
		s.parent[a.ID] = a.Parent
	}

	for _, child := range a.Children {
		if child == "" || child == a.ID || child == domain.RouterID {
			continue
		}
		c := s.ensure(child, now)
		c.LastSeen = now
	}
}

// EvictStale removes every node silent for longer than timeout, along with
// all edges touching it, and returns the evicted ids in sorted order.
// A timeout of zero or less disables eviction.
func (s *Store) EvictStale(timeout time.Duration) []string {
	if timeout <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var evicted []string
	for id, n := range s.nodes {
		if now.Sub(n.LastSeen) > timeout {
			evicted = append(evicted, id)
		}
	}
	if len(evicted) == 0 {
		return nil
	}

	for _, id := range evicted {
		delete(s.nodes, id)
		delete(s.parent, id)
	}
	for child, parent := range s.parent {
		if _, ok := s.nodes[parent]; !ok {
			delete(s.parent, child)
		}
	}

	sort.Strings(evicted)
	return evicted
}

// Snapshot returns a deep copy of the graph with the router materialized and
// attached to every root node.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	snap := domain.Snapshot{
		TakenAt: now,
		Nodes:   make(map[string]domain.Node, len(s.nodes)+1),
		Edges:   make([]domain.Edge, 0, len(s.parent)+1),
	}

	snap.Nodes[domain.RouterID] = domain.NewRouter(now)
	for id, n := range s.nodes {
		snap.Nodes[id] = n.Clone()
		if n.IsRoot {
			snap.Edges = append(snap.Edges, domain.NewEdge(domain.RouterID, id))
		}
	}
	for child, parent := range s.parent {
		snap.Edges = append(snap.Edges, domain.NewEdge(parent, child))
	}
	domain.SortEdges(snap.Edges)

	return snap
}

// Len returns the number of stored mesh nodes, excluding the router.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// ensure returns the node for id, creating a bare one first sighted at now.
// Caller must hold s.mu.
func (s *Store) ensure(id string, now time.Time) *domain.Node {
	if n, ok := s.nodes[id]; ok {
		return n
	}
	n := domain.NewNode(id, now)
	s.nodes[id] = n
	return n
}
