package domain

import (
	"sort"
	"time"
)

// Snapshot is a read-only copy of the topology taken under a single lock.
// It always contains the router node and one edge from the router to every
// root node.
type Snapshot struct {
	TakenAt time.Time       `json:"taken_at"`
	Nodes   map[string]Node `json:"nodes"`
	Edges   []Edge          `json:"edges"`
}

// Node looks up a node by id
func (s Snapshot) Node(id string) (Node, bool) {
	n, ok := s.Nodes[id]
	return n, ok
}

// IDs returns every node id in ascending order
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Nodes))
	for id := range s.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Parent returns the source of the node's incoming edge
func (s Snapshot) Parent(id string) (string, bool) {
	for _, e := range s.Edges {
		if e.To == id {
			return e.From, true
		}
	}
	return "", false
}

// Children returns the ids attached to parent, sorted
func (s Snapshot) Children(parent string) []string {
	var out []string
	for _, e := range s.Edges {
		if e.From == parent {
			out = append(out, e.To)
		}
	}
	sort.Strings(out)
	return out
}

// HasEdge reports whether parent -> child is present
func (s Snapshot) HasEdge(parent, child string) bool {
	for _, e := range s.Edges {
		if e.From == parent && e.To == child {
			return true
		}
	}
	return false
}

// ActiveNodes derives the listing shown next to the graph: every mesh node
// except the router, shallowest first, unknown depth last, ties by id.
func (s Snapshot) ActiveNodes() []ActiveNode {
	out := make([]ActiveNode, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.IsRouter {
			continue
		}
		out = append(out, ActiveNode{
			ID:   n.ID,
			Hops: n.Clone().Hops,
			Role: n.Role(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		hi, hj := out[i].Hops, out[j].Hops
		switch {
		case hi == nil && hj != nil:
			return false
		case hi != nil && hj == nil:
			return true
		case hi != nil && hj != nil && *hi != *hj:
			return *hi < *hj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Frame is everything one update cycle hands to the renderer
type Frame struct {
	Snapshot  Snapshot            `json:"snapshot"`
	Positions map[string]Position `json:"positions"`
	Latencies map[string]Latency  `json:"latencies"`
}
