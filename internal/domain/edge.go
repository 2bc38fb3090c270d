package domain

import "sort"

// Edge points from a parent to the child currently attached to it
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NewEdge creates a parent -> child edge
func NewEdge(parent, child string) Edge {
	return Edge{From: parent, To: child}
}

// SortEdges orders edges by parent, then child, in place
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
}
