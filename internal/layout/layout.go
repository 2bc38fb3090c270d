// Package layout places snapshot nodes on a layered 2-D grid.
//
// Columns are hop layers. Within a column a node sits level with its parent,
// shifted down by its rank among the parent's children; nodes whose parent is
// not yet placed take the next free slot of their column. The result depends
// only on the snapshot contents, never on map iteration or arrival order.
package layout

import (
	"sort"

	"meshview/internal/domain"
)

// unknownLayer is where nodes that have not announced their hops are placed.
const unknownLayer = 1

// Spacing is the distance between layers (X) and sibling slots (Y).
type Spacing struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DefaultSpacing is the grid the mesh map is drawn on.
func DefaultSpacing() Spacing {
	return Spacing{X: 2.5, Y: 1.5}
}

// Compute returns a position for every node in the snapshot.
func Compute(snap domain.Snapshot, spacing Spacing) map[string]domain.Position {
	parentOf := make(map[string]string, len(snap.Edges))
	children := make(map[string][]string)
	for _, e := range snap.Edges {
		if _, ok := snap.Nodes[e.From]; !ok {
			continue
		}
		parentOf[e.To] = e.From
		children[e.From] = append(children[e.From], e.To)
	}
	siblingIndex := make(map[string]int, len(parentOf))
	for _, kids := range children {
		sort.Strings(kids)
		for i, kid := range kids {
			siblingIndex[kid] = i
		}
	}

	layers := make(map[int][]string)
	for id, n := range snap.Nodes {
		l := layerOf(n)
		layers[l] = append(layers[l], id)
	}
	order := make([]int, 0, len(layers))
	for l := range layers {
		order = append(order, l)
		sortLayer(layers[l])
	}
	sort.Ints(order)

	pos := make(map[string]domain.Position, len(snap.Nodes))
	for _, l := range order {
		x := float64(l) * spacing.X
		for i, id := range layers[l] {
			y := -spacing.Y * float64(i)
			if parent, ok := parentOf[id]; ok {
				if pp, placed := pos[parent]; placed {
					y = pp.Y - spacing.Y*float64(siblingIndex[id])
				}
			}
			pos[id] = domain.NewPosition(x, y)
		}
	}
	return pos
}

func layerOf(n domain.Node) int {
	if n.IsRouter {
		return 0
	}
	return n.HopsOr(unknownLayer)
}

// sortLayer orders a column: router first, then ascending id.
func sortLayer(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i] == domain.RouterID || ids[j] == domain.RouterID {
			return ids[i] == domain.RouterID && ids[j] != domain.RouterID
		}
		return ids[i] < ids[j]
	})
}
