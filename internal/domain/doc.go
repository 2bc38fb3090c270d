// Package domain defines the core types of the meshview topology tracker.
//
// These types carry no locking and no I/O. The topology store owns the
// mutable state and hands out Snapshot values; everything downstream of a
// snapshot (layout, rendering, listings) works on copies.
//
// # Core Types
//
// Node is a mesh participant: its id, its self-reported hop distance (unknown
// until it announces), whether it is a root and when it was last seen.
//
// Edge points from a parent to its current child. A node has at most one
// incoming edge.
//
// Snapshot is the immutable copy of the whole topology for one update cycle.
// It always contains the synthetic router node (RouterID), attached to every
// root node, so a layout has a single connected root.
//
// Frame bundles a snapshot with its computed positions and the last known
// probe latencies.
//
// ActiveNode is one row of the operator-facing listing derived from a
// snapshot.
package domain
