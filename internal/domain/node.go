package domain

import (
	"fmt"
	"time"
)

// RouterID identifies the synthetic gateway node that roots every snapshot.
const RouterID = "ROUTER"

// Role describes where a node sits in the mesh tree
type Role string

const (
	RoleRouter Role = "router" // Synthetic gateway, never announced
	RoleRoot   Role = "root"   // Announced without a parent
	RoleChild  Role = "child"  // Announced with a parent, or only seen as someone's child
)

// Node is a mesh participant as last reported.
//
// Hops is nil until the node announces itself; a node that has only been
// listed as another node's child is known to exist but not how deep it is.
type Node struct {
	ID       string    `json:"id"`
	Hops     *int      `json:"hops,omitempty"`
	IsRoot   bool      `json:"is_root"`
	IsRouter bool      `json:"is_router,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

// NewNode creates a bare node first sighted at seen
func NewNode(id string, seen time.Time) *Node {
	return &Node{
		ID:       id,
		LastSeen: seen,
	}
}

// NewRouter materializes the synthetic router node
func NewRouter(at time.Time) Node {
	hops := 0
	return Node{
		ID:       RouterID,
		Hops:     &hops,
		IsRouter: true,
		LastSeen: at,
	}
}

// SetHops records the self-reported hop distance
func (n *Node) SetHops(hops int) {
	n.Hops = &hops
}

// HopsKnown reports whether the node has announced its depth
func (n Node) HopsKnown() bool {
	return n.Hops != nil
}

// HopsOr returns the hop count, or def when it is not yet known
func (n Node) HopsOr(def int) int {
	if n.Hops == nil {
		return def
	}
	return *n.Hops
}

// Role derives the node's role from its flags
func (n Node) Role() Role {
	switch {
	case n.IsRouter:
		return RoleRouter
	case n.IsRoot:
		return RoleRoot
	default:
		return RoleChild
	}
}

// Clone returns a copy that shares no memory with n
func (n Node) Clone() Node {
	if n.Hops != nil {
		hops := *n.Hops
		n.Hops = &hops
	}
	return n
}

// HopsLabel renders the hop count for display, "?" when unknown
func (n Node) HopsLabel() string {
	if n.Hops == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *n.Hops)
}
