// Package service sits between the update cycle and the outer surfaces.
//
// MeshService receives every rendered frame and active-node listing from
// the cycle coordinator, keeps the latest of each for HTTP reads, and
// republishes them on the EventBus. The SSE/WebSocket hub and the terminal
// list view are both EventBus subscribers.
//
// Operator commands also pass through here: a ping records the probe start
// before the command is published, so a fast reply is never unsolicited.
//
// # Events
//
//   - topology_updated: a new frame (snapshot, positions, latencies)
//   - nodes_changed: the active-node listing changed
//   - probe_completed: a probe reply arrived
//   - config_pushed: a configuration change was sent to the mesh
package service
