// Package handler implements the HTTP API for meshview.
//
// MeshHandler serves the latest topology frame, the active-node listing and
// probe latencies, and accepts operator commands (ping, blink, config push).
// Streaming endpoints live in the hub package and are mounted alongside.
//
// # Response Format
//
// Success responses return JSON data with appropriate status codes.
// Error responses return JSON with {error, details} structure. Invalid
// requests map to 400 and broker failures to 502.
//
// Middleware provides panic recovery, CORS and request logging.
package handler
