package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"meshview/internal/bus"
	"meshview/internal/codec"
	"meshview/internal/command"
	"meshview/internal/domain"
	"meshview/internal/service"
)

// MeshService is the service surface the API needs
type MeshService interface {
	LatestFrame() (domain.Frame, bool)
	Nodes() []domain.ActiveNode
	Latencies() map[string]domain.Latency
	Ping(ctx context.Context, id string) error
	Blink(ctx context.Context, id string) error
	PushConfig(ctx context.Context, req service.ConfigRequest) error
}

// MeshHandler handles topology and command API requests
type MeshHandler struct {
	svc MeshService
}

// NewMeshHandler creates a new mesh handler
func NewMeshHandler(svc MeshService) *MeshHandler {
	return &MeshHandler{svc: svc}
}

// Error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ConfigBody is the POST /api/config request. NodeTimeout is in seconds;
// 0 disables eviction and omitting it leaves the timeout unchanged.
type ConfigBody struct {
	Interval    int      `json:"interval"`
	MaxChildren int      `json:"max_children"`
	NodeTimeout *float64 `json:"node_timeout,omitempty"`
}

// CommandResponse acknowledges a published command
type CommandResponse struct {
	Status string `json:"status"`
	Target string `json:"target,omitempty"`
}

// Register mounts the API routes on mux
func (h *MeshHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/topology", h.GetTopology)
	mux.HandleFunc("GET /api/nodes", h.ListNodes)
	mux.HandleFunc("GET /api/latencies", h.GetLatencies)
	mux.HandleFunc("POST /api/nodes/{id}/ping", h.PingNode)
	mux.HandleFunc("POST /api/nodes/{id}/blink", h.BlinkNode)
	mux.HandleFunc("POST /api/config", h.PushConfig)
	mux.HandleFunc("GET /api/export/{format}", h.Export)
}

// GetTopology returns the latest frame. Before the first cycle it returns
// an empty frame.
func (h *MeshHandler) GetTopology(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.latestFrame(), http.StatusOK)
}

// Export writes the latest frame as a downloadable JSON or YAML document
func (h *MeshHandler) Export(w http.ResponseWriter, r *http.Request) {
	exp, err := codec.ForFormat(r.PathValue("format"))
	if err != nil {
		writeError(w, "Invalid export format", err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", exp.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename=topology."+exp.Format())
	if err := exp.Export(h.latestFrame(), w); err != nil {
		log.Printf("Failed to export topology: %v", err)
	}
}

func (h *MeshHandler) latestFrame() domain.Frame {
	frame, ok := h.svc.LatestFrame()
	if !ok {
		frame = domain.Frame{
			Snapshot: domain.Snapshot{
				Nodes: map[string]domain.Node{},
				Edges: []domain.Edge{},
			},
			Positions: map[string]domain.Position{},
			Latencies: map[string]domain.Latency{},
		}
	}
	return frame
}

// ListNodes returns the active-node listing
func (h *MeshHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Nodes(), http.StatusOK)
}

// GetLatencies returns the last measured latency per node in milliseconds
func (h *MeshHandler) GetLatencies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Latencies(), http.StatusOK)
}

// PingNode starts a latency probe
func (h *MeshHandler) PingNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.Ping(r.Context(), id); err != nil {
		h.commandError(w, "Failed to ping node", err)
		return
	}
	writeJSON(w, CommandResponse{Status: "sent", Target: id}, http.StatusAccepted)
}

// BlinkNode asks a node to flash its LEDs
func (h *MeshHandler) BlinkNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.Blink(r.Context(), id); err != nil {
		h.commandError(w, "Failed to blink node", err)
		return
	}
	writeJSON(w, CommandResponse{Status: "sent", Target: id}, http.StatusAccepted)
}

// PushConfig sends a configuration change to the mesh
func (h *MeshHandler) PushConfig(w http.ResponseWriter, r *http.Request) {
	var body ConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	req := service.ConfigRequest{Interval: body.Interval, MaxChildren: body.MaxChildren}
	if body.NodeTimeout != nil {
		d := time.Duration(*body.NodeTimeout * float64(time.Second))
		req.NodeTimeout = &d
	}

	if err := h.svc.PushConfig(r.Context(), req); err != nil {
		h.commandError(w, "Failed to push config", err)
		return
	}
	writeJSON(w, CommandResponse{Status: "sent"}, http.StatusAccepted)
}

func (h *MeshHandler) commandError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, command.ErrInvalidCommand):
		writeError(w, msg, err.Error(), http.StatusBadRequest)
	case errors.Is(err, bus.ErrTransport):
		log.Printf("%s: %v", msg, err)
		writeError(w, msg, err.Error(), http.StatusBadGateway)
	default:
		log.Printf("%s: %v", msg, err)
		writeError(w, msg, err.Error(), http.StatusInternalServerError)
	}
}

// Helper methods

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}
