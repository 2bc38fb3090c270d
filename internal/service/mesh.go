package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"meshview/internal/command"
	"meshview/internal/domain"
	"meshview/internal/platform/clock"
)

// ErrInvalidRequest is returned for operator requests rejected before any
// command is sent.
var ErrInvalidRequest = errors.New("invalid request")

// ProbeStarter records outstanding probes
type ProbeStarter interface {
	Start(id string, now time.Time)
	Cancel(id string, started time.Time)
}

// Commander publishes operator commands to the mesh
type Commander interface {
	Ping(ctx context.Context, target string) error
	Blink(ctx context.Context, target string) error
	PushConfig(ctx context.Context, cfg command.ConfigPush) error
}

// Tuner accepts a new eviction timeout at runtime
type Tuner interface {
	SetNodeTimeout(d time.Duration)
}

// ConfigRequest is an operator configuration change. NodeTimeout is
// applied locally; the rest is pushed to the mesh.
type ConfigRequest struct {
	Interval    int            `json:"interval"`
	MaxChildren int            `json:"max_children"`
	NodeTimeout *time.Duration `json:"-"`
}

// ProbeResult is the payload of a probe_completed event
type ProbeResult struct {
	ID      string         `json:"id"`
	Latency domain.Latency `json:"latency_ms"`
}

// MeshService caches the latest cycle output and routes operator commands
type MeshService struct {
	probes   ProbeStarter
	commands Commander
	eventBus *EventBus
	clock    clock.Clock

	mu    sync.RWMutex
	frame domain.Frame
	ready bool
	nodes []domain.ActiveNode
	tuner Tuner
}

// NewMeshService creates a mesh service
func NewMeshService(probes ProbeStarter, commands Commander, eventBus *EventBus, clk clock.Clock) *MeshService {
	if clk == nil {
		clk = clock.System{}
	}
	if eventBus == nil {
		eventBus = NewEventBus()
	}
	return &MeshService{
		probes:   probes,
		commands: commands,
		eventBus: eventBus,
		clock:    clk,
		nodes:    []domain.ActiveNode{},
	}
}

// SetTuner wires the component that owns the eviction timeout
func (s *MeshService) SetTuner(t Tuner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tuner = t
}

// Events returns the bus this service publishes on
func (s *MeshService) Events() *EventBus {
	return s.eventBus
}

// Render stores the frame and announces it
func (s *MeshService) Render(frame domain.Frame) {
	s.mu.Lock()
	s.frame = frame
	s.ready = true
	s.mu.Unlock()

	s.eventBus.Publish(Event{Type: EventTopologyUpdated, Payload: frame})
}

// ShowNodes stores the listing and announces it
func (s *MeshService) ShowNodes(nodes []domain.ActiveNode) {
	s.mu.Lock()
	s.nodes = nodes
	s.mu.Unlock()

	s.eventBus.Publish(Event{Type: EventNodesChanged, Payload: nodes})
}

// ProbeCompleted announces a matched probe reply
func (s *MeshService) ProbeCompleted(id string, rtt time.Duration) {
	log.Printf("Pong from %s in %.1fms", id, domain.Latency(rtt).Milliseconds())
	s.eventBus.Publish(Event{
		Type:    EventProbeCompleted,
		Payload: ProbeResult{ID: id, Latency: domain.Latency(rtt)},
	})
}

// LatestFrame returns the last rendered frame. ok is false before the
// first cycle completes.
func (s *MeshService) LatestFrame() (frame domain.Frame, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame, s.ready
}

// Nodes returns the last active-node listing
func (s *MeshService) Nodes() []domain.ActiveNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ActiveNode, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Latencies returns the latencies carried by the last frame
func (s *MeshService) Latencies() map[string]domain.Latency {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Latency, len(s.frame.Latencies))
	for id, l := range s.frame.Latencies {
		out[id] = l
	}
	return out
}

// Ping starts a probe to id and publishes the request
func (s *MeshService) Ping(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: node id is required", ErrInvalidRequest)
	}
	// Recorded before publishing so the reply always finds it.
	started := s.clock.Now()
	s.probes.Start(id, started)
	if err := s.commands.Ping(ctx, id); err != nil {
		s.probes.Cancel(id, started)
		return err
	}
	return nil
}

// Blink asks id to flash its LEDs
func (s *MeshService) Blink(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: node id is required", ErrInvalidRequest)
	}
	return s.commands.Blink(ctx, id)
}

// PushConfig applies the local eviction timeout, if requested, and then
// sends the rest to the mesh. The timeout stays applied when the send
// fails; invalid values change nothing.
func (s *MeshService) PushConfig(ctx context.Context, req ConfigRequest) error {
	if req.NodeTimeout != nil && *req.NodeTimeout < 0 {
		return fmt.Errorf("%w: node timeout must not be negative", ErrInvalidRequest)
	}
	if req.Interval <= 0 || req.MaxChildren <= 0 {
		return fmt.Errorf("%w: interval and max_children must be positive", ErrInvalidRequest)
	}

	if req.NodeTimeout != nil {
		s.mu.RLock()
		tuner := s.tuner
		s.mu.RUnlock()
		if tuner != nil {
			tuner.SetNodeTimeout(*req.NodeTimeout)
		}
	}

	push := command.ConfigPush{Interval: req.Interval, MaxChildren: req.MaxChildren}
	if err := s.commands.PushConfig(ctx, push); err != nil {
		return err
	}

	s.eventBus.Publish(Event{Type: EventConfigPushed, Payload: push})
	return nil
}
