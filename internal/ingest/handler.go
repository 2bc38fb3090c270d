// Package ingest turns raw bus payloads into topology and probe updates.
//
// Nothing here is allowed to fail loudly: a bad payload is logged and
// dropped, and the mesh will announce again on its own schedule.
package ingest

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"meshview/internal/domain"
	"meshview/internal/platform/clock"
)

var (
	// ErrMalformedInput marks a payload that failed to parse or lacked a
	// required field. No state was changed.
	ErrMalformedInput = errors.New("malformed input")
	// ErrUnsolicitedReply marks a pong with no pending probe to match.
	ErrUnsolicitedReply = errors.New("unsolicited reply")
)

// Announcer receives validated node announcements
type Announcer interface {
	ApplyAnnouncement(a domain.Announcement)
}

// ProbeCompleter matches probe replies
type ProbeCompleter interface {
	Complete(id string, now time.Time) (time.Duration, bool)
}

// ProbeListener is told about every matched probe reply
type ProbeListener interface {
	ProbeCompleted(id string, rtt time.Duration)
}

// Handler is the bus message callback
type Handler struct {
	topology Announcer
	probes   ProbeCompleter
	clock    clock.Clock

	mu       sync.RWMutex
	listener ProbeListener
}

// NewHandler creates a handler writing into topology and probes
func NewHandler(topology Announcer, probes ProbeCompleter, clk clock.Clock) *Handler {
	if clk == nil {
		clk = clock.System{}
	}
	return &Handler{
		topology: topology,
		probes:   probes,
		clock:    clk,
	}
}

// SetProbeListener sets the listener notified of completed probes
func (h *Handler) SetProbeListener(l ProbeListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = l
}

// Handle processes one payload and reports what happened. Errors wrap
// ErrMalformedInput or ErrUnsolicitedReply.
func (h *Handler) Handle(payload []byte) error {
	// Arrival time, taken before parsing.
	now := h.clock.Now()

	msg, err := Decode(payload)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case domain.Announcement:
		h.topology.ApplyAnnouncement(m)
		return nil

	case Pong:
		rtt, ok := h.probes.Complete(m.ID, now)
		if !ok {
			return fmt.Errorf("%w: pong from %s", ErrUnsolicitedReply, m.ID)
		}
		h.mu.RLock()
		listener := h.listener
		h.mu.RUnlock()
		if listener != nil {
			listener.ProbeCompleted(m.ID, rtt)
		}
		return nil
	}

	return fmt.Errorf("%w: unhandled message %T", ErrMalformedInput, msg)
}

// HandleMessage is the bus-facing entry point. It logs and swallows every
// failure, including panics, so one bad payload cannot take down the
// subscriber.
func (h *Handler) HandleMessage(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered while handling message on %s: %v", topic, r)
		}
	}()

	if err := h.Handle(payload); err != nil {
		switch {
		case errors.Is(err, ErrUnsolicitedReply):
			log.Printf("Ignoring reply on %s: %v", topic, err)
		default:
			log.Printf("Dropping message on %s: %v (payload=%q)", topic, err, truncate(payload, 256))
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
