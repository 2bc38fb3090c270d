package ingest

import (
	"errors"
	"testing"
	"time"

	"meshview/internal/domain"
	"meshview/internal/platform/clock"
	"meshview/internal/probe"
	"meshview/internal/topology"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type recordingListener struct {
	ids  []string
	rtts []time.Duration
}

func (r *recordingListener) ProbeCompleted(id string, rtt time.Duration) {
	r.ids = append(r.ids, id)
	r.rtts = append(r.rtts, rtt)
}

func newTestHandler() (*Handler, *topology.Store, *probe.Tracker, *clock.Manual) {
	clk := clock.NewManual(epoch)
	store := topology.New(clk)
	tracker := probe.NewTracker()
	return NewHandler(store, tracker, clk), store, tracker, clk
}

func TestDecodeAnnouncement(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		id       string
		parent   string
		hops     int
		children []string
	}{
		{
			name:     "full announcement",
			payload:  `{"id":"AA","parent":"BB","hops":2,"children":["CC","DD"]}`,
			id:       "AA",
			parent:   "BB",
			hops:     2,
			children: []string{"CC", "DD"},
		},
		{
			name:    "children optional",
			payload: `{"id":"AA","parent":"BB","hops":2}`,
			id:      "AA",
			parent:  "BB",
			hops:    2,
		},
		{
			name:    "firmware mac key and null sentinel",
			payload: `{"mac":"24:6F:28:00:00:01","parent":"null","hops":1,"children":[]}`,
			id:      "24:6F:28:00:00:01",
			hops:    1,
		},
		{
			name:    "json null parent",
			payload: `{"id":"AA","parent":null,"hops":0}`,
			id:      "AA",
			hops:    0,
		},
		{
			name:     "duplicate and blank children dropped",
			payload:  `{"id":"AA","parent":"","hops":1,"children":["CC","","CC"," DD "]}`,
			id:       "AA",
			hops:     1,
			children: []string{"CC", "DD"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			a, ok := msg.(domain.Announcement)
			if !ok {
				t.Fatalf("expected Announcement, got %T", msg)
			}
			if a.ID != tt.id || a.Parent != tt.parent || a.Hops != tt.hops {
				t.Errorf("got id=%q parent=%q hops=%d, want id=%q parent=%q hops=%d",
					a.ID, a.Parent, a.Hops, tt.id, tt.parent, tt.hops)
			}
			if len(a.Children) != len(tt.children) {
				t.Fatalf("expected children %v, got %v", tt.children, a.Children)
			}
			for i := range tt.children {
				if a.Children[i] != tt.children[i] {
					t.Errorf("child %d: expected %s, got %s", i, tt.children[i], a.Children[i])
				}
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `hello`},
		{"array", `[1,2,3]`},
		{"missing id", `{"parent":"BB","hops":1}`},
		{"blank id", `{"id":"  ","parent":"BB","hops":1}`},
		{"missing parent", `{"id":"AA","hops":1}`},
		{"missing hops", `{"id":"AA","parent":"BB"}`},
		{"negative hops", `{"id":"AA","parent":"BB","hops":-1}`},
		{"fractional hops", `{"id":"AA","parent":"BB","hops":1.5}`},
		{"numeric parent", `{"id":"AA","parent":7,"hops":1}`},
		{"self parent", `{"id":"AA","parent":"AA","hops":1}`},
		{"reserved id", `{"id":"ROUTER","parent":"null","hops":0}`},
		{"unknown type", `{"type":"status","id":"AA"}`},
		{"pong without id", `{"type":"pong"}`},
		{"command echo", `{"target":"AA","action":"blink","id":"AA","parent":"BB","hops":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			if !errors.Is(err, ErrMalformedInput) {
				t.Errorf("expected ErrMalformedInput, got %v", err)
			}
		})
	}
}

func TestDecodePong(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"pong","id":"AA"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, ok := msg.(Pong)
	if !ok {
		t.Fatalf("expected Pong, got %T", msg)
	}
	if p.ID != "AA" {
		t.Errorf("expected id AA, got %s", p.ID)
	}
}

func TestHandleAnnouncement(t *testing.T) {
	h, store, _, _ := newTestHandler()

	if err := h.Handle([]byte(`{"id":"B","parent":"A","hops":1,"children":["C"]}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := store.Snapshot()
	if !snap.HasEdge("A", "B") {
		t.Error("expected A -> B")
	}
	if _, ok := snap.Node("C"); !ok {
		t.Error("expected child C to exist")
	}
}

func TestHandleMalformedLeavesStoreUntouched(t *testing.T) {
	h, store, _, _ := newTestHandler()

	err := h.Handle([]byte(`{"id":"B","hops":1}`))
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d nodes", store.Len())
	}
}

func TestHandlePong(t *testing.T) {
	t.Run("matched reply notifies listener", func(t *testing.T) {
		h, _, tracker, clk := newTestHandler()
		listener := &recordingListener{}
		h.SetProbeListener(listener)

		tracker.Start("A", clk.Now())
		clk.Advance(40 * time.Millisecond)

		if err := h.Handle([]byte(`{"type":"pong","id":"A"}`)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(listener.ids) != 1 || listener.ids[0] != "A" {
			t.Fatalf("expected listener call for A, got %v", listener.ids)
		}
		if listener.rtts[0] != 40*time.Millisecond {
			t.Errorf("expected 40ms, got %s", listener.rtts[0])
		}
	})

	t.Run("unsolicited reply", func(t *testing.T) {
		h, _, _, _ := newTestHandler()
		listener := &recordingListener{}
		h.SetProbeListener(listener)

		err := h.Handle([]byte(`{"type":"pong","id":"A"}`))
		if !errors.Is(err, ErrUnsolicitedReply) {
			t.Errorf("expected ErrUnsolicitedReply, got %v", err)
		}
		if len(listener.ids) != 0 {
			t.Errorf("expected no listener calls, got %v", listener.ids)
		}
	})
}

type panickingAnnouncer struct{}

func (panickingAnnouncer) ApplyAnnouncement(domain.Announcement) {
	panic("boom")
}

func TestHandleMessageNeverPanics(t *testing.T) {
	h := NewHandler(panickingAnnouncer{}, probe.NewTracker(), clock.NewManual(epoch))

	// Neither call may propagate a panic or error.
	h.HandleMessage("mesh/network/info", []byte(`{"id":"A","parent":"null","hops":1}`))
	h.HandleMessage("mesh/network/info", []byte(`garbage`))
}
