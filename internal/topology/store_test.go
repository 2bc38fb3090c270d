package topology

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"meshview/internal/domain"
	"meshview/internal/platform/clock"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func announce(id, parent string, hops int, children ...string) domain.Announcement {
	return domain.Announcement{ID: id, Parent: parent, Hops: hops, Children: children}
}

func incomingCounts(s domain.Snapshot) map[string]int {
	counts := make(map[string]int)
	for _, e := range s.Edges {
		counts[e.To]++
	}
	return counts
}

func TestApplyAnnouncement(t *testing.T) {
	t.Run("announced node and children appear in snapshot", func(t *testing.T) {
		store := New(clock.NewManual(epoch))
		store.ApplyAnnouncement(announce("A", "", 1, "B", "C"))

		snap := store.Snapshot()
		a, ok := snap.Node("A")
		if !ok {
			t.Fatal("expected A in snapshot")
		}
		if a.HopsOr(-1) != 1 {
			t.Errorf("expected A hops=1, got %d", a.HopsOr(-1))
		}
		for _, id := range []string{"B", "C"} {
			n, ok := snap.Node(id)
			if !ok {
				t.Fatalf("expected child %s in snapshot", id)
			}
			if n.HopsKnown() {
				t.Errorf("expected %s hops to be unknown", id)
			}
		}
	})

	t.Run("root, reparent and implicit parent creation", func(t *testing.T) {
		store := New(clock.NewManual(epoch))

		store.ApplyAnnouncement(announce("A", "", 0))
		snap := store.Snapshot()
		a, _ := snap.Node("A")
		if !a.IsRoot {
			t.Error("expected A.IsRoot")
		}
		if !snap.HasEdge(domain.RouterID, "A") {
			t.Error("expected ROUTER -> A")
		}

		store.ApplyAnnouncement(announce("B", "A", 1))
		snap = store.Snapshot()
		if !snap.HasEdge("A", "B") {
			t.Error("expected A -> B")
		}
		b, _ := snap.Node("B")
		if b.HopsOr(-1) != 1 {
			t.Errorf("expected B hops=1, got %d", b.HopsOr(-1))
		}

		store.ApplyAnnouncement(announce("B", "C", 1))
		snap = store.Snapshot()
		if _, ok := snap.Node("C"); !ok {
			t.Error("expected C to be created")
		}
		if !snap.HasEdge("C", "B") {
			t.Error("expected C -> B")
		}
		if snap.HasEdge("A", "B") {
			t.Error("expected A -> B to be removed")
		}
	})

	t.Run("root that gains a parent loses router edge", func(t *testing.T) {
		store := New(clock.NewManual(epoch))
		store.ApplyAnnouncement(announce("A", "", 1))
		store.ApplyAnnouncement(announce("A", "X", 2))

		snap := store.Snapshot()
		if snap.HasEdge(domain.RouterID, "A") {
			t.Error("expected router edge to be gone")
		}
		a, _ := snap.Node("A")
		if a.IsRoot {
			t.Error("expected A to no longer be root")
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		store := New(clock.NewManual(epoch))
		store.ApplyAnnouncement(announce("B", "A", 2, "C"))
		first := store.Snapshot()
		store.ApplyAnnouncement(announce("B", "A", 2, "C"))
		second := store.Snapshot()

		if len(first.Nodes) != len(second.Nodes) || len(first.Edges) != len(second.Edges) {
			t.Errorf("expected identical shape, got %d/%d nodes and %d/%d edges",
				len(first.Nodes), len(second.Nodes), len(first.Edges), len(second.Edges))
		}
	})

	t.Run("self and router references are ignored", func(t *testing.T) {
		store := New(clock.NewManual(epoch))
		store.ApplyAnnouncement(announce("A", "A", 1, "A", domain.RouterID, ""))

		if store.Len() != 1 {
			t.Errorf("expected only A stored, got %d nodes", store.Len())
		}
		if _, ok := store.Snapshot().Parent("A"); ok {
			t.Error("expected no self edge")
		}
	})
}

func TestSingleParentInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	store := New(clock.NewManual(epoch))
	ids := []string{"A", "B", "C", "D", "E", "F"}

	for i := 0; i < 500; i++ {
		id := ids[rng.Intn(len(ids))]
		parent := ""
		if rng.Intn(4) != 0 {
			parent = ids[rng.Intn(len(ids))]
		}
		var children []string
		for j := rng.Intn(3); j > 0; j-- {
			children = append(children, ids[rng.Intn(len(ids))])
		}
		store.ApplyAnnouncement(announce(id, parent, rng.Intn(4), children...))

		for node, n := range incomingCounts(store.Snapshot()) {
			if n > 1 {
				t.Fatalf("step %d: node %s has %d parents", i, node, n)
			}
		}
	}
}

func TestEvictStale(t *testing.T) {
	t.Run("removes silent node after timeout", func(t *testing.T) {
		clk := clock.NewManual(epoch)
		store := New(clk)
		store.ApplyAnnouncement(announce("A", "", 1))

		clk.Advance(11 * time.Second)
		evicted := store.EvictStale(10 * time.Second)

		if len(evicted) != 1 || evicted[0] != "A" {
			t.Errorf("expected [A] evicted, got %v", evicted)
		}
		if _, ok := store.Snapshot().Node("A"); ok {
			t.Error("expected A to be absent")
		}
	})

	t.Run("zero timeout never evicts", func(t *testing.T) {
		clk := clock.NewManual(epoch)
		store := New(clk)
		store.ApplyAnnouncement(announce("A", "", 1))

		clk.Advance(11 * time.Second)
		if evicted := store.EvictStale(0); len(evicted) != 0 {
			t.Errorf("expected nothing evicted, got %v", evicted)
		}
		if _, ok := store.Snapshot().Node("A"); !ok {
			t.Error("expected A to remain")
		}
	})

	t.Run("exactly at timeout is kept", func(t *testing.T) {
		clk := clock.NewManual(epoch)
		store := New(clk)
		store.ApplyAnnouncement(announce("A", "", 1))

		clk.Advance(10 * time.Second)
		if evicted := store.EvictStale(10 * time.Second); len(evicted) != 0 {
			t.Errorf("expected nothing evicted, got %v", evicted)
		}
	})

	t.Run("incident edges go with the node", func(t *testing.T) {
		clk := clock.NewManual(epoch)
		store := New(clk)
		store.ApplyAnnouncement(announce("P", "", 1))
		store.ApplyAnnouncement(announce("C", "P", 2))
		store.ApplyAnnouncement(announce("G", "C", 3))

		clk.Advance(8 * time.Second)
		store.ApplyAnnouncement(announce("P", "", 1))
		store.ApplyAnnouncement(announce("G", "C", 3))
		// Being named as a parent does not refresh C, so it goes stale first.
		clk.Advance(3 * time.Second)
		evicted := store.EvictStale(10 * time.Second)

		if len(evicted) != 1 || evicted[0] != "C" {
			t.Fatalf("expected [C] evicted, got %v", evicted)
		}
		snap := store.Snapshot()
		for _, e := range snap.Edges {
			if e.From == "C" || e.To == "C" {
				t.Errorf("expected no edge touching C, found %v", e)
			}
		}
		if _, ok := snap.Node("G"); !ok {
			t.Error("expected G to remain")
		}
	})

	t.Run("declared children are kept alive", func(t *testing.T) {
		clk := clock.NewManual(epoch)
		store := New(clk)
		store.ApplyAnnouncement(announce("P", "", 1, "C"))

		for i := 0; i < 3; i++ {
			clk.Advance(6 * time.Second)
			store.ApplyAnnouncement(announce("P", "", 1, "C"))
			store.EvictStale(10 * time.Second)
		}

		if _, ok := store.Snapshot().Node("C"); !ok {
			t.Error("expected C to survive while its parent lists it")
		}
	})

	t.Run("router is never evicted", func(t *testing.T) {
		clk := clock.NewManual(epoch)
		store := New(clk)
		clk.Advance(time.Hour)
		store.EvictStale(time.Second)

		if _, ok := store.Snapshot().Node(domain.RouterID); !ok {
			t.Error("expected router in snapshot")
		}
	})
}

func TestSnapshotIsolation(t *testing.T) {
	store := New(clock.NewManual(epoch))
	store.ApplyAnnouncement(announce("A", "", 1))

	snap := store.Snapshot()
	a := snap.Nodes["A"]
	*a.Hops = 9

	fresh := store.Snapshot()
	if fresh.Nodes["A"].HopsOr(-1) != 1 {
		t.Errorf("expected stored hops to stay 1, got %d", fresh.Nodes["A"].HopsOr(-1))
	}
}

func TestSnapshotRouterNotDuplicated(t *testing.T) {
	store := New(clock.NewManual(epoch))
	store.ApplyAnnouncement(announce("A", "", 1))

	for i := 0; i < 3; i++ {
		store.Snapshot()
	}
	snap := store.Snapshot()

	routerEdges := 0
	for _, e := range snap.Edges {
		if e.From == domain.RouterID {
			routerEdges++
		}
	}
	if routerEdges != 1 {
		t.Errorf("expected 1 router edge, got %d", routerEdges)
	}
}

func TestConcurrentAccess(t *testing.T) {
	clk := clock.NewManual(epoch)
	store := New(clk)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("N%d", (w*7+i)%10)
				parent := fmt.Sprintf("N%d", (w+i)%10)
				store.ApplyAnnouncement(announce(id, parent, i%5, fmt.Sprintf("N%d", i%10)))
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			clk.Advance(time.Millisecond)
			store.EvictStale(50 * time.Millisecond)
			snap := store.Snapshot()
			for _, e := range snap.Edges {
				if _, ok := snap.Nodes[e.From]; !ok {
					t.Errorf("edge %v references missing parent", e)
					return
				}
				if _, ok := snap.Nodes[e.To]; !ok {
					t.Errorf("edge %v references missing child", e)
					return
				}
			}
		}
	}()
	wg.Wait()
}
