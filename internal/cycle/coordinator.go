// Package cycle drives the periodic evict -> snapshot -> layout -> render loop.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"meshview/internal/domain"
	"meshview/internal/layout"
	"meshview/internal/platform/clock"
)

// ErrCycleFailure wraps anything that aborted a single cycle.
var ErrCycleFailure = errors.New("cycle failure")

// DefaultInterval is the tick period used when none is configured
const DefaultInterval = time.Second

// Topology is the store side of a cycle
type Topology interface {
	EvictStale(timeout time.Duration) []string
	Snapshot() domain.Snapshot
}

// Probes is the probe-tracker side of a cycle
type Probes interface {
	Latencies() map[string]time.Duration
	ExpirePending(ttl time.Duration, now time.Time) []string
	Forget(ids ...string)
}

// Renderer receives every successful frame
type Renderer interface {
	Render(frame domain.Frame)
}

// Lister receives the active-node listing when it changes
type Lister interface {
	ShowNodes(nodes []domain.ActiveNode)
}

// Settings are the values an operator may change while running
type Settings struct {
	NodeTimeout  time.Duration // 0 disables eviction
	PendingTTL   time.Duration // 0 keeps pending probes forever
	ClearOnEvict bool          // drop a node's latency when it is evicted
	Spacing      layout.Spacing
}

// DefaultSettings returns the out-of-the-box tuning
func DefaultSettings() Settings {
	return Settings{
		NodeTimeout: 10 * time.Second,
		PendingTTL:  30 * time.Second,
		Spacing:     layout.DefaultSpacing(),
	}
}

// Coordinator runs update cycles on a fixed interval
type Coordinator struct {
	topology Topology
	probes   Probes
	renderer Renderer
	lister   Lister
	clock    clock.Clock
	interval time.Duration

	settingsMu sync.RWMutex
	settings   Settings

	// tickMu serializes cycles and guards the listing memo.
	tickMu      sync.Mutex
	lastListing []domain.ActiveNode
	listed      bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a coordinator. renderer and lister may be nil.
func New(topology Topology, probes Probes, renderer Renderer, lister Lister, interval time.Duration, settings Settings, clk clock.Clock) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Coordinator{
		topology: topology,
		probes:   probes,
		renderer: renderer,
		lister:   lister,
		clock:    clk,
		interval: interval,
		settings: settings,
	}
}

// Settings returns the current tuning
func (c *Coordinator) Settings() Settings {
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()
	return c.settings
}

// SetSettings replaces the tuning; it applies from the next cycle
func (c *Coordinator) SetSettings(s Settings) {
	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()
	c.settings = s
}

// SetNodeTimeout changes only the eviction timeout
func (c *Coordinator) SetNodeTimeout(d time.Duration) {
	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()
	c.settings.NodeTimeout = d
	log.Printf("Node timeout set to %s", d)
}

// Start launches the tick loop. It returns an error if already running.
func (c *Coordinator) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.cancel != nil {
		return fmt.Errorf("coordinator already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop(loopCtx)
	}()

	log.Printf("Started update cycle (interval=%s)", c.interval)
	return nil
}

// Stop prevents further ticks and waits for an in-flight one to finish
func (c *Coordinator) Stop() {
	c.runMu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
	log.Println("Stopped update cycle")
}

func (c *Coordinator) loop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A cancel that races the tick wins.
			if ctx.Err() != nil {
				return
			}
			if err := c.Tick(); err != nil {
				log.Printf("Skipping update cycle: %v", err)
			}
		}
	}
}

// Tick runs one cycle. On error nothing was handed to the renderer or
// lister, so whatever they last showed stays on screen.
func (c *Coordinator) Tick() (err error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrCycleFailure, r)
		}
	}()

	settings := c.Settings()

	evicted := c.topology.EvictStale(settings.NodeTimeout)
	if len(evicted) > 0 {
		log.Printf("Evicted %d inactive nodes: %v", len(evicted), evicted)
		if settings.ClearOnEvict {
			c.probes.Forget(evicted...)
		}
	}
	if expired := c.probes.ExpirePending(settings.PendingTTL, c.clock.Now()); len(expired) > 0 {
		log.Printf("Expired %d unanswered probes: %v", len(expired), expired)
	}

	snap := c.topology.Snapshot()
	positions := layout.Compute(snap, settings.Spacing)
	frame := domain.Frame{
		Snapshot:  snap,
		Positions: positions,
		Latencies: domain.LatenciesFrom(c.probes.Latencies()),
	}
	listing := snap.ActiveNodes()

	if c.renderer != nil {
		c.renderer.Render(frame)
	}
	if c.lister != nil && (!c.listed || !domain.ListingEqual(c.lastListing, listing)) {
		c.lister.ShowNodes(listing)
	}
	c.lastListing = listing
	c.listed = true

	return nil
}
