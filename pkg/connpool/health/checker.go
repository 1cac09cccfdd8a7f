// Package health periodically re-probes nodes the registry has already
// flagged as unhealthy (RETRY or FAILED) and feeds a successful probe
// back into the registry as mark_ready, so a node that went bad can
// return to service without an operator's intervention (SPEC_FULL.md
// §4.8).
//
// The checker never touches a node that is currently checked out by a
// real caller, or one that is healthy and idle: registry.ClaimForProbe
// only claims nodes already in RETRY or FAILED, so a node mid-use by a
// TimedGet/Put pair, or simply READY, is left alone until something else
// flags it.
package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vpbank/connpool/internal/registry"
)

// Prober performs the actual liveness check against a node's underlying
// connection. Implementations live in dialer packages (e.g. snmpconn);
// this package only knows how to schedule and account for calls to it.
type Prober interface {
	Probe(ctx context.Context, n *registry.Node) error
}

// Entry names one endpoint the checker is responsible for, and how often
// to probe it.
type Entry struct {
	IP       string
	Port     uint16
	Interval time.Duration
}

type scheduledEntry struct {
	Entry
	nextRun time.Time
}

// Checker runs a single scheduling loop across all configured endpoints,
// firing probe sweeps at each entry's interval (the same merged-timeline
// shape as a poll scheduler, adapted here to a fixed health-probe
// interval rather than device poll jobs).
type Checker struct {
	table  *registry.Table
	prober Prober
	logger *slog.Logger

	mu      sync.Mutex
	entries []scheduledEntry

	done chan struct{}
}

// New constructs a Checker. It does not start probing — call Start.
func New(table *registry.Table, prober Prober, entries []Entry, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := time.Now()
	scheduled := make([]scheduledEntry, 0, len(entries))
	for _, e := range entries {
		if e.Interval <= 0 {
			e.Interval = 30 * time.Second
		}
		scheduled = append(scheduled, scheduledEntry{Entry: e, nextRun: now})
	}
	return &Checker{
		table:   table,
		prober:  prober,
		logger:  logger,
		entries: scheduled,
		done:    make(chan struct{}),
	}
}

// Start runs the scheduling loop until ctx is cancelled.
func (c *Checker) Start(ctx context.Context) {
	defer close(c.done)

	for {
		c.mu.Lock()
		if len(c.entries) == 0 {
			c.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
				continue
			}
		}

		sort.Slice(c.entries, func(i, j int) bool {
			return c.entries[i].nextRun.Before(c.entries[j].nextRun)
		})
		next := c.entries[0].nextRun
		c.mu.Unlock()

		delay := time.Until(next)
		if delay < 0 {
			delay = 0
		}
		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		now := time.Now()
		c.mu.Lock()
		for i := range c.entries {
			if c.entries[i].nextRun.After(now) {
				break
			}
			e := c.entries[i].Entry
			c.entries[i].nextRun = now.Add(e.Interval)
			c.mu.Unlock()
			c.probeEndpoint(ctx, e)
			c.mu.Lock()
		}
		c.mu.Unlock()
	}
}

// Stop waits for the scheduling loop to exit. The caller must cancel the
// context passed to Start first.
func (c *Checker) Stop() {
	<-c.done
}

// probeEndpoint visits every node currently bound to e's endpoint that is
// in RETRY or FAILED and, for each one it can claim, runs the prober: a
// successful re-probe calls mark_ready to return the node to service, a
// failed one leaves the node's state as-is and bumps its retry-attempt
// counter (SPEC_FULL.md §4.8). READY and ACTIVE nodes are never touched
// here — a healthy idle node has nothing to recover from, and an active
// one belongs to whichever caller is holding it.
func (c *Checker) probeEndpoint(ctx context.Context, e Entry) {
	nodes := c.table.NodesForEndpoint(e.IP, e.Port)
	for _, n := range nodes {
		switch n.State() {
		case registry.StateRetry, registry.StateFailed:
		default:
			continue
		}
		if !registry.ClaimForProbe(n) {
			continue // claimed by a concurrent reviver, or recovered already
		}
		if err := c.prober.Probe(ctx, n); err != nil {
			c.logger.Warn("health: re-probe failed, node stays unhealthy",
				"ip", e.IP, "port", e.Port, "state", n.State().String(), "error", err.Error())
			registry.ReleaseFailedProbe(n)
			continue
		}
		c.logger.Info("health: re-probe succeeded, marking node ready",
			"ip", e.IP, "port", e.Port)
		registry.MarkReady(n)
	}
}
