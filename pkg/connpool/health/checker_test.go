package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vpbank/connpool/internal/registry"
)

type countingProber struct {
	calls   atomic.Int64
	failNth int64 // 0 = never fail
}

func (p *countingProber) Probe(_ context.Context, _ *registry.Node) error {
	n := p.calls.Add(1)
	if p.failNth != 0 && n == p.failNth {
		return errors.New("simulated probe failure")
	}
	return nil
}

// TestCheckerRevivesRetryNode covers SPEC_FULL.md §4.8's recovery path: a
// node already flagged RETRY is re-probed on the checker's schedule, and
// a successful probe calls mark_ready to return it to READY.
func TestCheckerRevivesRetryNode(t *testing.T) {
	tbl := registry.NewTable(nil)
	n := registry.NewNode("10.0.0.1", 80)
	if err := tbl.Insert(n); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	held, err := registry.TimedGet(context.Background(), tbl, "10.0.0.1", 80, 0)
	if err != nil {
		t.Fatalf("TimedGet: %v", err)
	}
	registry.MarkRetry(held, errors.New("flaky"))

	prober := &countingProber{}
	c := New(tbl, prober, []Entry{{IP: "10.0.0.1", Port: 80, Interval: 10 * time.Millisecond}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Start(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if n.State() == registry.StateReady {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	c.Stop()

	if n.State() != registry.StateReady {
		t.Fatalf("node state = %s, want READY after successful re-probe", n.State())
	}
	if n.LastError() != nil {
		t.Fatal("mark_ready must clear lastErr")
	}
	if prober.calls.Load() == 0 {
		t.Fatal("expected at least one probe call against the RETRY node")
	}
}

// TestCheckerRevivesFailedNode covers the FAILED half of the same
// recovery path: FAILED nodes are re-probed too, since a hard failure is
// exactly the case the checker exists to eventually undo.
func TestCheckerRevivesFailedNode(t *testing.T) {
	tbl := registry.NewTable(nil)
	n := registry.NewNode("10.0.0.1", 80)
	if err := tbl.Insert(n); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	held, err := registry.TimedGet(context.Background(), tbl, "10.0.0.1", 80, 0)
	if err != nil {
		t.Fatalf("TimedGet: %v", err)
	}
	registry.MarkFailed(held, errors.New("boom"))

	prober := &countingProber{}
	c := New(tbl, prober, []Entry{{IP: "10.0.0.1", Port: 80, Interval: 10 * time.Millisecond}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Start(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if n.State() == registry.StateReady {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	c.Stop()

	if n.State() != registry.StateReady {
		t.Fatalf("node state = %s, want READY after successful re-probe", n.State())
	}
}

// TestCheckerLeavesFailedNodeOnProbeError covers the failure half of
// SPEC_FULL.md §4.8: a re-probe that fails leaves the node's state
// unchanged and bumps its retry-attempt counter, rather than re-running
// mark_retry or mark_failed.
func TestCheckerLeavesFailedNodeOnProbeError(t *testing.T) {
	tbl := registry.NewTable(nil)
	n := registry.NewNode("10.0.0.1", 80)
	if err := tbl.Insert(n); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	held, err := registry.TimedGet(context.Background(), tbl, "10.0.0.1", 80, 0)
	if err != nil {
		t.Fatalf("TimedGet: %v", err)
	}
	registry.MarkFailed(held, errors.New("boom"))
	attemptsBefore := n.Stats().NrRetryAttempts

	// Only the first probe fails, so the interval is long enough that no
	// second (succeeding) probe runs before the checker is stopped.
	prober := &countingProber{failNth: 1}
	c := New(tbl, prober, []Entry{{IP: "10.0.0.1", Port: 80, Interval: time.Hour}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	cancel()
	c.Stop()

	if n.State() != registry.StateFailed {
		t.Fatalf("node state = %s, want unchanged FAILED", n.State())
	}
	if got := n.Stats().NrRetryAttempts; got <= attemptsBefore {
		t.Fatalf("NrRetryAttempts = %d, want greater than %d after a failed re-probe", got, attemptsBefore)
	}
}

// TestCheckerSkipsReadyNode covers the other side of the same contract: a
// healthy idle node has nothing to recover from, so the checker never
// probes it.
func TestCheckerSkipsReadyNode(t *testing.T) {
	tbl := registry.NewTable(nil)
	n := registry.NewNode("10.0.0.1", 80)
	if err := tbl.Insert(n); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	prober := &countingProber{}
	c := New(tbl, prober, []Entry{{IP: "10.0.0.1", Port: 80, Interval: 10 * time.Millisecond}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	cancel()
	c.Stop()

	if prober.calls.Load() != 0 {
		t.Fatalf("expected 0 probe calls against a READY node, got %d", prober.calls.Load())
	}
	if n.State() != registry.StateReady {
		t.Fatalf("node state = %s, want unchanged READY", n.State())
	}
}

func TestCheckerSkipsActiveNode(t *testing.T) {
	tbl := registry.NewTable(nil)
	n := registry.NewNode("10.0.0.1", 80)
	if err := tbl.Insert(n); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	held, err := registry.TimedGet(context.Background(), tbl, "10.0.0.1", 80, 0)
	if err != nil {
		t.Fatalf("TimedGet: %v", err)
	}

	prober := &countingProber{}
	c := New(tbl, prober, []Entry{{IP: "10.0.0.1", Port: 80, Interval: 10 * time.Millisecond}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	cancel()
	c.Stop()

	if prober.calls.Load() != 0 {
		t.Fatalf("expected 0 probe calls against an ACTIVE node, got %d", prober.calls.Load())
	}
	registry.Put(held, registry.OpGet)
}
