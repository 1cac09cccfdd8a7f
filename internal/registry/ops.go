package registry

import (
	"context"
	"time"
)

// Op labels the operation the caller performed with a node while it held
// it. Put uses it only to pick which accumulator the elapsed hold time is
// charged to: OpGet adds to the node's get latency total, OpPut to its put
// latency total.
type Op int

const (
	OpGet Op = iota
	OpPut
)

// TimedGet acquires a READY node from the pool bound to (ip, port),
// blocking according to timeout (spec.md §4.5, §4.6, §9):
//
//   - timeout == 0: try once, never block.
//   - timeout > 0: block for at most timeout, across as many retries as
//     fit in the budget.
//   - timeout < 0: block indefinitely, subject only to ctx cancellation.
//
// On success the returned node is ACTIVE and locked; the caller must pass
// it to Put exactly once when done. ctx cancellation mid-wait surfaces as
// ctx.Err() rather than one of the named sentinel errors.
func TimedGet(ctx context.Context, t *Table, ip string, port uint16, timeout time.Duration) (*Node, error) {
	key, err := key(ip, port)
	if err != nil {
		return nil, err
	}

	nowJS := nowTicks()
	remaining := timeout

	for {
		t.mu.RLock()
		p := t.lookupLocked(ip, port, key)
		if p == nil {
			t.mu.RUnlock()
			return nil, ErrNotFound
		}

		n, gerr := p.connectionGet(nowJS)
		if gerr == nil {
			t.mu.RUnlock()
			return n, nil
		}

		switch gerr {
		case ErrNotFound, ErrAllPathsDown:
			t.mu.RUnlock()
			return nil, gerr
		}

		// ErrBusy: some node is locked and might free up. A timeout==0
		// caller asked to never block, so it gets that immediate outcome
		// back verbatim rather than having waitUntil's own "didn't wait"
		// return value relabeled as a timeout below.
		if timeout == 0 {
			t.mu.RUnlock()
			return nil, ErrBusy
		}

		// Pin the pool across the blocking wait so a concurrent Destroy
		// cannot free it out from under us, then drop the table lock
		// before waiting.
		p.upref.Add(1)
		t.mu.RUnlock()

		p.nrWaits.Add(1)
		rem, werr := p.waitUntil(ctx, remaining)
		p.upref.Add(-1)
		if werr != nil {
			return nil, werr
		}
		if rem == 0 {
			return nil, ErrTimeout
		}
		remaining = rem
	}
}

// waitUntil blocks until woken, until timeout elapses, or until ctx is
// done, whichever comes first (spec.md §4.5 wait_until). It returns the
// remaining budget: 0 means the budget (or ctx) expired and the caller
// should give up; a negative value means "still waiting indefinitely,
// keep retrying"; a positive value is the leftover budget for the next
// iteration.
//
// timeout == 0 returns immediately without registering a waiter at all —
// the "try once" contract must never block, not even briefly.
func (p *Pool) waitUntil(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	if timeout == 0 {
		return 0, nil
	}

	ch, cancel := p.wq.enqueue()
	defer cancel()

	var timerC <-chan time.Time
	var start time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
		start = time.Now()
	}

	select {
	case <-ch:
		if timeout > 0 {
			rem := timeout - time.Since(start)
			if rem < 0 {
				rem = 0
			}
			return rem, nil
		}
		return -1, nil
	case <-timerC:
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// AcquireNode attempts to claim one specific READY node for out-of-band
// work. It performs the same READY→ACTIVE transition and idle-count
// bookkeeping as connectionGet's per-node step, but against a node the
// caller already has a reference to (e.g. from Table.NodesForEndpoint or
// Sweep) rather than by scanning a pool for the first eligible candidate.
// It never claims a RETRY or FAILED node; the health checker claims those
// with ClaimForProbe instead.
//
// Returns false without side effects if the node could not be locked or
// was not READY. On success the node is ACTIVE and locked; the caller
// must release it with Put or MarkFailed exactly once.
func AcquireNode(n *Node) bool {
	if !n.tryLock() {
		return false
	}
	if n.State() != StateReady {
		n.unlock()
		return false
	}
	n.state.Store(int32(StateActive))
	if n.pool != nil {
		n.pool.nrIdleConnections.Add(-1)
	}
	n.nowJS = nowTicks()
	return true
}

// Put returns a node to the pool (spec.md §4.6). If the node is ACTIVE it
// transitions to READY, accounts elapsed hold time against op, and wakes
// at most one waiter. Put on a node in any other state is a no-op release
// of the lock bit — callers that already called MarkFailed or MarkRetry
// must not also call Put.
func Put(n *Node, op Op) {
	if n.State() != StateActive {
		n.unlock()
		return
	}

	elapsed := int64(nowTicks() - n.nowJS)
	switch op {
	case OpGet:
		n.totJSGet.Add(elapsed)
	case OpPut:
		n.totJSPut.Add(elapsed)
	}
	n.state.Store(int32(StateReady))

	p := n.pool
	p.upref.Add(1)
	p.nrIdleConnections.Add(1)
	n.unlock()
	p.wq.wakeOne()
	p.upref.Add(-1)
}
