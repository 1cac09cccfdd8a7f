package registry

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// State is a connection node's position in the health state machine
// (spec.md §3, §4.2).
type State int

const (
	// StateDown is the initial state before a node is inserted into a pool.
	StateDown State = iota
	// StateReady means the node is idle and eligible for acquisition.
	StateReady
	// StateActive means the node is checked out by exactly one caller.
	StateActive
	// StateRetry means the caller has flagged the node for re-probe; it is
	// not a candidate for acquire until mark_ready runs.
	StateRetry
	// StateFailed means the node suffered a hard failure from Active or
	// Retry.
	StateFailed
	// StateZombie is the transient state after unlink, pending destruction.
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateDown:
		return "DOWN"
	case StateReady:
		return "READY"
	case StateActive:
		return "ACTIVE"
	case StateRetry:
		return "RETRY"
	case StateFailed:
		return "FAILED"
	case StateZombie:
		return "ZOMBIE"
	default:
		return "UNKNOWN"
	}
}

// processStart anchors the monotonic tick clock used for interval
// accounting (spec.md Glossary: "Tick: an opaque monotonic time unit").
var processStart = time.Now()

func nowTicks() time.Duration {
	return time.Since(processStart)
}

// Node is a caller-supplied connection descriptor bound to exactly one pool
// once inserted (spec.md §3). The zero value is not usable; construct with
// NewNode.
type Node struct {
	ip   string
	port uint16

	// locked is the single-bit test-and-set mutex governing node-level
	// mutual exclusion (spec.md §5). It is deliberately separate from state
	// so that state transitions occur under the bit without affecting other
	// readers' view of the bit itself.
	locked atomic.Bool

	// state must only be read/written while locked is held true by the
	// calling goroutine, except for the unsynchronized State() accessor used
	// by dump/observability, which is advisory only.
	state atomic.Int32

	pool *Pool // back-reference to the owning pool; nil until inserted.

	nowJS time.Duration // stamp captured at lock acquisition.

	nrLookups       atomic.Int64
	totJSGet        atomic.Int64
	totJSPut        atomic.Int64
	totJSWait       atomic.Int64
	txBytes         atomic.Int64
	rxBytes         atomic.Int64
	nrRetryAttempts atomic.Int64

	// Conn is the opaque, externally-constructed resource this node
	// represents (a socket, session, or channel). The registry never
	// dereferences it.
	Conn any

	// lastErr records the error observed by the most recent mark_failed or
	// mark_retry call. Cleared by mark_ready. Advisory only.
	lastErr error
}

// NewNode allocates and initializes a node for the given endpoint
// (spec.md §4.2 init). NewNode does not validate ip; a malformed address
// is reported as ErrInvalidInput when the node is passed to Insert, which
// derives the endpoint key.
func NewNode(ip string, port uint16) *Node {
	n := &Node{ip: ip, port: port}
	n.state.Store(int32(StateDown))
	return n
}

// IP returns the node's endpoint IP address.
func (n *Node) IP() string { return n.ip }

// Port returns the node's endpoint port.
func (n *Node) Port() uint16 { return n.port }

// State returns the node's current health state. This is an unsynchronized
// snapshot read (advisory only, per spec.md §4.7 peek semantics) — it does
// not acquire the lock bit.
func (n *Node) State() State { return State(n.state.Load()) }

// LastError returns the error observed by the most recent mark_failed or
// mark_retry call, or nil if none, or if a subsequent mark_ready cleared it.
func (n *Node) LastError() error { return n.lastErr }

// NodeStats is a point-in-time snapshot of a node's accounting counters.
type NodeStats struct {
	NrLookups       int64
	TotJSGet        time.Duration
	TotJSPut        time.Duration
	TotJSWait       time.Duration
	TxBytes         int64
	RxBytes         int64
	NrRetryAttempts int64
}

// Stats returns a snapshot of the node's counters (spec.md §3).
func (n *Node) Stats() NodeStats {
	return NodeStats{
		NrLookups:       n.nrLookups.Load(),
		TotJSGet:        time.Duration(n.totJSGet.Load()),
		TotJSPut:        time.Duration(n.totJSPut.Load()),
		TotJSWait:       time.Duration(n.totJSWait.Load()),
		TxBytes:         n.txBytes.Load(),
		RxBytes:         n.rxBytes.Load(),
		NrRetryAttempts: n.nrRetryAttempts.Load(),
	}
}

// AddBytes accumulates transmitted/received byte counters. Callers invoke
// this while they hold the node (state == ACTIVE) to attribute traffic to
// the correct node.
func (n *Node) AddBytes(tx, rx int64) {
	if tx != 0 {
		n.txBytes.Add(tx)
	}
	if rx != 0 {
		n.rxBytes.Add(rx)
	}
}

// tryLock attempts the TAS acquire on the lock bit. Returns true on success.
func (n *Node) tryLock() bool {
	return n.locked.CompareAndSwap(false, true)
}

// unlock releases the lock bit with release semantics.
func (n *Node) unlock() {
	n.locked.Store(false)
}

// Destroy releases a node's resources. Must only be called when the node is
// unlinked (spec.md §4.2 destroy) — i.e. after Table.Remove, never while the
// node is reachable from a pool's conn_list.
func Destroy(n *Node) {
	if n.state.Load() != int32(StateZombie) && n.state.Load() != int32(StateDown) {
		panic(fmt.Sprintf("registry: Destroy called on node in state %s, expected ZOMBIE or DOWN", n.State()))
	}
	n.pool = nil
	n.ip = ""
	n.Conn = nil
}

// MarkFailed transitions a node from ACTIVE or RETRY to FAILED. The caller
// must already hold the node lock (e.g. by having just acquired the node
// via TimedGet, or by being the code path that called MarkRetry earlier).
// MarkFailed releases the node lock on return.
//
// Per spec.md §9's corrected ordering: state is written to FAILED before
// the lock bit is cleared, so no observer can see state == FAILED with the
// lock already released mid-transition.
func MarkFailed(n *Node, err error) {
	switch n.State() {
	case StateActive, StateRetry:
	default:
		panic(fmt.Sprintf("registry: MarkFailed precondition violated: state is %s, want ACTIVE or RETRY", n.State()))
	}
	n.lastErr = err
	n.state.Store(int32(StateFailed))
	n.unlock()
}

// MarkRetry transitions a node to RETRY. The caller must already hold the
// node lock; the lock remains held on return — a retrying node is not a
// candidate for acquire until MarkReady runs.
func MarkRetry(n *Node, err error) {
	n.lastErr = err
	n.nrRetryAttempts.Add(1)
	n.state.Store(int32(StateRetry))
}

// MarkReady transitions a node back to READY after a successful health
// re-probe; it is a no-op for any other state (spec.md §4.2, extended by
// SPEC_FULL.md §4.8 to also cover FAILED, the other state a probe cycle
// may revive from).
//
// A RETRY node's lock bit is still held — inherited from whatever caller
// drove it ACTIVE -> RETRY via MarkRetry, which deliberately does not
// release it — so MarkReady just takes over that ownership directly. A
// FAILED node's lock was released by MarkFailed, so MarkReady must
// acquire it fresh, spinning briefly (this is the one sanctioned caller
// that may contend with a concurrent TimedGet's TAS, since neither RETRY
// nor FAILED is ever a TimedGet candidate).
func MarkReady(n *Node) {
	switch n.State() {
	case StateRetry:
		n.lastErr = nil
		n.state.Store(int32(StateReady))
		n.unlock()
	case StateFailed:
		for !n.tryLock() {
			runtime.Gosched()
		}
		if n.State() != StateFailed {
			// Lost the race to another reviver; nothing to do.
			n.unlock()
			return
		}
		n.lastErr = nil
		n.state.Store(int32(StateReady))
		n.unlock()
	}
}

// ClaimForProbe attempts to claim n for an out-of-band health re-probe
// (SPEC_FULL.md §4.8). It succeeds only for a node in RETRY or FAILED — a
// RETRY node's lock is already held (see MarkReady) so claiming it is
// just a state check; a FAILED node's lock was released by MarkFailed, so
// claiming it takes a fresh tryLock. On success the caller owns the node
// lock and must follow up with exactly one of MarkReady or
// ReleaseFailedProbe.
func ClaimForProbe(n *Node) bool {
	switch n.State() {
	case StateRetry:
		return true
	case StateFailed:
		if !n.tryLock() {
			return false
		}
		if n.State() != StateFailed {
			n.unlock()
			return false
		}
		return true
	default:
		return false
	}
}

// ReleaseFailedProbe is the failure counterpart to ClaimForProbe: the
// node's state is left unchanged and its retry-attempt counter is bumped
// (SPEC_FULL.md §4.8). A RETRY node's lock stays held, exactly as it was
// before the claim; a FAILED node's lock, taken by ClaimForProbe, is
// released again.
func ReleaseFailedProbe(n *Node) {
	n.nrRetryAttempts.Add(1)
	if n.State() == StateFailed {
		n.unlock()
	}
}
