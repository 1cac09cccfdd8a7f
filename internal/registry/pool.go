package registry

import (
	"container/list"
	"sync/atomic"
	"time"
)

// Pool is the set of Nodes bound to one (ip, port) endpoint (spec.md §3).
// A Pool is only ever reachable through a Table; callers never construct
// one directly.
type Pool struct {
	ip   string
	port uint16
	key  uint32

	// connList holds *Node values in head-insertion order: the most
	// recently inserted node is scanned first by connectionGet. Structural
	// mutation (PushFront, Remove) only ever happens while the owning
	// Table's write lock is held; connectionGet only ever runs under the
	// Table's read lock, so concurrent structural mutation during a scan
	// is impossible by construction.
	connList list.List

	nrConnections     atomic.Int64
	nrIdleConnections atomic.Int64

	wq      waitQueue
	upref   atomic.Int64
	nrWaits atomic.Int64

	// next chains this pool within its Table bucket. Only ever touched
	// while the owning Table's write lock is held.
	next *Pool
}

// IP returns the pool's endpoint IP address.
func (p *Pool) IP() string { return p.ip }

// Port returns the pool's endpoint port.
func (p *Pool) Port() uint16 { return p.port }

// Key returns the pool's 32-bit endpoint hash.
func (p *Pool) Key() uint32 { return p.key }

// PoolStats is a point-in-time snapshot of a pool's counters.
type PoolStats struct {
	NrConnections     int64
	NrIdleConnections int64
	NrWaits           int64
	Upref             int64
	QueueDepth        int
}

// Stats returns a snapshot of the pool's accounting counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		NrConnections:     p.nrConnections.Load(),
		NrIdleConnections: p.nrIdleConnections.Load(),
		NrWaits:           p.nrWaits.Load(),
		Upref:             p.upref.Load(),
		QueueDepth:        p.wq.len(),
	}
}

// connectionGet scans connList head-to-tail for the first node that is both
// lockable and READY (spec.md §4.5 "connection_get"). On success the node
// transitions to ACTIVE and is returned with its lock held.
//
// Scan outcomes, distinguished so TimedGet can decide whether to wait:
//   - list empty                      -> ErrNotFound
//   - every node locked by someone else -> ErrBusy (an unknown number may
//     be READY once released; worth waiting for)
//   - every node examined was unlocked but none was READY -> ErrAllPathsDown
//   - a mix of locked and non-READY-unlocked nodes          -> ErrBusy, since
//     a concurrent release could still produce a READY node
func (p *Pool) connectionGet(nowJS time.Duration) (*Node, error) {
	if p.connList.Len() == 0 {
		return nil, ErrNotFound
	}

	sawBusy := false
	for e := p.connList.Front(); e != nil; e = e.Next() {
		n := e.Value.(*Node)
		if !n.tryLock() {
			sawBusy = true
			continue
		}
		if n.State() == StateReady {
			n.state.Store(int32(StateActive))
			p.nrIdleConnections.Add(-1)
			n.totJSWait.Add(int64(nowTicks() - nowJS))
			n.nowJS = nowTicks()
			n.nrLookups.Add(1)
			return n, nil
		}
		n.unlock()
	}

	if sawBusy {
		return nil, ErrBusy
	}
	return nil, ErrAllPathsDown
}

// insertNode binds n to p: links it at the head of connList, marks it
// READY, and accounts for the new connection. Caller must hold the owning
// Table's write lock.
func (p *Pool) insertNode(n *Node) {
	n.pool = p
	p.connList.PushFront(n)
	p.nrConnections.Add(1)
	p.nrIdleConnections.Add(1)
	n.state.Store(int32(StateReady))
}

// removeNode unlinks n from connList. Caller must hold the owning Table's
// write lock and must have already transitioned n to ZOMBIE.
func (p *Pool) removeNode(n *Node) {
	for e := p.connList.Front(); e != nil; e = e.Next() {
		if e.Value.(*Node) == n {
			p.connList.Remove(e)
			p.nrConnections.Add(-1)
			return
		}
	}
}

// destroyable reports whether the pool has no live references and may be
// unlinked from its table (spec.md §8: a pool with upref > 0, a non-empty
// wait queue, or a non-empty conn_list cannot be destroyed).
func (p *Pool) destroyable() bool {
	return p.connList.Len() == 0 && p.upref.Load() == 0 && p.wq.len() == 0
}
