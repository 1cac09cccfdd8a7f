package registry

import (
	"container/list"
	"fmt"
	"log/slog"
	"sync"
)

// Table is the process-wide index of Pools, bucketed by endpoint key
// (spec.md §3, §4.3). The zero value is not usable; construct with
// NewTable.
type Table struct {
	mu      sync.RWMutex
	buckets []*Pool // chain heads, len == BucketCount
	log     *slog.Logger
}

// NewTable allocates a Table with BucketCount chains. A nil logger is
// replaced with a discarding logger, matching the rest of this module's
// nil-means-quiet convention.
func NewTable(log *slog.Logger) *Table {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Table{
		buckets: make([]*Pool, BucketCount),
		log:     log,
	}
}

func bucketIndex(key uint32) int {
	return int(key % uint32(BucketCount))
}

// lookupLocked returns the pool for (ip, port), if any. Caller must hold
// t.mu (read or write).
func (t *Table) lookupLocked(ip string, port uint16, key uint32) *Pool {
	for p := t.buckets[bucketIndex(key)]; p != nil; p = p.next {
		if p.port == port && p.ip == ip {
			return p
		}
	}
	return nil
}

// Lookup returns the pool bound to (ip, port), or ErrNotFound.
func (t *Table) Lookup(ip string, port uint16) (*Pool, error) {
	key, err := key(ip, port)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	p := t.lookupLocked(ip, port, key)
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// Insert binds node to the pool for (node.IP(), node.Port()), creating the
// pool if this is the first node for that endpoint (spec.md §4.4).
//
// The pool is allocated outside the write lock and the table is
// re-checked after reacquiring it (spec.md §9 Open Question 1): if a
// concurrent Insert raced and won, the loser's freshly allocated pool is
// discarded and the node is bound to the winner's pool instead. Go's GC
// makes the discard free — there is no explicit deallocation step.
func (t *Table) Insert(n *Node) error {
	key, err := key(n.IP(), n.Port())
	if err != nil {
		return err
	}

	t.mu.Lock()
	p := t.lookupLocked(n.IP(), n.Port(), key)
	if p == nil {
		t.mu.Unlock()

		candidate := &Pool{ip: n.IP(), port: n.Port(), key: key}

		t.mu.Lock()
		if existing := t.lookupLocked(n.IP(), n.Port(), key); existing != nil {
			// Lost the race: another Insert already created the pool.
			// candidate is simply dropped; nothing holds a reference to it.
			p = existing
		} else {
			idx := bucketIndex(key)
			candidate.next = t.buckets[idx]
			t.buckets[idx] = candidate
			p = candidate
		}
	}

	p.upref.Add(1)
	p.insertNode(n)
	t.mu.Unlock()

	p.wq.wakeOne()
	p.upref.Add(-1)
	return nil
}

// Remove unlinks node from its pool and marks it ZOMBIE, ready for
// Destroy (spec.md §4.4). It refuses to remove a node that is currently
// ACTIVE or already locked by someone else.
func (t *Table) Remove(n *Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := n.pool
	if p == nil {
		return fmt.Errorf("%w: node is not bound to a pool", ErrNotFound)
	}

	if !n.tryLock() {
		return ErrBusy
	}
	if n.State() == StateActive {
		n.unlock()
		panic("registry: Remove called on a node in state ACTIVE")
	}

	if n.State() == StateReady {
		p.nrIdleConnections.Add(-1)
	}
	n.state.Store(int32(StateZombie))
	p.removeNode(n)
	return nil
}

// Peek returns the head node of the pool bound to (ip, port) without
// locking it (spec.md §4.7: advisory, observability-only). Returns nil if
// the endpoint has no pool or the pool has no nodes.
func (t *Table) Peek(ip string, port uint16) *Node {
	key, err := key(ip, port)
	if err != nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	p := t.lookupLocked(ip, port, key)
	if p == nil || p.connList.Len() == 0 {
		return nil
	}
	return p.connList.Front().Value.(*Node)
}

// NodesForEndpoint returns a snapshot slice of every node currently bound
// to (ip, port), in conn_list order. The slice is a safe-to-use-unlocked
// copy of the pointers; it does not pin the nodes or the pool, so a
// caller that intends to hold onto a node across a blocking operation
// should rely on the node's own lock bit (via AcquireNode) rather than
// this snapshot's mere existence. Used by the health package's probe
// sweep (SPEC_FULL.md §4.8).
func (t *Table) NodesForEndpoint(ip string, port uint16) []*Node {
	key, err := key(ip, port)
	if err != nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	p := t.lookupLocked(ip, port, key)
	if p == nil {
		return nil
	}
	out := make([]*Node, 0, p.connList.Len())
	for e := p.connList.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Node))
	}
	return out
}

// Iter returns some node from some non-empty pool in the table, or nil if
// the table holds no nodes at all. It is not a general-purpose iterator —
// spec.md §4.7 scopes it to shutdown sweeps that only need "is there
// anything left" rather than a full traversal. Use Sweep for a full
// traversal.
func (t *Table) Iter() *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, head := range t.buckets {
		for p := head; p != nil; p = p.next {
			if p.connList.Len() > 0 {
				return p.connList.Front().Value.(*Node)
			}
		}
	}
	return nil
}

// Sweep walks every node in every pool, in bucket then conn_list order,
// calling visit for each (spec.md §4.7 expansion). Sweep holds the read
// lock for the duration of the walk, so visit must not call back into the
// table. Sweep stops early if visit returns false.
func (t *Table) Sweep(visit func(p *Pool, n *Node) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, head := range t.buckets {
		for p := head; p != nil; p = p.next {
			for e := p.connList.Front(); e != nil; e = e.Next() {
				if !visit(p, e.Value.(*Node)) {
					return
				}
			}
		}
	}
}

// SweepPools walks every pool in the table, calling visit for each, without
// descending into individual nodes. Used by dump and stats rollups that
// only need per-pool aggregates.
func (t *Table) SweepPools(visit func(p *Pool) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, head := range t.buckets {
		for p := head; p != nil; p = p.next {
			if !visit(p) {
				return
			}
		}
	}
}

// Destroy tears down every pool in the table (spec.md §4.4 expansion: used
// at process shutdown). For every node it is able to claim (lock bit free,
// state not ACTIVE) it unlinks and destroys the node; nodes it cannot
// claim are left in place and logged. A pool is unlinked from its bucket
// only once its conn_list, upref, and wait queue are all empty; pools that
// cannot be fully drained are left in the table and logged as leaked.
func (t *Table) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for idx, head := range t.buckets {
		var kept *Pool
		for p := head; p != nil; {
			next := p.next
			t.destroyPoolLocked(p)
			if !p.destroyable() {
				p.next = kept
				kept = p
				t.log.Warn("registry: pool not fully destroyed, leaking",
					"ip", p.ip, "port", p.port,
					"nr_connections", p.nrConnections.Load(),
					"upref", p.upref.Load())
			}
			p = next
		}
		t.buckets[idx] = kept
	}
}

func (t *Table) destroyPoolLocked(p *Pool) {
	var next *list.Element
	for e := p.connList.Front(); e != nil; e = next {
		next = e.Next()
		n := e.Value.(*Node)
		if !n.tryLock() {
			t.log.Warn("registry: node busy during table destroy, leaking",
				"ip", n.ip, "port", n.port)
			continue
		}
		if n.State() == StateActive {
			n.unlock()
			t.log.Warn("registry: node active during table destroy, leaking",
				"ip", n.ip, "port", n.port)
			continue
		}
		if n.State() == StateReady {
			p.nrIdleConnections.Add(-1)
		}
		n.state.Store(int32(StateZombie))
		p.connList.Remove(e)
		p.nrConnections.Add(-1)
		Destroy(n)
	}
}
