package registry

import "testing"

func TestAcquireNodeClaimsReadyNode(t *testing.T) {
	tbl := NewTable(nil)
	n := NewNode("10.0.0.1", 80)
	mustInsert(t, tbl, n)

	p, _ := tbl.Lookup("10.0.0.1", 80)
	before := p.Stats().NrIdleConnections

	if !AcquireNode(n) {
		t.Fatal("AcquireNode on a fresh READY node should succeed")
	}
	if n.State() != StateActive {
		t.Fatalf("state = %s, want ACTIVE", n.State())
	}
	if got := p.Stats().NrIdleConnections; got != before-1 {
		t.Fatalf("NrIdleConnections = %d, want %d", got, before-1)
	}

	Put(n, OpGet)
	if got := p.Stats().NrIdleConnections; got != before {
		t.Fatalf("NrIdleConnections after Put = %d, want %d", got, before)
	}
}

func TestAcquireNodeRefusesNonReady(t *testing.T) {
	tbl := NewTable(nil)
	n := NewNode("10.0.0.1", 80)
	mustInsert(t, tbl, n)
	n.state.Store(int32(StateDown))

	if AcquireNode(n) {
		t.Fatal("AcquireNode must refuse a non-READY node")
	}
	if n.locked.Load() {
		t.Fatal("failed AcquireNode must not leave the lock bit held")
	}
}

func TestAcquireNodeRefusesAlreadyLocked(t *testing.T) {
	tbl := NewTable(nil)
	n := NewNode("10.0.0.1", 80)
	mustInsert(t, tbl, n)
	n.tryLock()

	if AcquireNode(n) {
		t.Fatal("AcquireNode must refuse an already-locked node")
	}
}

func TestNodesForEndpointSnapshotOrder(t *testing.T) {
	tbl := NewTable(nil)
	a := NewNode("10.0.0.1", 80)
	b := NewNode("10.0.0.1", 80)
	mustInsert(t, tbl, a)
	mustInsert(t, tbl, b)

	nodes := tbl.NodesForEndpoint("10.0.0.1", 80)
	if len(nodes) != 2 {
		t.Fatalf("len = %d, want 2", len(nodes))
	}
	if nodes[0] != b || nodes[1] != a {
		t.Fatal("expected most-recently-inserted node first")
	}
}

func TestNodesForEndpointUnknown(t *testing.T) {
	tbl := NewTable(nil)
	if got := tbl.NodesForEndpoint("10.0.0.1", 80); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}
