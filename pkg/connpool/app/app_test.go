package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vpbank/connpool/internal/registry"
	"github.com/vpbank/connpool/pkg/connpool/config"
	"github.com/vpbank/connpool/pkg/connpool/stats"
)

type fakeDialer struct {
	dialCount atomic.Int64
}

func (d *fakeDialer) Dial(cfg config.EndpointConfig) (*registry.Node, error) {
	d.dialCount.Add(1)
	n := registry.NewNode(cfg.IP, uint16(cfg.Port))
	n.Conn = "fake-conn"
	return n, nil
}

func (d *fakeDialer) Probe(ctx context.Context, n *registry.Node) error {
	return nil
}

func writeEndpointFile(t *testing.T, dir string, name string, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write endpoint file: %v", err)
	}
}

func TestStartDialsConfiguredPoolSize(t *testing.T) {
	dir := t.TempDir()
	writeEndpointFile(t, dir, "sw1.yml", `
sw1:
  ip: 10.0.0.1
  port: 161
  pool_size: 3
  health_interval: 1h
`)

	dialer := &fakeDialer{}
	a := New(Config{
		ConfigPaths: config.Paths{Endpoints: dir, PoolFile: filepath.Join(dir, "missing-pool.yml")},
		Dialer:      dialer,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	if got := dialer.dialCount.Load(); got != 3 {
		t.Fatalf("dialCount = %d, want 3", got)
	}

	n, err := registry.TimedGet(ctx, a.Table(), "10.0.0.1", 161, 0)
	if err != nil {
		t.Fatalf("TimedGet: %v", err)
	}
	registry.Put(n, registry.OpGet)
}

func TestStartRequiresDialer(t *testing.T) {
	a := New(Config{ConfigPaths: config.Paths{Endpoints: t.TempDir()}}, nil)
	if err := a.Start(context.Background()); err == nil {
		t.Fatal("expected error when Dialer is nil")
	}
}

func TestStopAfterContextCancelled(t *testing.T) {
	dir := t.TempDir()
	a := New(Config{
		ConfigPaths: config.Paths{Endpoints: dir, PoolFile: filepath.Join(dir, "pool.yml")},
		Dialer:      &fakeDialer{},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	a.Stop()
}

func TestPeriodicDumpWritesToSink(t *testing.T) {
	dir := t.TempDir()
	writeEndpointFile(t, dir, "sw1.yml", `
sw1:
  ip: 10.0.0.2
  port: 161
  pool_size: 1
  health_interval: 1h
`)
	writeEndpointFile(t, dir, "pool.yml", `
dump_interval: 20ms
`)

	var buf bytes.Buffer
	a := New(Config{
		ConfigPaths: config.Paths{Endpoints: dir, PoolFile: filepath.Join(dir, "pool.yml")},
		Dialer:      &fakeDialer{},
		DumpWriter:  &buf,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for buf.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a dump to be written")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	a.Stop()

	if !bytes.Contains(buf.Bytes(), []byte(`"host"`)) {
		t.Fatalf("dump output missing expected field: %s", buf.String())
	}
}

func TestAcquireReleaseRecordsStats(t *testing.T) {
	dir := t.TempDir()
	writeEndpointFile(t, dir, "sw1.yml", `
sw1:
  ip: 10.0.0.6
  port: 161
  pool_size: 1
  health_interval: 1h
`)

	rollup := stats.NewAtomicRollup()
	a := New(Config{
		ConfigPaths: config.Paths{Endpoints: dir, PoolFile: filepath.Join(dir, "missing-pool.yml")},
		Dialer:      &fakeDialer{},
		Stats:       rollup,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	n, err := a.Acquire(ctx, "10.0.0.6", 161, time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	a.Release(n, registry.OpGet, 5*time.Millisecond)

	snap := rollup.Snapshot()["10.0.0.6:161"]
	if snap.Acquires != 1 || snap.Releases != 1 {
		t.Fatalf("snapshot = %+v, want 1 acquire and 1 release", snap)
	}
}

func TestAcquireRecordsTimeout(t *testing.T) {
	dir := t.TempDir()
	writeEndpointFile(t, dir, "sw1.yml", `
sw1:
  ip: 10.0.0.7
  port: 161
  pool_size: 1
  health_interval: 1h
`)

	rollup := stats.NewAtomicRollup()
	a := New(Config{
		ConfigPaths: config.Paths{Endpoints: dir, PoolFile: filepath.Join(dir, "missing-pool.yml")},
		Dialer:      &fakeDialer{},
		Stats:       rollup,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	held, err := a.Acquire(ctx, "10.0.0.7", 161, time.Second)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer a.Release(held, registry.OpGet, 0)

	if _, err := a.Acquire(ctx, "10.0.0.7", 161, 10*time.Millisecond); err != registry.ErrTimeout {
		t.Fatalf("second Acquire err = %v, want ErrTimeout", err)
	}

	snap := rollup.Snapshot()["10.0.0.7:161"]
	if snap.Timeouts != 1 {
		t.Fatalf("Timeouts = %d, want 1", snap.Timeouts)
	}
}

func TestReloadDialsOnlyNewEndpoints(t *testing.T) {
	dir := t.TempDir()
	writeEndpointFile(t, dir, "sw1.yml", `
sw1:
  ip: 10.0.0.3
  port: 161
  pool_size: 1
  health_interval: 1h
`)

	dialer := &fakeDialer{}
	a := New(Config{
		ConfigPaths: config.Paths{Endpoints: dir, PoolFile: filepath.Join(dir, "missing-pool.yml")},
		Dialer:      dialer,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	if got := dialer.dialCount.Load(); got != 1 {
		t.Fatalf("dialCount after Start = %d, want 1", got)
	}

	writeEndpointFile(t, dir, "sw2.yml", `
sw2:
  ip: 10.0.0.4
  port: 161
  pool_size: 2
  health_interval: 1h
`)
	if err := a.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if got := dialer.dialCount.Load(); got != 3 {
		t.Fatalf("dialCount after Reload = %d, want 3 (1 existing + 2 new)", got)
	}
}
