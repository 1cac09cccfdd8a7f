// Package app wires the connection pool registry's collaborators
// together and manages their lifecycle: configuration loading, node
// dialing, health probing, stats recording, and periodic dumps.
//
//	config.Load → Dialer.Dial (per endpoint, PoolSize nodes) → Table.Insert
//	health.Checker (background probe loop, reads/writes Table)
//	periodic dump loop: Table → registry.Dump → format.Formatter → dumpsink.Sink
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vpbank/connpool/internal/registry"
	"github.com/vpbank/connpool/pkg/connpool/config"
	"github.com/vpbank/connpool/pkg/connpool/dumpsink"
	"github.com/vpbank/connpool/pkg/connpool/format"
	"github.com/vpbank/connpool/pkg/connpool/health"
	"github.com/vpbank/connpool/pkg/connpool/stats"
)

// Dialer constructs Node connections and probes their liveness. A single
// implementation backs both roles because dialing and health-checking an
// endpoint typically share the same transport (see dialer/snmpconn).
type Dialer interface {
	Dial(cfg config.EndpointConfig) (*registry.Node, error)
	health.Prober
}

// Config holds the top-level settings for the registry application.
// Zero-value fields fall back to documented defaults.
type Config struct {
	// ConfigPaths are the locations for YAML configuration files. Use
	// config.PathsFromEnv() to populate from environment variables.
	ConfigPaths config.Paths

	// Dialer constructs and probes node connections. Required.
	Dialer Dialer

	// Stats records named pool operations. Defaults to stats.NopRecorder
	// when nil.
	Stats stats.Recorder

	// DumpWriter is the io.Writer the periodic dump is sent to. nil
	// defaults to os.Stdout.
	DumpWriter io.Writer
}

// App orchestrates the registry and its collaborators. Create one with
// New, start it with Start, and stop it with Stop (or cancel the context
// passed to Start).
type App struct {
	cfg    Config
	logger *slog.Logger

	table     *registry.Table
	loadedCfg *config.LoadedConfig
	checker   *health.Checker
	formatter *format.JSONFormatter
	sink      dumpsink.Sink

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an App. It does not start anything — call Start for
// that.
func New(cfg Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NopRecorder{}
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		table:  registry.NewTable(logger),
	}
}

// Table returns the underlying registry, for callers that need direct
// TimedGet/Put access without stats accounting.
func (a *App) Table() *registry.Table { return a.table }

// Acquire is the stats-instrumented counterpart to registry.TimedGet: it
// records the outcome (acquire/timeout/busy, wait latency) against the
// configured Recorder before returning. Callers that want raw access
// without accounting can still call registry.TimedGet on Table() directly.
func (a *App) Acquire(ctx context.Context, ip string, port uint16, timeout time.Duration) (*registry.Node, error) {
	endpoint := fmt.Sprintf("%s:%d", ip, port)
	start := time.Now()

	n, err := registry.TimedGet(ctx, a.table, ip, port, timeout)
	wait := time.Since(start)

	switch {
	case err == nil:
		a.cfg.Stats.ObserveWait(endpoint, wait)
		a.cfg.Stats.IncAcquire(endpoint)
	case err == registry.ErrTimeout:
		a.cfg.Stats.IncTimeout(endpoint)
	case err == registry.ErrBusy:
		a.cfg.Stats.IncBusy(endpoint)
	}
	return n, err
}

// Release is the stats-instrumented counterpart to registry.Put.
func (a *App) Release(n *registry.Node, op registry.Op, held time.Duration) {
	endpoint := fmt.Sprintf("%s:%d", n.IP(), n.Port())
	registry.Put(n, op)
	a.cfg.Stats.ObserveHold(endpoint, held)
	a.cfg.Stats.IncRelease(endpoint)
}

// Start loads configuration, dials every configured endpoint's pool of
// nodes, and launches the health checker and periodic dump goroutines.
// It returns an error if configuration loading fails; individual dial
// failures are logged and leave that endpoint's pool short of nodes
// rather than aborting startup.
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("app: loading configuration")
	loadedCfg, err := config.Load(a.cfg.ConfigPaths, a.logger)
	if err != nil {
		return fmt.Errorf("app: load config: %w", err)
	}
	a.loadedCfg = loadedCfg
	a.logger.Info("app: configuration loaded", "endpoints", len(loadedCfg.Endpoints))

	if a.cfg.Dialer == nil {
		return fmt.Errorf("app: Dialer is required")
	}

	if err := a.dialEndpoints(loadedCfg.Endpoints); err != nil {
		return err
	}

	pipeCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	entries := make([]health.Entry, 0, len(loadedCfg.Endpoints))
	for _, ec := range loadedCfg.Endpoints {
		entries = append(entries, health.Entry{
			IP:       ec.IP,
			Port:     uint16(ec.Port),
			Interval: ec.HealthInterval,
		})
	}
	a.checker = health.New(a.table, a.cfg.Dialer, entries, a.logger)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.checker.Start(pipeCtx)
	}()

	if loadedCfg.Pool.DumpInterval > 0 {
		a.formatter = format.New(format.Config{}, a.logger)
		w := a.cfg.DumpWriter
		if w == nil {
			w = os.Stdout
		}
		a.sink = dumpsink.New(dumpsink.Config{Writer: w}, a.logger)

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.runDumpLoop(pipeCtx, loadedCfg.Pool.DumpInterval)
		}()
	}

	a.logger.Info("app: started",
		"endpoints", len(loadedCfg.Endpoints),
		"dump_interval", loadedCfg.Pool.DumpInterval,
	)
	return nil
}

// dialEndpoints dials PoolSize nodes per configured endpoint and inserts
// them into the table, concurrently across endpoints via errgroup (one
// goroutine per endpoint, no concurrency limit), as a one-shot startup
// task rather than a long-lived pool.
func (a *App) dialEndpoints(endpoints map[string]config.EndpointConfig) error {
	var g errgroup.Group
	for name, ec := range endpoints {
		name, ec := name, ec
		g.Go(func() error {
			for i := 0; i < ec.PoolSize; i++ {
				n, err := a.cfg.Dialer.Dial(ec)
				if err != nil {
					a.logger.Error("app: dial failed",
						"endpoint", name, "ip", ec.IP, "port", ec.Port, "error", err.Error())
					continue
				}
				if err := a.table.Insert(n); err != nil {
					a.logger.Error("app: insert failed",
						"endpoint", name, "ip", ec.IP, "port", ec.Port, "error", err.Error())
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// runDumpLoop periodically snapshots the table and sends a formatted dump
// to the sink, until ctx is cancelled.
func (a *App) runDumpLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rows := registry.Dump(a.table)
			data, err := a.formatter.FormatRows(rows)
			if err != nil {
				a.logger.Error("app: dump format error", "error", err.Error())
				continue
			}
			if err := a.sink.Send(data); err != nil {
				a.logger.Error("app: dump send error", "error", err.Error())
			}
		}
	}
}

// Stop performs a graceful shutdown: cancels the health checker and dump
// loop, waits for them to exit, destroys every node in the table, and
// closes the dump sink.
func (a *App) Stop() {
	a.logger.Info("app: shutting down")

	if a.cancel != nil {
		a.cancel()
	}
	if a.checker != nil {
		a.checker.Stop()
	}
	a.wg.Wait()

	a.table.Destroy()

	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.logger.Error("app: sink close error", "error", err.Error())
		}
	}

	a.logger.Info("app: shutdown complete")
}

// Reload atomically replaces the running configuration. Endpoints new to
// the reloaded config are dialed and inserted immediately; endpoints
// already present are left untouched — the health checker and callers'
// TimedGet traffic against them continue uninterrupted. Removed endpoints
// are not torn down automatically; an operator that wants that uses
// Table().Remove explicitly, since draining in-flight callers safely
// requires judgment this method doesn't have.
func (a *App) Reload() error {
	a.logger.Info("app: reloading configuration")
	newCfg, err := config.Load(a.cfg.ConfigPaths, a.logger)
	if err != nil {
		return fmt.Errorf("app: reload config: %w", err)
	}

	added := make(map[string]config.EndpointConfig)
	for name, ec := range newCfg.Endpoints {
		if _, existed := a.loadedCfg.Endpoints[name]; !existed {
			added[name] = ec
		}
	}
	if len(added) > 0 {
		if err := a.dialEndpoints(added); err != nil {
			return fmt.Errorf("app: dial new endpoints: %w", err)
		}
	}

	a.loadedCfg = newCfg
	a.logger.Info("app: configuration reloaded", "endpoints", len(newCfg.Endpoints), "added", len(added))
	return nil
}
