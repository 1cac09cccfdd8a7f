// Command connpoolctl is the connection pool registry daemon.
//
// It loads endpoint/pool YAML configuration from directories specified by
// environment variables (or command-line flags), dials every configured
// endpoint's pool of nodes, runs the background health checker and
// periodic dump loop, and blocks until interrupted (SIGINT/SIGTERM).
//
// Usage:
//
//	connpoolctl [flags]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vpbank/connpool/pkg/connpool/app"
	"github.com/vpbank/connpool/pkg/connpool/config"
	"github.com/vpbank/connpool/pkg/connpool/dialer/snmpconn"
	"github.com/vpbank/connpool/pkg/connpool/loadgen"
	"github.com/vpbank/connpool/pkg/connpool/stats"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "connpoolctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		logLevel string
		logFmt   string

		cfgEndpoints string
		cfgPoolFile  string

		metricsAddr string

		loadtest    bool
		ltWorkers   int
		ltIP        string
		ltPort      int
		ltHoldMs    int
		ltDurationS int
	)

	flag.StringVar(&logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&logFmt, "log.fmt", "json", "Log format: json, text")

	flag.StringVar(&cfgEndpoints, "config.endpoints", "", "Override CONNPOOL_ENDPOINTS_DIRECTORY_PATH")
	flag.StringVar(&cfgPoolFile, "config.pool", "", "Override CONNPOOL_POOL_CONFIG_PATH")

	flag.StringVar(&metricsAddr, "metrics.listen", "", "Address for a Prometheus /metrics listener (empty: no listener)")

	flag.BoolVar(&loadtest, "loadtest.enable", false, "Run a synthetic acquire/release workload against one endpoint instead of idling")
	flag.IntVar(&ltWorkers, "loadtest.workers", 20, "Concurrent loadtest worker goroutines")
	flag.StringVar(&ltIP, "loadtest.ip", "", "Endpoint IP to hammer with loadtest jobs")
	flag.IntVar(&ltPort, "loadtest.port", 161, "Endpoint port to hammer with loadtest jobs")
	flag.IntVar(&ltHoldMs, "loadtest.hold.ms", 5, "Milliseconds each loadtest job holds its acquired node")
	flag.IntVar(&ltDurationS, "loadtest.duration", 30, "Seconds to run the loadtest submission loop")

	flag.Parse()

	logger, err := buildLogger(logLevel, logFmt)
	if err != nil {
		return err
	}

	paths := config.PathsFromEnv()
	if cfgEndpoints != "" {
		paths.Endpoints = cfgEndpoints
	}
	if cfgPoolFile != "" {
		paths.PoolFile = cfgPoolFile
	}

	var recorder stats.Recorder = stats.NopRecorder{}
	if metricsAddr != "" {
		registry := prometheus.NewRegistry()
		recorder = stats.NewPrometheusRecorder(registry)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("connpoolctl: metrics server exited", "error", err.Error())
			}
		}()
	}

	cfg := app.Config{
		ConfigPaths: paths,
		Dialer:      snmpconn.NewDialer(),
		Stats:       recorder,
	}

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	logger.Info("connpoolctl: running — press Ctrl-C to stop")

	if loadtest {
		runLoadtest(ctx, application, logger, ltWorkers, ltIP, uint16(ltPort), ltHoldMs, ltDurationS)
	}

	<-ctx.Done()
	logger.Info("connpoolctl: received shutdown signal")

	application.Stop()
	return nil
}

// runLoadtest submits a steady stream of acquire/release jobs against one
// endpoint for the configured duration, logging a summary at the end. It
// does not block the caller past ltDurationS even if ctx is never
// cancelled — it's a one-shot exerciser, not part of the server lifecycle.
func runLoadtest(ctx context.Context, application *app.App, logger *slog.Logger, workers int, ip string, port uint16, holdMs, durationS int) {
	if ip == "" {
		logger.Warn("connpoolctl: loadtest.enable set but loadtest.ip is empty, skipping")
		return
	}

	results := make(chan loadgen.Result, workers*4)
	pool := loadgen.NewWorkerPool(workers, application.Table(), results, logger)

	ltCtx, cancel := context.WithTimeout(ctx, time.Duration(durationS)*time.Second)
	defer cancel()
	pool.Start(ltCtx)

	var ok, failed int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			if r.Err != nil {
				failed++
			} else {
				ok++
			}
		}
	}()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
submitLoop:
	for {
		select {
		case <-ltCtx.Done():
			break submitLoop
		case <-ticker.C:
			pool.TrySubmit(loadgen.Job{
				IP:      ip,
				Port:    port,
				Timeout: time.Second,
				Hold:    time.Duration(holdMs) * time.Millisecond,
			})
		}
	}

	pool.Stop()
	close(results)
	<-done

	logger.Info("connpoolctl: loadtest complete", "ok", ok, "failed", failed)
}

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}

	return slog.New(handler), nil
}
