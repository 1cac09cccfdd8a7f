// Package stats defines the named-operation accounting contract the
// registry's callers report against, and ships two concrete backends: an
// in-process atomic rollup and a Prometheus exporter. The registry core
// itself never depends on this package — callers wire a Recorder around
// their own TimedGet/Put call sites.
package stats

import "time"

// Recorder receives named pool-operation events. Implementations must be
// safe for concurrent use; every method is expected to be called from
// many goroutines performing concurrent acquire/release cycles.
type Recorder interface {
	// IncAcquire records a successful TimedGet for endpoint.
	IncAcquire(endpoint string)

	// IncRelease records a Put for endpoint.
	IncRelease(endpoint string)

	// IncTimeout records a TimedGet that returned ErrTimeout for endpoint.
	IncTimeout(endpoint string)

	// IncBusy records a TimedGet that returned ErrBusy, for endpoint.
	IncBusy(endpoint string)

	// ObserveWait records how long a successful TimedGet spent blocked
	// before acquiring a node, for endpoint.
	ObserveWait(endpoint string, d time.Duration)

	// ObserveHold records how long a node was held between Get and Put,
	// for endpoint.
	ObserveHold(endpoint string, d time.Duration)
}

// NopRecorder discards every observation. Useful as a default when no
// stats backend is configured.
type NopRecorder struct{}

func (NopRecorder) IncAcquire(string)                 {}
func (NopRecorder) IncRelease(string)                 {}
func (NopRecorder) IncTimeout(string)                 {}
func (NopRecorder) IncBusy(string)                    {}
func (NopRecorder) ObserveWait(string, time.Duration) {}
func (NopRecorder) ObserveHold(string, time.Duration) {}
