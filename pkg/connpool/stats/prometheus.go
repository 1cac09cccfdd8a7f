package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder reports pool operations as Prometheus metrics,
// labeled by endpoint. It is the scrape-friendly counterpart to
// AtomicRollup.
type PrometheusRecorder struct {
	acquires *prometheus.CounterVec
	releases *prometheus.CounterVec
	timeouts *prometheus.CounterVec
	busy     *prometheus.CounterVec
	wait     *prometheus.HistogramVec
	hold     *prometheus.HistogramVec
}

// NewPrometheusRecorder constructs a recorder and registers its
// collectors on reg. Passing prometheus.NewRegistry() keeps the metrics
// isolated from the default global registry; passing
// prometheus.DefaultRegisterer matches the common single-process
// convention.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		acquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connpool",
			Name:      "acquires_total",
			Help:      "Total successful TimedGet calls, by endpoint.",
		}, []string{"endpoint"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connpool",
			Name:      "releases_total",
			Help:      "Total Put calls, by endpoint.",
		}, []string{"endpoint"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connpool",
			Name:      "timeouts_total",
			Help:      "Total TimedGet calls that returned ErrTimeout, by endpoint.",
		}, []string{"endpoint"}),
		busy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connpool",
			Name:      "busy_total",
			Help:      "Total TimedGet calls that returned ErrBusy, by endpoint.",
		}, []string{"endpoint"}),
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "connpool",
			Name:      "acquire_wait_seconds",
			Help:      "Time a successful TimedGet spent blocked before acquiring a node.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		hold: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "connpool",
			Name:      "hold_seconds",
			Help:      "Time a node was held between Get and Put.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
	reg.MustRegister(r.acquires, r.releases, r.timeouts, r.busy, r.wait, r.hold)
	return r
}

func (r *PrometheusRecorder) IncAcquire(endpoint string) { r.acquires.WithLabelValues(endpoint).Inc() }
func (r *PrometheusRecorder) IncRelease(endpoint string) { r.releases.WithLabelValues(endpoint).Inc() }
func (r *PrometheusRecorder) IncTimeout(endpoint string) { r.timeouts.WithLabelValues(endpoint).Inc() }
func (r *PrometheusRecorder) IncBusy(endpoint string)    { r.busy.WithLabelValues(endpoint).Inc() }

func (r *PrometheusRecorder) ObserveWait(endpoint string, d time.Duration) {
	r.wait.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (r *PrometheusRecorder) ObserveHold(endpoint string, d time.Duration) {
	r.hold.WithLabelValues(endpoint).Observe(d.Seconds())
}
