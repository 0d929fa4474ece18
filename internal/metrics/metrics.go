package metrics

import (
	"math"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"video-detector/internal/domain"
)

// Outcome labels for session counters.
const (
	OutcomeStarted   = "started"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Metrics holds application metrics
type Metrics struct {
	// Session state
	progressBits atomic.Uint64 // float64 bits
	running      atomic.Uint64 // 0 = idle, 1 = running

	// Media state
	StreamActive atomic.Uint64 // 0 = inactive, 1 = active
	TargetCount  atomic.Uint64
	Uploads      prometheus.Counter
	Exports      prometheus.Counter

	// Push clients
	EventClients atomic.Int64

	sessions *prometheus.CounterVec
	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detector_sessions_total",
			Help: "Processing sessions by outcome",
		}, []string{"outcome"}),
		Uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detector_uploads_total",
			Help: "Total uploaded video files",
		}),
		Exports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detector_exports_total",
			Help: "Total exported results",
		}),
	}
	for _, outcome := range []string{OutcomeStarted, OutcomeCompleted, OutcomeFailed, OutcomeCancelled} {
		m.sessions.WithLabelValues(outcome)
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(m.sessions, m.Uploads, m.Exports)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "detector_session_progress_percent",
			Help: "Progress of the current session",
		},
		func() float64 { return m.Progress() },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "detector_session_running",
			Help: "Whether a session is running (1) or not (0)",
		},
		func() float64 { return float64(m.running.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "detector_stream_active",
			Help: "Whether a camera stream is held (1) or not (0)",
		},
		func() float64 { return float64(m.StreamActive.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "detector_targets",
			Help: "Number of configured detection targets",
		},
		func() float64 { return float64(m.TargetCount.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "detector_event_clients",
			Help: "Connected event websocket clients",
		},
		func() float64 { return float64(m.EventClients.Load()) },
	))
}

// ObserveSession records a session snapshot. Transitions into a terminal
// state increment the outcome counter once.
func (m *Metrics) ObserveSession(prev, cur domain.Session) {
	m.progressBits.Store(math.Float64bits(cur.Progress))
	if cur.Status == domain.SessionStatusRunning {
		m.running.Store(1)
	} else {
		m.running.Store(0)
	}

	if cur.Status == prev.Status && cur.ID == prev.ID {
		return
	}
	switch cur.Status {
	case domain.SessionStatusRunning:
		m.sessions.WithLabelValues(OutcomeStarted).Inc()
	case domain.SessionStatusCompleted:
		m.sessions.WithLabelValues(OutcomeCompleted).Inc()
	case domain.SessionStatusFailed:
		m.sessions.WithLabelValues(OutcomeFailed).Inc()
	case domain.SessionStatusIdle:
		if prev.Status == domain.SessionStatusRunning {
			m.sessions.WithLabelValues(OutcomeCancelled).Inc()
		}
	}
}

// Progress returns the last observed progress.
func (m *Metrics) Progress() float64 {
	return math.Float64frombits(m.progressBits.Load())
}

// SetStreamActive records whether a camera stream is held.
func (m *Metrics) SetStreamActive(active bool) {
	if active {
		m.StreamActive.Store(1)
		return
	}
	m.StreamActive.Store(0)
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
