// Package metrics exposes capture and gallery counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xiaoyuanzhu-com/screenshot-taker/capture"
	"github.com/xiaoyuanzhu-com/screenshot-taker/crop"
	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
	"github.com/xiaoyuanzhu-com/screenshot-taker/protocol"
)

const namespace = "screenshot"

// Metrics owns a private registry so tests and multiple servers don't collide
type Metrics struct {
	registry *prometheus.Registry

	captures        *prometheus.CounterVec
	captureDuration *prometheus.HistogramVec
	protocolLines   *prometheus.CounterVec
	sessionStates   *prometheus.CounterVec
	cropTargets     *prometheus.CounterVec
	loadFailures    prometheus.Counter
	galleryEntries  prometheus.Gauge
}

// New registers every collector on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Capture commands by viewport and result.",
		}, []string{"viewport", "result"}),
		captureDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_duration_seconds",
			Help:      "Time from sending a capture command to the stored entry.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"viewport"}),
		protocolLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_lines_total",
			Help:      "Status lines received from the capture process by kind.",
		}, []string{"kind"}),
		sessionStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions by target state.",
		}, []string{"state"}),
		cropTargets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crop_targets_total",
			Help:      "Screenshots cropped by result.",
		}, []string{"result"}),
		loadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gallery_load_failures_total",
			Help:      "Persisted screenshots that could not be resolved at load.",
		}),
		galleryEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gallery_entries",
			Help:      "Screenshots currently in the gallery.",
		}),
	}

	m.registry.MustRegister(
		m.captures,
		m.captureDuration,
		m.protocolLines,
		m.sessionStates,
		m.cropTargets,
		m.loadFailures,
		m.galleryEntries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry for scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStatus counts one status line; used as capture.Options.OnStatus
func (m *Metrics) ObserveStatus(s protocol.Status) {
	m.protocolLines.WithLabelValues(string(s.Kind)).Inc()
}

// ObserveEvent counts session transitions; used as capture.Options.OnEvent
func (m *Metrics) ObserveEvent(ev capture.Event) {
	if ev.Type == capture.EventStateChanged {
		m.sessionStates.WithLabelValues(ev.State.String()).Inc()
	}
}

// ObserveCapture records one capture command outcome
func (m *Metrics) ObserveCapture(mobile bool, started time.Time, err error) {
	viewport := "desktop"
	if mobile {
		viewport = "mobile"
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.captures.WithLabelValues(viewport, result).Inc()
	if err == nil {
		m.captureDuration.WithLabelValues(viewport).Observe(time.Since(started).Seconds())
	}
}

// ObserveCrop counts the targets of a crop report
func (m *Metrics) ObserveCrop(r crop.Report) {
	m.cropTargets.WithLabelValues("success").Add(float64(len(r.Results)))
	m.cropTargets.WithLabelValues("error").Add(float64(len(r.Failed)))
}

// ObserveLoad records a gallery load
func (m *Metrics) ObserveLoad(r gallery.LoadReport) {
	m.loadFailures.Add(float64(len(r.Failed)))
	m.galleryEntries.Set(float64(r.Loaded))
}

// SetGalleryEntries sets the current gallery size
func (m *Metrics) SetGalleryEntries(n int) {
	m.galleryEntries.Set(float64(n))
}
