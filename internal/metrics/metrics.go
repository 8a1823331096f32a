// Package metrics holds the prometheus instruments shared by the
// synchronizers, the realtime client and the dev server.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatsync"

// Fetch sources reported by FetchServed.
const (
	SourceNetwork = "network"
	SourceCache   = "cache"
)

// Drop reasons reported by EventDropped.
const (
	ReasonDuplicate  = "duplicate"
	ReasonOtherChat  = "other_chat"
	ReasonSelf       = "self"
	ReasonUndecoded  = "undecodable"
	ReasonUnknown    = "unknown_event"
	ReasonClosed     = "closed"
	ReasonNotInState = "not_loaded"
)

// Metrics groups every instrument.
type Metrics struct {
	fetches       *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	fetchSkipped  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	eventsApplied *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
	frames        *prometheus.CounterVec
	connections   prometheus.Gauge
	unread        prometheus.Gauge
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Pages served to a synchronizer, by source.",
		}, []string{"component", "source"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed page fetches.",
		}, []string{"component"}),
		fetchSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_skipped_total",
			Help:      "Fetch requests ignored because another fetch was in flight.",
		}, []string{"component"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of network page fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component"}),
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_applied_total",
			Help:      "Realtime events merged into local state.",
		}, []string{"component", "event"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Realtime events ignored, by reason.",
		}, []string{"component", "reason"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_frames_total",
			Help:      "WebSocket frames by direction.",
		}, []string{"direction"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open WebSocket connections.",
		}),
		unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unread_messages",
			Help:      "Sum of unread counts in the loaded chat list.",
		}),
	}

	reg.MustRegister(
		m.fetches, m.fetchErrors, m.fetchSkipped, m.fetchDuration,
		m.eventsApplied, m.eventsDropped, m.frames, m.connections, m.unread,
	)
	return m
}

func (m *Metrics) FetchServed(component, source string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(component, source).Inc()
}

func (m *Metrics) FetchFailed(component string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(component).Inc()
}

func (m *Metrics) FetchSkipped(component string) {
	if m == nil {
		return
	}
	m.fetchSkipped.WithLabelValues(component).Inc()
}

// ObserveFetch records the duration since start.
func (m *Metrics) ObserveFetch(component string, start time.Time) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(component).Observe(time.Since(start).Seconds())
}

func (m *Metrics) EventApplied(component, event string) {
	if m == nil {
		return
	}
	m.eventsApplied.WithLabelValues(component, event).Inc()
}

func (m *Metrics) EventDropped(component, reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(component, reason).Inc()
}

// Frame counts one WebSocket frame; direction is "in" or "out".
func (m *Metrics) Frame(direction string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(direction).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) SetUnread(n int) {
	if m == nil {
		return
	}
	m.unread.Set(float64(n))
}

// Counter accessors for tests and the CLI summary.

func (m *Metrics) Fetches(component, source string) prometheus.Counter {
	return m.fetches.WithLabelValues(component, source)
}

func (m *Metrics) Applied(component, event string) prometheus.Counter {
	return m.eventsApplied.WithLabelValues(component, event)
}

func (m *Metrics) Dropped(component, reason string) prometheus.Counter {
	return m.eventsDropped.WithLabelValues(component, reason)
}

func (m *Metrics) Skipped(component string) prometheus.Counter {
	return m.fetchSkipped.WithLabelValues(component)
}

func (m *Metrics) Unread() prometheus.Gauge {
	return m.unread
}

func (m *Metrics) Connections() prometheus.Gauge {
	return m.connections
}
