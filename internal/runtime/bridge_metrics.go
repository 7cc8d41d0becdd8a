package runtime

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/viewbridge/internal/runtime/bridge"
	"github.com/drblury/viewbridge/internal/runtime/envelope"
)

// BridgeMetrics tracks request and alert statistics for every view of a page.
type BridgeMetrics struct {
	mu sync.RWMutex

	views          map[string]*ViewMetrics
	pendingUpdates int

	// Prometheus collectors
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inflight        *prometheus.GaugeVec
	alertsTotal     *prometheus.CounterVec
	viewsCurrent    prometheus.Gauge
	pendingGauge    prometheus.Gauge

	registerer prometheus.Registerer
	registered bool
}

// ViewMetrics holds the statistics of one view.
type ViewMetrics struct {
	RequestsTotal uint64          `json:"requests_total"`
	Replies       uint64          `json:"replies"`
	Errors        uint64          `json:"errors"`
	Timeouts      uint64          `json:"timeouts"`
	Aborted       uint64          `json:"aborted"`
	InFlight      int64           `json:"in_flight"`
	Alerts        uint64          `json:"alerts"`
	LastAlert     *envelope.Alert `json:"last_alert,omitempty"`
	AvgLatencyMs  float64         `json:"avg_latency_ms"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
}

// BridgeMetricsSnapshot is a point-in-time view of BridgeMetrics.
type BridgeMetricsSnapshot struct {
	TotalRequests      uint64                  `json:"total_requests"`
	TotalTimeouts      uint64                  `json:"total_timeouts"`
	TotalAlerts        uint64                  `json:"total_alerts"`
	PendingViewUpdates int                     `json:"pending_view_updates"`
	Views              map[string]*ViewMetrics `json:"views"`
	CollectedAt        time.Time               `json:"collected_at"`
}

func newBridgeCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "viewbridge",
			Subsystem: "bridge",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newBridgeGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "viewbridge",
		Subsystem: "bridge",
		Name:      name,
		Help:      help,
	})
}

// NewBridgeMetrics creates a collector that registers with registerer.
// A nil registerer means prometheus.DefaultRegisterer.
func NewBridgeMetrics(registerer prometheus.Registerer) *BridgeMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &BridgeMetrics{
		views:         make(map[string]*ViewMetrics),
		registerer:    registerer,
		requestsTotal: newBridgeCounterVec("requests_total", "Requests sent to views by type and outcome", []string{"type", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "viewbridge",
			Subsystem: "bridge",
			Name:      "request_duration_seconds",
			Help:      "Time until a view request settled",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"type"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "viewbridge",
			Subsystem: "bridge",
			Name:      "requests_in_flight",
			Help:      "Requests waiting for a view reply",
		}, []string{"type"}),
		alertsTotal:  newBridgeCounterVec("alerts_total", "Alerts raised next to views by level", []string{"level"}),
		viewsCurrent: newBridgeGauge("views_current", "Views attached to the page"),
		pendingGauge: newBridgeGauge("pending_view_updates", "View-update requests waiting for the shell"),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *BridgeMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.inflight,
		m.alertsTotal,
		m.viewsCurrent,
		m.pendingGauge,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordRequestStart records a request handed to a view.
func (m *BridgeMetrics) RecordRequestStart(info bridge.RequestInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := m.viewLocked(info.NodeID)
	view.RequestsTotal++
	view.InFlight++
	view.LastUpdatedAt = time.Now()

	m.inflight.WithLabelValues(string(info.Type)).Inc()
}

// RecordRequestDone records how a request ended.
func (m *BridgeMetrics) RecordRequestDone(info bridge.RequestInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := m.viewLocked(info.NodeID)
	if view.InFlight > 0 {
		view.InFlight--
	}
	switch info.Outcome {
	case bridge.OutcomeReply:
		view.Replies++
	case bridge.OutcomeError:
		view.Errors++
	case bridge.OutcomeTimeout:
		view.Timeouts++
	case bridge.OutcomeAborted:
		view.Aborted++
	}
	settled := view.Replies + view.Errors + view.Timeouts + view.Aborted
	latency := float64(info.Duration) / float64(time.Millisecond)
	view.AvgLatencyMs = ((view.AvgLatencyMs * float64(settled-1)) + latency) / float64(settled)
	view.LastUpdatedAt = time.Now()

	m.inflight.WithLabelValues(string(info.Type)).Dec()
	m.requestsTotal.WithLabelValues(string(info.Type), string(info.Outcome)).Inc()
	m.requestDuration.WithLabelValues(string(info.Type)).Observe(info.Duration.Seconds())
}

// RecordAlert records an alert raised next to nodeID.
func (m *BridgeMetrics) RecordAlert(nodeID string, alert envelope.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := m.viewLocked(nodeID)
	view.Alerts++
	view.LastAlert = &alert
	view.LastUpdatedAt = time.Now()

	m.alertsTotal.WithLabelValues(string(alert.Level)).Inc()
}

// SetPendingViewUpdates sets the number of view updates waiting for the shell.
func (m *BridgeMetrics) SetPendingViewUpdates(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pendingUpdates = n
	m.pendingGauge.Set(float64(n))
}

// SetViews sets the number of attached views.
func (m *BridgeMetrics) SetViews(n int) {
	m.viewsCurrent.Set(float64(n))
}

// RemoveView drops the statistics of nodeID.
func (m *BridgeMetrics) RemoveView(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.views, nodeID)
}

// Hooks returns bridge hooks that feed this collector.
func (m *BridgeMetrics) Hooks() bridge.Hooks {
	return bridge.Hooks{
		OnRequestStart: m.RecordRequestStart,
		OnRequestDone:  m.RecordRequestDone,
		OnAlert:        m.RecordAlert,
	}
}

// Snapshot returns a copy of all view statistics.
func (m *BridgeMetrics) Snapshot() BridgeMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := BridgeMetricsSnapshot{
		PendingViewUpdates: m.pendingUpdates,
		Views:              make(map[string]*ViewMetrics, len(m.views)),
		CollectedAt:        time.Now(),
	}
	for nodeID, view := range m.views {
		snapshot.Views[nodeID] = view.clone()
		snapshot.TotalRequests += view.RequestsTotal
		snapshot.TotalTimeouts += view.Timeouts
		snapshot.TotalAlerts += view.Alerts
	}
	return snapshot
}

// View returns a copy of the statistics of nodeID, or nil.
func (m *BridgeMetrics) View(nodeID string) *ViewMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if view, ok := m.views[nodeID]; ok {
		return view.clone()
	}
	return nil
}

// NodeIDs returns the sorted ids of all tracked views.
func (m *BridgeMetrics) NodeIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.views))
	for id := range m.views {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reset resets all metrics.
func (m *BridgeMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.views = make(map[string]*ViewMetrics)
	m.pendingUpdates = 0
	m.requestsTotal.Reset()
	m.requestDuration.Reset()
	m.inflight.Reset()
	m.alertsTotal.Reset()
	m.viewsCurrent.Set(0)
	m.pendingGauge.Set(0)
}

func (m *BridgeMetrics) viewLocked(nodeID string) *ViewMetrics {
	if view, ok := m.views[nodeID]; ok {
		return view
	}
	view := &ViewMetrics{}
	m.views[nodeID] = view
	return view
}

func (v *ViewMetrics) clone() *ViewMetrics {
	c := *v
	if v.LastAlert != nil {
		alert := *v.LastAlert
		c.LastAlert = &alert
	}
	return &c
}
