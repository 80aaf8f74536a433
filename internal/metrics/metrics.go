// Package metrics exposes Prometheus counters for alerts, detections and
// voice announcements.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"classwatch/internal/alerts"
	"classwatch/internal/detection"
	"classwatch/internal/voice"
)

// Metrics implements alerts.Listener and detection.Listener.
type Metrics struct {
	alertsCreated  *prometheus.CounterVec
	alertsResolved prometheus.Counter
	alertsDeleted  prometheus.Counter
	unresolved     prometheus.Gauge
	detections     *prometheus.CounterVec
	announcements  *prometheus.CounterVec
}

// New registers the collectors on reg. monitorActive backs the monitor
// gauge and may be nil.
func New(reg prometheus.Registerer, monitorActive func() bool) *Metrics {
	m := &Metrics{
		alertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classwatch", Name: "alerts_created_total",
			Help: "Alerts created by type and severity.",
		}, []string{"type", "severity"}),
		alertsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classwatch", Name: "alerts_resolved_total",
			Help: "Alerts moved to resolved.",
		}),
		alertsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classwatch", Name: "alerts_deleted_total",
			Help: "Alerts deleted.",
		}),
		unresolved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "classwatch", Name: "alerts_unresolved",
			Help: "Unresolved alerts created or resolved since start.",
		}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classwatch", Name: "detections_total",
			Help: "Detections recorded in the live feed.",
		}, []string{"authorized"}),
		announcements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classwatch", Name: "voice_announcements_total",
			Help: "Voice alerts by category and playback mode.",
		}, []string{"category", "mode"}),
	}
	reg.MustRegister(m.alertsCreated, m.alertsResolved, m.alertsDeleted, m.unresolved, m.detections, m.announcements)
	if monitorActive != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "classwatch", Name: "monitor_active",
			Help: "1 while live monitoring holds the camera.",
		}, func() float64 {
			if monitorActive() {
				return 1
			}
			return 0
		}))
	}
	return m
}

// SetUnresolved initializes the gauge from the ledger at startup.
func (m *Metrics) SetUnresolved(n int) { m.unresolved.Set(float64(n)) }

func (m *Metrics) AlertChanged(_ context.Context, kind alerts.EventKind, a alerts.Alert) {
	switch kind {
	case alerts.EventCreated:
		m.alertsCreated.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
		m.unresolved.Inc()
	case alerts.EventResolved:
		m.alertsResolved.Inc()
		m.unresolved.Dec()
	case alerts.EventDeleted:
		m.alertsDeleted.Inc()
		if !a.Resolved {
			m.unresolved.Dec()
		}
	}
}

func (m *Metrics) Detected(_ context.Context, d detection.Detection, _ detection.Status) {
	m.detections.WithLabelValues(strconv.FormatBool(d.Authorized)).Inc()
}

// Announced counts one voice alert.
func (m *Metrics) Announced(c voice.Category, mode voice.Mode) {
	m.announcements.WithLabelValues(string(c), string(mode)).Inc()
}
