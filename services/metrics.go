package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus counters the services update. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Placements    *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	Imports       *prometheus.CounterVec
	Deletions     *prometheus.CounterVec
	BlobMisses    prometheus.Counter
	Notifications *prometheus.CounterVec
}

// NewMetrics registers the service metrics on reg
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Placements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placements_total",
			Help:      "Capacity placements by domain and outcome",
		}, []string{"domain", "outcome"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Successful status transitions by order kind and target status",
		}, []string{"kind", "to"}),
		Imports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Installation import attempts by outcome",
		}, []string{"outcome"}),
		Deletions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletions_total",
			Help:      "Permanent deletions by order kind and outcome",
		}, []string{"kind", "outcome"}),
		BlobMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_delete_missing_total",
			Help:      "Blob deletions that found nothing to delete",
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Technician messages handed off by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) placement(domain, outcome string) {
	if m == nil {
		return
	}
	m.Placements.WithLabelValues(domain, outcome).Inc()
}

func (m *Metrics) transition(kind, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(kind, to).Inc()
}

func (m *Metrics) imported(outcome string) {
	if m == nil {
		return
	}
	m.Imports.WithLabelValues(outcome).Inc()
}

func (m *Metrics) deletion(kind, outcome string) {
	if m == nil {
		return
	}
	m.Deletions.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) blobMissing() {
	if m == nil {
		return
	}
	m.BlobMisses.Inc()
}

func (m *Metrics) notification(outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}
