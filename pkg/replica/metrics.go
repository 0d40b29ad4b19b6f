package replica

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "concord"

// Metrics are the Prometheus collectors maintained by a Replica. Every metric
// carries a "device" const label.
type Metrics struct {
	Issued        prometheus.Counter
	Applied       prometheus.Counter
	Skipped       *prometheus.CounterVec
	Duplicates    prometheus.Counter
	Conflicts     *prometheus.CounterVec
	LogSize       prometheus.Gauge
	DroppedEvents prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg, if not nil.
func NewMetrics(reg prometheus.Registerer, device string) *Metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"device": device}
	return &Metrics{
		Issued: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "replica",
			Name:        "operations_issued_total",
			Help:        "Local operations authored by the replica",
			ConstLabels: labels,
		}),
		Applied: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "replica",
			Name:        "operations_applied_total",
			Help:        "Remote operations integrated into the document",
			ConstLabels: labels,
		}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "replica",
			Name:        "operations_skipped_total",
			Help:        "Remote operations that were not integrated",
			ConstLabels: labels,
		}, []string{"reason"}),
		Duplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "replica",
			Name:        "operations_duplicate_total",
			Help:        "Re-delivered operations dropped before integration",
			ConstLabels: labels,
		}),
		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "replica",
			Name:        "conflicts_total",
			Help:        "Conflicts detected while integrating remote operations",
			ConstLabels: labels,
		}, []string{"type"}),
		LogSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "replica",
			Name:        "log_size",
			Help:        "Operations held in the replica log",
			ConstLabels: labels,
		}),
		DroppedEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "replica",
			Name:        "events_dropped_total",
			Help:        "Events discarded because the Events channel was full",
			ConstLabels: labels,
		}),
	}
}
