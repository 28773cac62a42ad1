package pool

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsSet is a small Prometheus instrumentation bundle: one set per
// pool instance, labelled by a caller-supplied component name so a
// process embedding several pools (e.g. one per downstream database) can
// tell them apart.
type metricsSet struct {
	created               *prometheus.CounterVec
	destroyed             *prometheus.CounterVec
	destroyedByEvictor    *prometheus.CounterVec
	destroyedByValidation *prometheus.CounterVec
	borrowed              *prometheus.CounterVec
	returned              *prometheus.CounterVec
	active                *prometheus.GaugeVec
	idle                  *prometheus.GaugeVec
	waiters               *prometheus.GaugeVec
	swallowedExceptions   *prometheus.CounterVec
	borrowWaitSeconds     *prometheus.HistogramVec
}

// newMetrics registers a fresh set of pool metrics under name with reg. A
// nil reg uses prometheus.DefaultRegisterer, the way promauto does by
// default.
func newMetrics(name string, reg prometheus.Registerer) *metricsSet {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &metricsSet{
		created: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_objects_created_total",
			Help: "Total instances created by the pool.",
			ConstLabels: prometheus.Labels{"pool": name},
		}, []string{"key"}),
		destroyed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_objects_destroyed_total",
			Help: "Total instances destroyed by the pool, any cause.",
			ConstLabels: prometheus.Labels{"pool": name},
		}, []string{"key"}),
		destroyedByEvictor: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_objects_destroyed_by_evictor_total",
			Help: "Total instances destroyed by the background evictor.",
			ConstLabels: prometheus.Labels{"pool": name},
		}, []string{"key"}),
		destroyedByValidation: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_objects_destroyed_by_validation_total",
			Help: "Total instances destroyed due to borrow-time validation failure.",
			ConstLabels: prometheus.Labels{"pool": name},
		}, []string{"key"}),
		borrowed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_borrowed_total",
			Help: "Total successful Borrow calls.",
			ConstLabels: prometheus.Labels{"pool": name},
		}, []string{"key"}),
		returned: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_returned_total",
			Help: "Total successful Return calls.",
			ConstLabels: prometheus.Labels{"pool": name},
		}, []string{"key"}),
		active: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pool_active_objects",
			Help: "Instances currently checked out, per key.",
			ConstLabels: prometheus.Labels{"pool": name},
		}, []string{"key"}),
		idle: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pool_idle_objects",
			Help: "Instances currently idle, per key.",
			ConstLabels: prometheus.Labels{"pool": name},
		}, []string{"key"}),
		waiters: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pool_waiters",
			Help: "Borrowers currently blocked waiting, per key. Monitoring estimate only.",
			ConstLabels: prometheus.Labels{"pool": name},
		}, []string{"key"}),
		swallowedExceptions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_swallowed_errors_total",
			Help: "Errors swallowed into the audit ring, by type.",
			ConstLabels: prometheus.Labels{"pool": name},
		}, []string{"type"}),
		borrowWaitSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pool_borrow_wait_seconds",
			Help:        "Time a successful Borrow spent waiting for an instance, per key.",
			ConstLabels: prometheus.Labels{"pool": name},
			Buckets:     prometheus.DefBuckets,
		}, []string{"key"}),
	}
}

func keyLabel(key any) string {
	return fmt.Sprint(key)
}
