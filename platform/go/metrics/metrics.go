// Package metrics exposes Prometheus instrumentation for the routing layer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Routing tracks tenant pool and provisioning activity.
type Routing struct {
	Acquires      *prometheus.CounterVec
	OpenPools     prometheus.Gauge
	BuildDuration prometheus.Histogram
}

// NewRouting constructs the routing collectors and registers them when reg is
// non-nil.
func NewRouting(reg prometheus.Registerer) *Routing {
	m := &Routing{
		Acquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "craftdesk",
			Subsystem: "routing",
			Name:      "pool_acquires_total",
			Help:      "Tenant pool acquisitions by outcome.",
		}, []string{"outcome"}),
		OpenPools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "craftdesk",
			Subsystem: "routing",
			Name:      "open_tenant_pools",
			Help:      "Live tenant connection pools in the registry.",
		}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "craftdesk",
			Subsystem: "routing",
			Name:      "pool_build_duration_seconds",
			Help:      "Time to provision and open a tenant pool.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Acquires, m.OpenPools, m.BuildDuration)
	}
	return m
}
