package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the crisis-signal pipeline.
type Metrics struct {
	SignalsCreated    prometheus.Counter
	SignalsRouted     *prometheus.CounterVec
	RoutingNoPartner  prometheus.Counter
	DeliveryFailures  prometheus.Counter
	Acknowledgements  prometheus.Counter
	BlackoutsStarted  prometheus.Counter
	BlackoutsExtended prometheus.Counter
	SignalsSealed     prometheus.Counter
	SealDuration      prometheus.Histogram
	RequestLatency    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SignalsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "haven_signals_created_total",
			Help: "Total number of safety signals created",
		}),
		SignalsRouted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_signals_routed_total",
			Help: "Total number of routing attempts by jurisdiction match level",
		}, []string{"match"}),
		RoutingNoPartner: promauto.NewCounter(prometheus.CounterOpts{
			Name: "haven_routing_no_partner_total",
			Help: "Routing attempts that failed because no partner covered the jurisdiction",
		}),
		DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "haven_delivery_failures_total",
			Help: "Webhook delivery failures recorded in the routing ledger",
		}),
		Acknowledgements: promauto.NewCounter(prometheus.CounterOpts{
			Name: "haven_acknowledgements_total",
			Help: "Partner acknowledgements recorded in the routing ledger",
		}),
		BlackoutsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "haven_blackouts_started_total",
			Help: "Notification blackout windows started",
		}),
		BlackoutsExtended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "haven_blackouts_extended_total",
			Help: "Notification blackout windows extended by a partner",
		}),
		SignalsSealed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "haven_signals_sealed_total",
			Help: "Signals moved into the isolated store",
		}),
		SealDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "haven_seal_duration_seconds",
			Help:    "Latency of the seal operation including the family-visible purge",
			Buckets: prometheus.DefBuckets,
		}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "haven_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}
