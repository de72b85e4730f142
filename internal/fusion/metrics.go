package fusion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments the Risk Fusion Processor
// updates on every fused event.
type Metrics struct {
	FusionsTotal     *prometheus.CounterVec
	CompositeScore   *prometheus.HistogramVec
	FusionMethodUsed *prometheus.CounterVec
}

// NewMetrics creates the Risk Fusion instruments on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the instruments on reg. Tests pass a fresh
// registry so repeated processor construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FusionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_events_total",
				Help: "Total number of fused RiskOutput events emitted",
			},
			[]string{"risk_level"},
		),
		CompositeScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fusion_composite_score",
				Help:    "Composite risk score distribution",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.45, 0.5, 0.65, 0.7, 0.85, 0.9, 1.0},
			},
			[]string{"truck_id"},
		),
		FusionMethodUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_method_total",
				Help: "Count of fusions by scoring method used",
			},
			[]string{"method"},
		),
	}
}
