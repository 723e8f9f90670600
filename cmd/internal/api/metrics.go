package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the domain counters exposed at /metrics.
type Metrics struct {
	LoginsTotal           *prometheus.CounterVec
	ProofTokensIssued     prometheus.Counter
	CollectionsValidated  *prometheus.CounterVec
	PointsAwardedTotal    prometheus.Counter
	RedemptionsMinted     prometheus.Counter
	RedemptionsUsed       prometheus.Counter
	WorkflowFailuresTotal *prometheus.CounterVec
}

// NewMetrics registers the domain counters on reg. A nil reg falls back
// to the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		LoginsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "circuito",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		ProofTokensIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: "circuito",
			Name:      "proof_tokens_issued_total",
			Help:      "Collection-proof tokens minted.",
		}),
		CollectionsValidated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "circuito",
			Name:      "collections_validated_total",
			Help:      "Validated collections by material.",
		}, []string{"material"}),
		PointsAwardedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "circuito",
			Name:      "points_awarded_total",
			Help:      "Impact points credited by validated collections.",
		}),
		RedemptionsMinted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "circuito",
			Name:      "redemptions_minted_total",
			Help:      "Redemption codes minted.",
		}),
		RedemptionsUsed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "circuito",
			Name:      "redemptions_used_total",
			Help:      "Redemption codes consumed by partners.",
		}),
		WorkflowFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "circuito",
			Name:      "workflow_failures_total",
			Help:      "Business-rule failures by error code.",
		}, []string{"code"}),
	}
}
