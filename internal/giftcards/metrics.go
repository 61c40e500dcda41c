package giftcards

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/richxcame/giftcard-checkout/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/richxcame/giftcard-checkout/internal/giftcards")

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeSkipped = "skipped"
)

var (
	ledgerTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftcard_ledger_transitions_total",
		Help: "Gift card ledger transitions by operation and outcome",
	}, []string{"operation", "outcome"})

	migratedOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftcard_migrated_orders_total",
		Help: "Legacy orders processed by the gift card migration",
	}, []string{"version", "outcome"})
)

func recordTransition(operation, outcome string) {
	ledgerTransitionsTotal.WithLabelValues(operation, outcome).Inc()
}
