package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Breaker state: 0 closed, 0.5 half-open, 1 open",
	}, []string{"breaker"})

	breakerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_calls_total",
		Help: "Calls through a circuit breaker by outcome (success, failure, rejected)",
	}, []string{"breaker", "outcome"})

	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_state_changes_total",
		Help: "Circuit breaker state transitions",
	}, []string{"breaker", "from", "to"})
)

const (
	outcomeSuccess  = "success"
	outcomeFailure  = "failure"
	outcomeRejected = "rejected"
)

// breakerMetrics is the set of series belonging to one named breaker.
type breakerMetrics struct {
	name  string
	state prometheus.Gauge
	calls *prometheus.CounterVec
}

func newBreakerMetrics(name string) *breakerMetrics {
	m := &breakerMetrics{
		name:  name,
		state: breakerState.WithLabelValues(name),
		calls: breakerCalls.MustCurryWith(prometheus.Labels{"breaker": name}),
	}
	m.state.Set(stateValue(gobreaker.StateClosed))
	return m
}

func (m *breakerMetrics) transition(from, to gobreaker.State) {
	breakerTransitions.WithLabelValues(m.name, from.String(), to.String()).Inc()
	m.state.Set(stateValue(to))
}

func (m *breakerMetrics) call(outcome string) {
	m.calls.WithLabelValues(outcome).Inc()
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 0.5
	case gobreaker.StateOpen:
		return 1
	default:
		return 0
	}
}
