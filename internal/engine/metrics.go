package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeApplied    = "applied"
	outcomeNoop       = "noop"
	outcomeRejected   = "rejected"
	outcomeContention = "contention"
)

var transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bookswap_swap_transitions_total",
	Help: "Swap order commands by action and outcome.",
}, []string{"action", "outcome"})

func (e *Engine) observe(action, outcome string) {
	transitionsTotal.WithLabelValues(action, outcome).Inc()
}
