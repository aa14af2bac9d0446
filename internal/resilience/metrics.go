package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pos_client_breaker_state",
			Help: "Current breaker state: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	breakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_client_breaker_transition_total",
			Help: "Count of breaker state transitions",
		},
		[]string{"target", "from", "to"},
	)
	breakerOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_client_breaker_open_total",
			Help: "Number of times a breaker opened",
		},
		[]string{"target"},
	)
)

// Collectors returns the breaker metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{breakerState, breakerTransitions, breakerOpened}
}
