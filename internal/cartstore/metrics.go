package cartstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeApplied = "applied"
	outcomeNoop    = "noop"
)

type metrics struct {
	commands        *prometheus.CounterVec
	persistFailures prometheus.Counter
	eventsDropped   prometheus.Counter
	lineItems       prometheus.Gauge
}

// newMetrics builds the store collectors. A nil registerer leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_commands_total",
			Help: "Cart commands processed, by command and outcome.",
		}, []string{"command", "outcome"}),
		persistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "cart_persist_failures_total",
			Help: "Cart snapshot writes that failed.",
		}),
		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "cart_events_dropped_total",
			Help: "Cart update events dropped because the publish queue was full.",
		}),
		lineItems: f.NewGauge(prometheus.GaugeOpts{
			Name: "cart_line_items",
			Help: "Distinct line items currently in the cart.",
		}),
	}
}
