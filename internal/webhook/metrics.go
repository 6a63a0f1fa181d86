package webhook

import "github.com/prometheus/client_golang/prometheus"

var eventCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shoe_tracker",
	Subsystem: "webhook",
	Name:      "events_total",
	Help:      "Number of webhook deliveries by aspect type and outcome.",
}, []string{"aspect_type", "outcome"})

func init() {
	prometheus.MustRegister(eventCounter)
}

func recordEvent(aspectType, outcome string) {
	eventCounter.WithLabelValues(aspectType, outcome).Inc()
}
