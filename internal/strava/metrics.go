package strava

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	tokenRefreshCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shoe_tracker",
		Subsystem: "strava",
		Name:      "token_refreshes_total",
		Help:      "Number of refresh-token grants by outcome.",
	}, []string{"outcome"})

	apiRequestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shoe_tracker",
		Subsystem: "strava",
		Name:      "api_requests_total",
		Help:      "Number of Strava API reads by endpoint and status code.",
	}, []string{"endpoint", "status"})
)

func init() {
	prometheus.MustRegister(tokenRefreshCounter, apiRequestCounter)
}

func recordTokenRefresh(outcome string) {
	tokenRefreshCounter.WithLabelValues(outcome).Inc()
}

func recordAPIRequest(endpoint string, status int) {
	apiRequestCounter.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}
