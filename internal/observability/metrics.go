package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activitySyncedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shoe_tracker",
		Subsystem: "sync",
		Name:      "last_activity_synced_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity upserted from Strava.",
	})
	tokenRefreshGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shoe_tracker",
		Subsystem: "sync",
		Name:      "last_token_refresh_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful token refresh.",
	})
)

func init() {
	prometheus.MustRegister(activitySyncedGauge, tokenRefreshGauge)
}

// RecordActivitySynced updates the sync watermark gauge.
func RecordActivitySynced(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activitySyncedGauge.Set(float64(ts.Unix()))
}

// RecordTokenRefreshed updates the token refresh watermark gauge.
func RecordTokenRefreshed(ts time.Time) {
	if ts.IsZero() {
		return
	}
	tokenRefreshGauge.Set(float64(ts.Unix()))
}
