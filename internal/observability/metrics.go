// Package observability exposes prometheus counters for the token lifecycle
// and the activity synchronizer.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	tokenRefreshCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravasync",
		Subsystem: "oauth",
		Name:      "token_refresh_total",
		Help:      "Strava token refresh attempts by result.",
	}, []string{"result"})
	activitiesInsertedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stravasync",
		Subsystem: "sync",
		Name:      "activities_inserted_total",
		Help:      "New activity rows persisted during synchronization.",
	})
	fetchErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stravasync",
		Subsystem: "sync",
		Name:      "fetch_errors_total",
		Help:      "Failed athlete/activities fetches.",
	})
)

func init() {
	prometheus.MustRegister(tokenRefreshCounter, activitiesInsertedCounter, fetchErrorCounter)
}

// RecordTokenRefresh counts one refresh attempt, result "ok" or "error".
func RecordTokenRefresh(result string) {
	tokenRefreshCounter.WithLabelValues(result).Inc()
}

// RecordActivitiesInserted counts rows persisted by a sync run.
func RecordActivitiesInserted(n int) {
	if n > 0 {
		activitiesInsertedCounter.Add(float64(n))
	}
}

// RecordFetchError counts one failed remote fetch.
func RecordFetchError() {
	fetchErrorCounter.Inc()
}
