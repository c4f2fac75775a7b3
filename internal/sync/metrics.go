package sync

import "github.com/prometheus/client_golang/prometheus"

var (
	passesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "route_service",
		Subsystem: "sync",
		Name:      "passes_total",
		Help:      "Number of sync passes grouped by result.",
	}, []string{"result"})

	workoutsUpserted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "route_service",
		Subsystem: "sync",
		Name:      "workouts_upserted_total",
		Help:      "Number of workouts committed by sync passes.",
	})

	workoutsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "route_service",
		Subsystem: "sync",
		Name:      "workouts_failed_total",
		Help:      "Number of workouts skipped because their commit failed.",
	})

	samplesInserted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "route_service",
		Subsystem: "sync",
		Name:      "samples_inserted_total",
		Help:      "Number of geo samples written by sync passes.",
	})

	passDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "route_service",
		Subsystem: "sync",
		Name:      "pass_duration_seconds",
		Help:      "Wall time of sync passes including fetch and commits.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(passesCounter, workoutsUpserted, workoutsFailed, samplesInserted, passDuration)
}

func recordPass(result string) {
	passesCounter.WithLabelValues(result).Inc()
}
