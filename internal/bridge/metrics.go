package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	roundTripsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vizbridged",
			Subsystem: "bridge",
			Name:      "round_trips_total",
			Help:      "Total runtime round trips",
		},
		[]string{"type", "result"},
	)

	roundTripDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vizbridged",
			Subsystem: "bridge",
			Name:      "round_trip_duration_seconds",
			Help:      "Duration of runtime round trips in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	runtimeLaunchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vizbridged",
			Subsystem: "bridge",
			Name:      "runtime_launches_total",
			Help:      "Total runtime process launches, including restarts",
		},
	)

	commandsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vizbridged",
			Subsystem: "bridge",
			Name:      "commands_dropped_total",
			Help:      "Render instructions dropped during parse or shader resolution",
		},
		[]string{"reason"},
	)

	framesRenderedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vizbridged",
			Subsystem: "bridge",
			Name:      "frames_rendered_total",
			Help:      "Render round trips that produced a command buffer",
		},
	)
)

func init() {
	prometheus.MustRegister(roundTripsTotal, roundTripDuration,
		runtimeLaunchesTotal, commandsDroppedTotal, framesRenderedTotal)
}
