package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Naming convention: namespace_subsystem_name
// - namespace: storyfill (application-level grouping)
// - subsystem: room, websocket, bus, ratelimit, narration (feature-level grouping)
//
// Gauges track current state, counters cumulative events, histograms
// latency distributions.

var (
	// ActiveRooms tracks the current number of live rooms on this instance.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "storyfill",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// ActiveSockets tracks the current number of open WebSocket sessions.
	ActiveSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "storyfill",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// Commands counts command-surface requests by command and outcome.
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyfill",
		Subsystem: "room",
		Name:      "commands_total",
		Help:      "Total room commands processed",
	}, []string{"command", "status"})

	// RoomsExpired counts rooms reclaimed by the sweeper.
	RoomsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storyfill",
		Subsystem: "room",
		Name:      "expired_total",
		Help:      "Total rooms expired by the TTL sweeper",
	})

	// EventsPublished counts events delivered to subscribers.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyfill",
		Subsystem: "bus",
		Name:      "events_published_total",
		Help:      "Total events delivered to subscribers",
	}, []string{"event_type"})

	// EventsDropped counts events dropped on full subscriber queues.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyfill",
		Subsystem: "bus",
		Name:      "events_dropped_total",
		Help:      "Total events dropped because a subscriber queue was full",
	}, []string{"event_type"})

	// RateLimitRejections counts requests refused by the rate limiter.
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyfill",
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Total requests rejected by the rate limiter",
	}, []string{"bucket"})

	// NarrationJobs counts narration jobs by terminal status.
	NarrationJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyfill",
		Subsystem: "narration",
		Name:      "jobs_total",
		Help:      "Total narration jobs by terminal status",
	}, []string{"status"})

	// CircuitBreakerState exposes breaker state (0 closed, 1 open, 2 half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "storyfill",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})

	// CircuitBreakerFailures counts calls refused by an open breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyfill",
		Subsystem: "breaker",
		Name:      "failures_total",
		Help:      "Total calls refused by an open circuit breaker",
	}, []string{"name"})

	// CommandDuration tracks command handling latency.
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storyfill",
		Subsystem: "room",
		Name:      "command_duration_seconds",
		Help:      "Time spent handling room commands",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"command"})
)

func IncConnection() {
	ActiveSockets.Inc()
}

func DecConnection() {
	ActiveSockets.Dec()
}
