// Package metrics declares the Prometheus collectors for the broker.
//
// Naming convention: namespace_subsystem_name
// - namespace: peercall
// - subsystem: websocket, room, broadcast, chat, ratelimit, store
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks live WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "peercall",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks rooms with at least one participant.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "peercall",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of rooms with live participants",
	})

	// RoomParticipants tracks the roster size per room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "peercall",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_id"})

	// ActiveBroadcasts tracks registered broadcast publishers.
	ActiveBroadcasts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "peercall",
		Subsystem: "broadcast",
		Name:      "publishers_active",
		Help:      "Current number of registered broadcast publishers",
	})

	// WebsocketEvents counts processed inbound events by type and outcome.
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peercall",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// MessageProcessingDuration observes handler latency per event type.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "peercall",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// EnvelopesDropped counts relayed envelopes rejected by the validator.
	EnvelopesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peercall",
		Subsystem: "websocket",
		Name:      "envelopes_dropped_total",
		Help:      "Signaling envelopes dropped by the validator",
	}, []string{"reason"})

	// RateLimitExceeded counts rejected requests/messages per surface.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peercall",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Requests or messages rejected by a rate limiter",
	}, []string{"surface"})

	// ChatPersistQueueDepth tracks the async chat writer backlog.
	ChatPersistQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "peercall",
		Subsystem: "chat",
		Name:      "persist_queue_depth",
		Help:      "Pending chat persistence intents",
	})

	// ChatPersistDropped counts persistence intents dropped on overflow.
	ChatPersistDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "peercall",
		Subsystem: "chat",
		Name:      "persist_dropped_total",
		Help:      "Chat persistence intents dropped because the queue was full",
	})

	// CircuitBreakerState exposes breaker state (0 closed, 1 open, 2 half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "peercall",
		Subsystem: "store",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state: 0=closed, 1=open, 2=half-open",
	}, []string{"breaker"})

	// CircuitBreakerFailures counts operations refused by an open breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peercall",
		Subsystem: "store",
		Name:      "circuit_breaker_failures_total",
		Help:      "Operations refused because a circuit breaker was open",
	}, []string{"breaker"})
)
