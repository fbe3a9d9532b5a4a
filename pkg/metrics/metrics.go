package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatliver_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// InviteRedemptions counts invite redemption attempts by result
	// (success|invalid|expired|exhausted|already_member|error).
	InviteRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatliver_invite_redemptions_total",
			Help: "Total number of invite redemption attempts",
		},
		[]string{"result"},
	)

	// BroadcastEvents counts realtime events fanned out per room event type.
	BroadcastEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatliver_broadcast_events_total",
			Help: "Total number of realtime events fanned out to subscribers",
		},
		[]string{"event"},
	)

	// DroppedSubscribers counts connections disconnected for backpressure.
	DroppedSubscribers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatliver_dropped_subscribers_total",
			Help: "Connections dropped because their outbound queue overflowed",
		},
	)

	// RoomSubscribers tracks currently connected room subscriptions.
	RoomSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatliver_room_subscribers",
			Help: "Number of active room subscriptions",
		},
	)
)
