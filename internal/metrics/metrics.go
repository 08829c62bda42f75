// Package metrics holds the Prometheus collectors for the real-time layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoomConnections is the number of tracked (room, user) connections per registry kind.
	RoomConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_room_connections",
			Help: "Live room connections tracked by the registry",
		},
		[]string{"kind"},
	)

	RoomBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_room_broadcasts_total",
			Help: "Payloads broadcast to rooms",
		},
		[]string{"kind"},
	)

	RoomDeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_room_delivery_failures_total",
			Help: "Per-recipient deliveries that were dropped",
		},
		[]string{"kind"},
	)

	// InboundFramesDropped counts client frames skipped without closing the socket.
	InboundFramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_inbound_frames_dropped_total",
			Help: "Inbound frames skipped (malformed, rate limited)",
		},
		[]string{"kind", "reason"},
	)

	NotificationSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_notification_subscribers",
			Help: "Open notification stream subscriptions",
		},
	)

	NotificationsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_notifications_published_total",
			Help: "Notifications enqueued on at least one subscription",
		},
	)

	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_notifications_dropped_total",
			Help: "Notifications not enqueued, by reason",
		},
		[]string{"reason"},
	)
)
