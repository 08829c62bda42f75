package websocket

import (
	"encore-realtime/internal/metrics"
	"encore-realtime/pkg/logger"

	"github.com/goccy/go-json"
)

// Broadcaster delivers events to the connections of a registry's rooms.
// Delivery is best effort and at most once: a failed send to one recipient
// is logged and skipped, never retried, and never reported to the caller.
type Broadcaster struct {
	registry *Registry
}

func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast sends event to every connection in roomID.
func (b *Broadcaster) Broadcast(roomID int, event any) {
	b.broadcast(roomID, event, 0, false)
}

// BroadcastExcept sends event to every connection in roomID except excludeUserID's.
func (b *Broadcaster) BroadcastExcept(roomID int, event any, excludeUserID int) {
	b.broadcast(roomID, event, excludeUserID, true)
}

func (b *Broadcaster) broadcast(roomID int, event any, excludeUserID int, exclude bool) {
	targets := b.registry.targets(roomID)
	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Error marshaling broadcast for room %d: %v", roomID, err)
		return
	}

	metrics.RoomBroadcasts.WithLabelValues(b.registry.kind).Inc()
	for _, t := range targets {
		if exclude && t.userID == excludeUserID {
			continue
		}
		b.deliver(roomID, t.userID, t.sender, data)
	}
}

// SendTo sends event to a single connection, typically the one that just joined.
func (b *Broadcaster) SendTo(s Sender, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Error marshaling direct frame: %v", err)
		return
	}
	b.deliver(0, 0, s, data)
}

func (b *Broadcaster) deliver(roomID, userID int, s Sender, data []byte) {
	if err := s.Send(data); err != nil {
		metrics.RoomDeliveryFailures.WithLabelValues(b.registry.kind).Inc()
		logger.Log().Debug().
			Str("kind", b.registry.kind).
			Int("room_id", roomID).
			Int("user_id", userID).
			Err(err).
			Msg("dropped frame for recipient")
	}
}
