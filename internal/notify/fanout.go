// Package notify fans notification payloads out to every open stream of a
// recipient. Nothing is buffered for users without an open stream: the
// durable notification record is written before Publish is called, and the
// stream only nudges connected clients.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"encore-realtime/internal/metrics"
	"encore-realtime/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

var (
	// ErrIdle is returned by Subscription.Next when nothing arrived within the idle timeout.
	ErrIdle = errors.New("notify: idle timeout")
	// ErrClosed is returned once a subscription has been unregistered.
	ErrClosed = errors.New("notify: subscription closed")
	// ErrQueueFull is returned when a bounded subscription queue rejects a payload.
	ErrQueueFull = errors.New("notify: queue full")
)

// Subscription is one open stream's FIFO queue. Publishers append without
// blocking; the stream goroutine waits on Next.
type Subscription struct {
	ID     uuid.UUID
	UserID int

	limit int // 0 means unbounded

	mu     sync.Mutex
	queue  [][]byte
	closed bool

	ready chan struct{} // capacity 1, signals a non-empty queue
	done  chan struct{}
}

func newSubscription(userID, limit int) *Subscription {
	return &Subscription{
		ID:     uuid.New(),
		UserID: userID,
		limit:  limit,
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *Subscription) push(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.limit > 0 && len(s.queue) >= s.limit {
		return ErrQueueFull
	}
	s.queue = append(s.queue, data)

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return nil
}

// Next returns the oldest queued payload, waiting up to idle for one to
// arrive. It returns ErrIdle on timeout, ErrClosed after unregister, and
// ctx.Err() when ctx is done.
func (s *Subscription) Next(ctx context.Context, idle time.Duration) ([]byte, error) {
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			data := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return data, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return nil, ErrClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, ErrClosed
		case <-s.ready:
		case <-timer.C:
			return nil, ErrIdle
		}
	}
}

// Len is the number of payloads waiting to be read.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	s.queue = nil
	close(s.done)
	return true
}

// Fanout maps recipient user ids to their open subscriptions.
type Fanout struct {
	queueLimit int

	mu   sync.RWMutex
	subs map[int]map[uuid.UUID]*Subscription
}

// NewFanout creates a Fanout whose subscription queues hold at most
// queueLimit payloads; 0 leaves them unbounded.
func NewFanout(queueLimit int) *Fanout {
	return &Fanout{
		queueLimit: queueLimit,
		subs:       make(map[int]map[uuid.UUID]*Subscription),
	}
}

// Register opens a new subscription for userID. A user may hold any number at once.
func (f *Fanout) Register(userID int) *Subscription {
	sub := newSubscription(userID, f.queueLimit)

	f.mu.Lock()
	userSubs, ok := f.subs[userID]
	if !ok {
		userSubs = make(map[uuid.UUID]*Subscription)
		f.subs[userID] = userSubs
	}
	userSubs[sub.ID] = sub
	f.mu.Unlock()

	metrics.NotificationSubscribers.Inc()
	logger.Log().Debug().Int("user_id", userID).Str("subscription", sub.ID.String()).Msg("notification stream registered")
	return sub
}

// Unregister removes exactly sub. Unregistering twice is a no-op, and so is
// passing a userID that does not own sub: the subscription stays open.
func (f *Fanout) Unregister(userID int, sub *Subscription) {
	if sub == nil || sub.UserID != userID {
		return
	}

	f.mu.Lock()
	removed := false
	if userSubs, ok := f.subs[userID]; ok {
		if current, ok := userSubs[sub.ID]; ok && current == sub {
			delete(userSubs, sub.ID)
			removed = true
			if len(userSubs) == 0 {
				delete(f.subs, userID)
			}
		}
	}
	f.mu.Unlock()

	sub.close()
	if removed {
		metrics.NotificationSubscribers.Dec()
		logger.Log().Debug().Int("user_id", userID).Str("subscription", sub.ID.String()).Msg("notification stream unregistered")
	}
}

// Publish enqueues payload on every open subscription of userID. It never
// fails from the caller's point of view: with no subscriptions the payload
// is dropped, and a rejected enqueue affects only that subscription.
func (f *Fanout) Publish(userID int, payload any) {
	f.mu.RLock()
	userSubs := f.subs[userID]
	targets := make([]*Subscription, 0, len(userSubs))
	for _, sub := range userSubs {
		targets = append(targets, sub)
	}
	f.mu.RUnlock()

	if len(targets) == 0 {
		metrics.NotificationsDropped.WithLabelValues("offline").Inc()
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Error marshaling notification for user %d: %v", userID, err)
		return
	}

	delivered := false
	for _, sub := range targets {
		if err := sub.push(data); err != nil {
			if errors.Is(err, ErrQueueFull) {
				metrics.NotificationsDropped.WithLabelValues("queue_full").Inc()
			}
			logger.Log().Debug().Int("user_id", userID).Str("subscription", sub.ID.String()).Err(err).Msg("notification not enqueued")
			continue
		}
		delivered = true
	}
	if delivered {
		metrics.NotificationsPublished.Inc()
	}
}

// SubscriberCount is the number of open subscriptions for userID.
func (f *Fanout) SubscriberCount(userID int) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[userID])
}

// Close unregisters every subscription so open streams return. Used at shutdown.
func (f *Fanout) Close() {
	f.mu.Lock()
	all := f.subs
	f.subs = make(map[int]map[uuid.UUID]*Subscription)
	f.mu.Unlock()

	for _, userSubs := range all {
		for _, sub := range userSubs {
			if sub.close() {
				metrics.NotificationSubscribers.Dec()
			}
		}
	}
}
