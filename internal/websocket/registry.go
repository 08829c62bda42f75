package websocket

import (
	"sort"
	"sync"

	"encore-realtime/internal/metrics"
	"encore-realtime/pkg/logger"
)

// Sender pushes a serialized frame to one remote peer. The registry only
// references senders; their lifetime belongs to the connection goroutines.
type Sender interface {
	Send(data []byte) error
}

// Registry tracks which users are connected to which rooms and the Sender
// for each (room, user) pair. A room entry exists only while it has at
// least one connection. Group chats and DM conversations use separate
// registries so their id spaces never collide.
type Registry struct {
	kind string

	mu        sync.RWMutex
	rooms     map[int]map[int]Sender   // room -> user -> sender
	userRooms map[int]map[int]struct{} // user -> rooms
}

func NewRegistry(kind string) *Registry {
	return &Registry{
		kind:      kind,
		rooms:     make(map[int]map[int]Sender),
		userRooms: make(map[int]map[int]struct{}),
	}
}

func (r *Registry) Kind() string {
	return r.kind
}

// Connect records s as the connection for (roomID, userID). An existing
// entry for the same pair is replaced and returned; Connect does not close it.
func (r *Registry) Connect(roomID, userID int, s Sender) (replaced Sender) {
	r.mu.Lock()
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[int]Sender)
		r.rooms[roomID] = members
	}
	replaced = members[userID]
	members[userID] = s

	rooms, ok := r.userRooms[userID]
	if !ok {
		rooms = make(map[int]struct{})
		r.userRooms[userID] = rooms
	}
	rooms[roomID] = struct{}{}
	r.mu.Unlock()

	if replaced == nil {
		metrics.RoomConnections.WithLabelValues(r.kind).Inc()
	}
	logger.Log().Debug().
		Str("kind", r.kind).
		Int("room_id", roomID).
		Int("user_id", userID).
		Bool("replaced", replaced != nil).
		Msg("room connection registered")
	return replaced
}

// Disconnect removes the (roomID, userID) entry. Removing an absent pair is a no-op.
func (r *Registry) Disconnect(roomID, userID int) {
	r.mu.Lock()
	removed := r.removeLocked(roomID, userID)
	r.mu.Unlock()

	r.afterRemove(roomID, userID, removed)
}

// Release removes the (roomID, userID) entry only while it still points at s.
// A session that was superseded by a newer connection for the same pair uses
// this so its teardown cannot evict the replacement. Reports whether s was removed.
func (r *Registry) Release(roomID, userID int, s Sender) bool {
	r.mu.Lock()
	removed := false
	if current, ok := r.rooms[roomID][userID]; ok && current == s {
		removed = r.removeLocked(roomID, userID)
	}
	r.mu.Unlock()

	r.afterRemove(roomID, userID, removed)
	return removed
}

func (r *Registry) removeLocked(roomID, userID int) bool {
	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[userID]; !ok {
		return false
	}

	delete(members, userID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}

	if rooms, ok := r.userRooms[userID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.userRooms, userID)
		}
	}
	return true
}

func (r *Registry) afterRemove(roomID, userID int, removed bool) {
	if !removed {
		return
	}
	metrics.RoomConnections.WithLabelValues(r.kind).Dec()
	logger.Log().Debug().
		Str("kind", r.kind).
		Int("room_id", roomID).
		Int("user_id", userID).
		Msg("room connection removed")
}

// Members returns a sorted snapshot of the user ids connected to roomID.
func (r *Registry) Members(roomID int) []int {
	r.mu.RLock()
	members := r.rooms[roomID]
	ids := make([]int, 0, len(members))
	for userID := range members {
		ids = append(ids, userID)
	}
	r.mu.RUnlock()

	sort.Ints(ids)
	return ids
}

func (r *Registry) IsOnline(roomID, userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[roomID][userID]
	return ok
}

func (r *Registry) ConnectionCount(roomID int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[roomID])
}

// RoomCount is the number of rooms with at least one connection.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

// UserRooms returns a sorted snapshot of the rooms userID is connected to.
func (r *Registry) UserRooms(userID int) []int {
	r.mu.RLock()
	rooms := r.userRooms[userID]
	ids := make([]int, 0, len(rooms))
	for roomID := range rooms {
		ids = append(ids, roomID)
	}
	r.mu.RUnlock()

	sort.Ints(ids)
	return ids
}

type target struct {
	userID int
	sender Sender
}

// targets snapshots the senders of roomID so writes happen outside the lock.
func (r *Registry) targets(roomID int) []target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	out := make([]target, 0, len(members))
	for userID, s := range members {
		out = append(out, target{userID: userID, sender: s})
	}
	return out
}

// CloseAll closes every registered connection that supports closing and
// returns how many were closed. Entries are removed by each connection's
// own teardown, not here.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	var closers []interface{ Close() }
	for _, members := range r.rooms {
		for _, s := range members {
			if c, ok := s.(interface{ Close() }); ok {
				closers = append(closers, c)
			}
		}
	}
	r.mu.RUnlock()

	for _, c := range closers {
		c.Close()
	}
	return len(closers)
}
