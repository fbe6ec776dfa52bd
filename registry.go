package main

import (
	"sync"
	"time"
)

// Registry maps room ids to rooms.
//
// Lock order is room.mu before r.mu. Lookups and inserts take r.mu alone and
// release it before touching a room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	ttl   time.Duration
	now   func() time.Time
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		ttl:   ttl,
		now:   time.Now,
	}
}

// JoinOrCreate adds c to roomID, creating the room on first use. onJoin, if
// not nil, runs under the room lock with the new member count. It returns the
// member count after the join and whether this join created the room.
func (r *Registry) JoinOrCreate(roomID string, c *Client, onJoin func(room *Room, count int)) (int, bool) {
	for {
		room, created := r.getOrCreate(roomID)
		var announce func(int)
		if onJoin != nil {
			announce = func(n int) { onJoin(room, n) }
		}
		// add only fails if the room was emptied and deleted between the
		// lookup and the lock; the next pass sees a fresh room.
		if n, ok := room.add(c, announce); ok {
			return n, created
		}
	}
}

func (r *Registry) getOrCreate(roomID string) (*Room, bool) {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return room, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		return room, false
	}
	room = NewRoom(roomID, r.now(), r.ttl)
	r.rooms[roomID] = room
	return room, true
}

// Leave removes c from roomID. When the last member leaves, the room is
// removed from the registry before Leave returns. Otherwise onLeave, if not
// nil, runs under the room lock with the remaining count. A room that no
// longer exists reports deleted.
func (r *Registry) Leave(roomID string, c *Client, onLeave func(room *Room, remaining int)) (remaining int, deleted bool) {
	room := r.Get(roomID)
	if room == nil {
		return 0, true
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.deleted {
		return 0, true
	}
	delete(room.clients, c.id)
	remaining = len(room.clients)
	if remaining > 0 {
		if onLeave != nil {
			onLeave(room, remaining)
		}
		return remaining, false
	}

	room.deleted = true
	r.mu.Lock()
	if r.rooms[roomID] == room {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()
	return 0, true
}

// Get returns the room or nil.
func (r *Registry) Get(roomID string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

// MembersOf returns a snapshot of the room's members, or nil if the room
// does not exist.
func (r *Registry) MembersOf(roomID string) []*Client {
	room := r.Get(roomID)
	if room == nil {
		return nil
	}
	return room.Members()
}

// ExpiredRooms lists rooms whose deadline is before now.
func (r *Registry) ExpiredRooms(now time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, room := range r.rooms {
		if room.Expired(now) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Rooms returns a snapshot of all rooms.
func (r *Registry) Rooms() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	return out
}

// ConnectionCount sums members across all rooms.
func (r *Registry) ConnectionCount() int {
	total := 0
	for _, room := range r.Rooms() {
		total += room.ClientCount()
	}
	return total
}
