package main

import (
	"sync"
	"time"
)

// Room is one named channel. Its lock serializes every membership change and
// every delivery for the room, so members see room events in the order the
// room processed them. expiresAt is fixed at creation and never changes.
type Room struct {
	id        string
	createdAt time.Time
	expiresAt time.Time

	mu      sync.Mutex
	clients map[string]*Client
	deleted bool
}

func NewRoom(id string, createdAt time.Time, ttl time.Duration) *Room {
	return &Room{
		id:        id,
		createdAt: createdAt,
		expiresAt: createdAt.Add(ttl),
		clients:   make(map[string]*Client),
	}
}

func (r *Room) ID() string { return r.id }

func (r *Room) ExpiresAt() time.Time { return r.expiresAt }

// Expired reports whether now is past the room's deadline.
func (r *Room) Expired(now time.Time) bool { return now.After(r.expiresAt) }

// add inserts c, marks it joined and runs onJoin with the new member count
// before releasing the lock. It fails once the room has been deleted so the
// caller can retry against a fresh room.
func (r *Room) add(c *Client, onJoin func(count int)) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return 0, false
	}
	r.clients[c.id] = c
	c.setState(StateJoined)
	n := len(r.clients)
	if onJoin != nil {
		onJoin(n)
	}
	return n, true
}

// withMember runs fn under the room lock if c is still a joined member.
func (r *Room) withMember(c *Client, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted || r.clients[c.id] != c || c.State() != StateJoined {
		return false
	}
	fn()
	return true
}

// deliverLocked queues payload for every member except exclude. Closed
// members are skipped; other failures go to onFail. Caller holds r.mu.
func (r *Room) deliverLocked(payload []byte, exclude *Client, onFail func(*Client, error)) int {
	delivered := 0
	for _, m := range r.clients {
		if exclude != nil && m.id == exclude.id {
			continue
		}
		if err := m.Send(payload); err != nil {
			if onFail != nil {
				onFail(m, err)
			}
			continue
		}
		delivered++
	}
	return delivered
}

// closeMembers runs fn for every member under the room lock and returns the
// members it saw.
func (r *Room) closeMembers(fn func(*Client)) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		fn(c)
		out = append(out, c)
	}
	return out
}

func (r *Room) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Members returns a snapshot of the current members.
func (r *Room) Members() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}
