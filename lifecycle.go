package main

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	ErrMissingRoomID = errors.New("room ID required")
	ErrInvalidRoomID = errors.New("invalid room ID")
	ErrMaxRooms      = errors.New("max rooms reached")
	ErrRoomFull      = errors.New("room is full")
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidRoomID reports whether id is a non-empty run of letters, digits,
// underscores and hyphens.
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// ResolveRoomID picks the room from the path segment after /room/, falling
// back to the "room" query parameter.
func ResolveRoomID(path string, query url.Values) (string, error) {
	var id string
	if rest, ok := strings.CutPrefix(path, "/room/"); ok {
		id, _, _ = strings.Cut(rest, "/")
	}
	if id == "" {
		id = query.Get("room")
	}

	if id == "" {
		return "", ErrMissingRoomID
	}
	if !ValidRoomID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoomID, id)
	}
	return id, nil
}

// DisconnectCause says why a joined connection ended.
type DisconnectCause int

const (
	CauseClosed DisconnectCause = iota
	CauseError
	CauseExpired
	CauseShutdown
)

func (c DisconnectCause) String() string {
	switch c {
	case CauseClosed:
		return "closed"
	case CauseError:
		return "error"
	case CauseExpired:
		return "expired"
	case CauseShutdown:
		return "shutdown"
	}
	return "unknown"
}

func (c DisconnectCause) terminalState() ConnState {
	switch c {
	case CauseError:
		return StateErrored
	case CauseExpired:
		return StateExpired
	default:
		return StateLeft
	}
}

// Admit applies the MAX_ROOMS and MAX_CLIENTS_PER_ROOM caps to a join of
// roomID. The check is advisory: concurrent joins can overshoot a cap by the
// number of handshakes in flight.
func (h *Hub) Admit(roomID string) error {
	room := h.registry.Get(roomID)
	if room == nil {
		if h.cfg.MaxRooms > 0 && h.registry.RoomCount() >= h.cfg.MaxRooms {
			return ErrMaxRooms
		}
		return nil
	}
	if h.cfg.MaxClientsPerRoom > 0 && room.ClientCount() >= h.cfg.MaxClientsPerRoom {
		return ErrRoomFull
	}
	return nil
}

// Join admits a client whose room id has already been validated: it
// registers rate state, adds the client to its room, greets it and tells
// the rest of the room. The greeting and the user-joined notice are queued
// under the room lock, ahead of any later room traffic. A client that joins
// while the hub is shutting down is closed straight away.
func (h *Hub) Join(c *Client) int {
	if h.ShuttingDown() {
		h.rejectShutdown(c)
		return 0
	}

	c.joinedAt = h.now()
	h.limiter.Register(c.id)

	count, created := h.registry.JoinOrCreate(c.roomID, c, func(room *Room, count int) {
		ts := h.now().UnixMilli()
		h.sendTo(c, ConnectedMessage{
			Type:         TypeConnected,
			ConnectionID: c.id,
			RoomID:       c.roomID,
			UserCount:    count,
			Timestamp:    ts,
		})
		h.announceLocked(room, PresenceMessage{
			Type:         TypeUserJoined,
			ConnectionID: c.id,
			UserCount:    count,
			Timestamp:    ts,
		}, c)
	})
	h.stats.RecordConnect()

	if created {
		h.log.Info().Str("room_id", c.roomID).Msg("Room created")
	}
	h.log.Info().
		Str("conn_id", c.id).
		Str("room_id", c.roomID).
		Str("ip", c.ip).
		Int("user_count", count).
		Msg("Client joined room")

	// Shutdown sets the flag before it snapshots rooms, so a join that
	// missed the snapshot sees the flag here.
	if h.ShuttingDown() {
		h.rejectShutdown(c)
		h.Disconnect(c, CauseShutdown)
	}
	return count
}

func (h *Hub) rejectShutdown(c *Client) {
	h.closeWithNotice(c, h.shutdownNotice(), CloseShutdown, "Server shutting down")
}

// Disconnect moves a client to its terminal state and releases its room
// membership and rate state. Only the first call has any effect.
func (h *Hub) Disconnect(c *Client, cause DisconnectCause) {
	c.leaveOnce.Do(func() {
		joined := c.State() == StateJoined
		c.setState(cause.terminalState())
		if !joined {
			return
		}

		remaining, deleted := h.registry.Leave(c.roomID, c, func(room *Room, remaining int) {
			h.announceLocked(room, PresenceMessage{
				Type:         TypeUserLeft,
				ConnectionID: c.id,
				UserCount:    remaining,
				Timestamp:    h.now().UnixMilli(),
			}, c)
		})
		h.limiter.Unregister(c.id)

		if deleted {
			h.log.Info().Str("room_id", c.roomID).Msg("Room deleted (no clients)")
		}

		h.stats.RecordDisconnect(cause, h.now().Sub(c.joinedAt))
		h.log.Info().
			Str("conn_id", c.id).
			Str("room_id", c.roomID).
			Str("cause", cause.String()).
			Int("user_count", remaining).
			Msg("Client left room")
	})
}
