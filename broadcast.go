package main

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Broadcast queues payload for every open member of roomID except exclude
// and returns how many members it reached. Delivery happens under the room
// lock so it is ordered against joins and leaves. Closed members are skipped;
// a member whose queue is full is logged and counted, and delivery to the
// rest continues.
func (h *Hub) Broadcast(roomID string, payload []byte, exclude *Client) int {
	room := h.registry.Get(roomID)
	if room == nil {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.deleted {
		return 0
	}
	return h.deliverLocked(room, payload, exclude)
}

// deliverLocked fans payload out to room. Caller holds room.mu.
func (h *Hub) deliverLocked(room *Room, payload []byte, exclude *Client) int {
	return room.deliverLocked(payload, exclude, func(m *Client, err error) {
		h.sendFailed(m, err)
	})
}

// announceLocked encodes v and fans it out to room. Caller holds room.mu.
func (h *Hub) announceLocked(room *Room, v any, exclude *Client) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", room.id).Msg("Failed to encode broadcast")
		return
	}
	h.deliverLocked(room, payload, exclude)
}

func (h *Hub) sendFailed(c *Client, err error) {
	if errors.Is(err, ErrClientClosed) {
		return
	}
	h.stats.RecordSendFailure()
	h.log.Warn().Err(err).Str("conn_id", c.id).Str("room_id", c.roomID).Msg("Send failed")
}

// sendTo delivers a server message to one client.
func (h *Hub) sendTo(c *Client, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", c.id).Msg("Failed to encode message")
		return
	}
	if err := c.Send(payload); err != nil {
		h.sendFailed(c, err)
	}
}

// closeWithNotice sends notice as the client's last message and closes it.
func (h *Hub) closeWithNotice(c *Client, notice []byte, code int, reason string) {
	if err := c.CloseWith(notice, code, reason); err != nil {
		h.sendFailed(c, err)
	}
}

func (h *Hub) sendError(c *Client, code, message string) {
	h.sendTo(c, ErrorMessage{
		Type:      TypeError,
		Message:   message,
		Code:      code,
		Timestamp: h.now().UnixMilli(),
	})
}

// HandleInbound validates one client message and relays it to the rest of
// the client's room. Problems are reported to the sender only. Messages from
// a client that has already left are dropped.
func (h *Hub) HandleInbound(c *Client, raw []byte) {
	if c.State() != StateJoined {
		return
	}
	if !h.limiter.Allow(c.id) {
		h.stats.RecordRateLimited()
		h.log.Debug().Str("conn_id", c.id).Str("room_id", c.roomID).Msg("Client rate limited")
		h.sendError(c, CodeRateLimitExceeded, "Rate limit exceeded. Please slow down.")
		return
	}

	env, err := ParseEnvelope(raw)
	switch {
	case errors.Is(err, errNotJSON):
		h.sendError(c, CodeParseError, "Failed to parse message")
		return
	case errors.Is(err, errNotObject):
		h.sendError(c, CodeInvalidMessage, "Message must be a JSON object")
		return
	case err != nil:
		h.sendError(c, CodeInvalidMessage, "Message type is required")
		return
	}

	payload, err := env.Stamp(c.id, h.now().UnixMilli())
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", c.id).Msg("Failed to encode relayed message")
		h.sendError(c, CodeInternalError, "Internal server error")
		return
	}

	room := h.registry.Get(c.roomID)
	if room == nil {
		return
	}
	// The membership check and the fan-out share the room lock, so a relay
	// never lands after the sender's user-left.
	relayed := room.withMember(c, func() {
		h.deliverLocked(room, payload, c)
	})
	if !relayed {
		h.log.Debug().Str("conn_id", c.id).Str("room_id", c.roomID).Msg("Dropped message from departed client")
		return
	}
	h.stats.RecordRelay()
}

// safeHandleInbound contains a panic in message handling to the offending
// connection.
func (h *Hub) safeHandleInbound(c *Client, raw []byte) {
	defer func() {
		if recoverPanic(h.log, recover(), "handleInbound") {
			h.sendError(c, CodeInternalError, "Internal server error")
		}
	}()
	h.HandleInbound(c, raw)
}

// errFault wraps a recovered panic value for the fault handler.
func errFault(where string, r any) error {
	return fmt.Errorf("panic in %s: %v", where, r)
}
