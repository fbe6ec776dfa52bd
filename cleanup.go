package main

import (
	"context"
	"encoding/json"
	"time"
)

// Run sweeps expired rooms every CleanupInterval until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweepSafely()
		}
	}
}

// sweepSafely escalates a panic in the sweep to the fault handler instead
// of killing the process mid-sweep.
func (h *Hub) sweepSafely() {
	defer func() {
		r := recover()
		if recoverPanic(h.log, r, "cleanup") {
			h.fault(errFault("cleanup", r))
		}
	}()
	h.SweepExpired()
}

// SweepExpired closes every room past its deadline. Members are notified,
// closed with CloseRoomExpired and then taken through the normal disconnect
// path, which deletes the room once it is empty. It returns the number of
// rooms swept.
func (h *Hub) SweepExpired() int {
	now := h.now()
	ids := h.registry.ExpiredRooms(now)
	if len(ids) == 0 {
		return 0
	}

	notice, err := json.Marshal(NoticeMessage{
		Type:      TypeRoomExpired,
		Message:   "Room has expired",
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode room-expired notice")
	}

	for _, id := range ids {
		room := h.registry.Get(id)
		if room == nil {
			continue
		}
		members := room.closeMembers(func(c *Client) {
			h.closeWithNotice(c, notice, CloseRoomExpired, "Room expired")
		})
		for _, c := range members {
			h.Disconnect(c, CauseExpired)
		}

		h.stats.RecordRoomExpired()
		h.log.Info().
			Str("room_id", id).
			Int("members_closed", len(members)).
			Msg("Room expired")
	}
	return len(ids)
}
