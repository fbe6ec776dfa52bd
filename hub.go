package main

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Hub ties the room registry, the per-connection rate limiter and the stats
// aggregator together. It has no lock of its own; membership is serialized
// per room inside the registry.
type Hub struct {
	cfg      *Config
	log      zerolog.Logger
	registry *Registry
	limiter  *RateLimiter
	stats    *Stats
	now      func() time.Time

	shuttingDown atomic.Bool

	faultMu sync.Mutex
	onFault func(error)
}

func NewHub(cfg *Config, logger zerolog.Logger, stats *Stats) *Hub {
	return &Hub{
		cfg:      cfg,
		log:      logger.With().Str("component", "hub").Logger(),
		registry: NewRegistry(cfg.RoomTTL),
		limiter:  NewRateLimiter(cfg.RateLimitMessages, cfg.RateLimitWindow),
		stats:    stats,
		now:      time.Now,
	}
}

// setClock replaces the time source of the hub and everything it owns.
func (h *Hub) setClock(now func() time.Time) {
	h.now = now
	h.registry.now = now
	h.limiter.now = now
}

// OnFault installs the handler for unrecovered background faults. main uses
// it to start a graceful shutdown.
func (h *Hub) OnFault(fn func(error)) {
	h.faultMu.Lock()
	h.onFault = fn
	h.faultMu.Unlock()
}

func (h *Hub) fault(err error) {
	h.faultMu.Lock()
	fn := h.onFault
	h.faultMu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (h *Hub) Registry() *Registry { return h.registry }

func (h *Hub) Stats() *Stats { return h.stats }

func (h *Hub) RoomCount() int { return h.registry.RoomCount() }

func (h *Hub) ConnectionCount() int { return h.registry.ConnectionCount() }

func (h *Hub) ShuttingDown() bool { return h.shuttingDown.Load() }

// Shutdown tells every connected client the server is going away, closes
// them and runs their disconnect path. New joins are refused afterwards.
// It returns the number of connections closed.
func (h *Hub) Shutdown() int {
	h.shuttingDown.Store(true)
	notice := h.shutdownNotice()

	var clients []*Client
	for _, room := range h.registry.Rooms() {
		clients = append(clients, room.closeMembers(func(c *Client) {
			h.closeWithNotice(c, notice, CloseShutdown, "Server shutting down")
		})...)
	}
	for _, c := range clients {
		h.Disconnect(c, CauseShutdown)
	}

	h.log.Info().Int("connections_closed", len(clients)).Msg("All connections closed for shutdown")
	return len(clients)
}

func (h *Hub) shutdownNotice() []byte {
	notice, err := json.Marshal(NoticeMessage{
		Type:      TypeServerShutdown,
		Message:   "Server is shutting down",
		Timestamp: h.now().UnixMilli(),
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode shutdown notice")
		return nil
	}
	return notice
}
