package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Server struct {
	cfg       *Config
	hub       *Hub
	log       zerolog.Logger
	srv       *http.Server
	handshake *HandshakeLimiter
	proc      *process.Process
}

func NewServer(cfg *Config, hub *Hub, logger zerolog.Logger, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		cfg:       cfg,
		hub:       hub,
		log:       logger.With().Str("component", "server").Logger(),
		handshake: NewHandshakeLimiter(cfg.HandshakeRatePerIP),
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = proc
	} else {
		s.log.Warn().Err(err).Msg("Process stats unavailable")
	}

	r := chi.NewRouter()
	r.Get("/", s.handleIndex)
	r.Get("/ws", s.handleWS)
	r.Get("/room/*", s.handleWS)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.srv = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

// NewMetricsServer serves /metrics alone on addr, for scraping from an
// internal port.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run starts the server's background housekeeping until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	s.handshake.Run(ctx)
}

// Serve accepts connections on ln until Shutdown. The listener is opened by
// the caller so a bind failure surfaces before anything else starts.
func (s *Server) Serve(ln net.Listener) error {
	var err error
	if s.cfg.TLSEnabled() {
		s.srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS13}
		s.log.Info().Str("cert", s.cfg.TLSCert).Msg("TLS enabled")
		err = s.srv.ServeTLS(ln, s.cfg.TLSCert, s.cfg.TLSKey)
	} else {
		err = s.srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleIndex upgrades when a WebSocket client connects to / with ?room=,
// and serves the landing page otherwise.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWS(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	if s.hub.ShuttingDown() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	if !s.handshake.Allow(ip) {
		s.hub.stats.RecordRejectedJoin("rate_limited")
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	roomID, roomErr := ResolveRoomID(r.URL.Path, r.URL.Query())
	if roomErr == nil {
		if err := s.hub.Admit(roomID); err != nil {
			label := "room_full"
			if errors.Is(err, ErrMaxRooms) {
				label = "max_rooms"
			}
			s.hub.stats.RecordRejectedJoin(label)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("ip", ip).Msg("WebSocket upgrade failed")
		return
	}

	if roomErr != nil {
		reason, label := "Invalid room ID", "invalid_room"
		if errors.Is(roomErr, ErrMissingRoomID) {
			reason, label = "Room ID required", "missing_room"
		}
		s.hub.stats.RecordRejectedJoin(label)
		s.log.Info().Err(roomErr).Str("ip", ip).Msg("Join rejected")
		rejectConn(conn, CloseRejectedJoin, reason)
		return
	}

	client := NewClient(s.hub, conn, roomID, ip, s.cfg.SendBufferSize)
	s.hub.Join(client)

	go client.WritePump()
	go client.ReadPump()
}

// rejectConn sends a close frame and drops a connection that never joined.
func rejectConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
	_ = conn.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if s.hub.ShuttingDown() {
		status, code = "shutting_down", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":      status,
		"uptime":      int64(s.hub.stats.Uptime().Seconds()),
		"rooms":       s.hub.RoomCount(),
		"connections": s.hub.ConnectionCount(),
	})
}

type statsResponse struct {
	Rooms          int    `json:"rooms"`
	Connections    int    `json:"connections"`
	UptimeSeconds  int64  `json:"uptimeSeconds"`
	MemoryRSSBytes uint64 `json:"memoryRssBytes,omitempty"`
	StatsSnapshot
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Rooms:         s.hub.RoomCount(),
		Connections:   s.hub.ConnectionCount(),
		UptimeSeconds: int64(s.hub.stats.Uptime().Seconds()),
		StatsSnapshot: s.hub.stats.Snapshot(),
	}
	if s.proc != nil {
		if mem, err := s.proc.MemoryInfo(); err == nil {
			resp.MemoryRSSBytes = mem.RSS
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
