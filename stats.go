package main

import (
	"sync/atomic"
	"time"
)

// Stats is the process-wide event aggregator. Counters only grow; they are
// written through the Record methods and read through Snapshot.
type Stats struct {
	startTime time.Time
	metrics   *Metrics

	messagesRelayed     atomic.Int64
	connectionsAccepted atomic.Int64
	disconnections      atomic.Int64
	rateLimited         atomic.Int64
	sendFailures        atomic.Int64
	rejectedJoins       atomic.Int64
	roomsExpired        atomic.Int64
}

// NewStats returns an aggregator. metrics may be nil.
func NewStats(metrics *Metrics) *Stats {
	return &Stats{startTime: time.Now(), metrics: metrics}
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	StartTime           time.Time `json:"startTime"`
	MessagesRelayed     int64     `json:"messagesRelayed"`
	ConnectionsAccepted int64     `json:"connectionsAccepted"`
	Disconnections      int64     `json:"disconnections"`
	RateLimitRejections int64     `json:"rateLimitRejections"`
	SendFailures        int64     `json:"sendFailures"`
	RejectedJoins       int64     `json:"rejectedJoins"`
	RoomsExpired        int64     `json:"roomsExpired"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		StartTime:           s.startTime,
		MessagesRelayed:     s.messagesRelayed.Load(),
		ConnectionsAccepted: s.connectionsAccepted.Load(),
		Disconnections:      s.disconnections.Load(),
		RateLimitRejections: s.rateLimited.Load(),
		SendFailures:        s.sendFailures.Load(),
		RejectedJoins:       s.rejectedJoins.Load(),
		RoomsExpired:        s.roomsExpired.Load(),
	}
}

func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

func (s *Stats) RecordRelay() {
	s.messagesRelayed.Add(1)
	if s.metrics != nil {
		s.metrics.messagesRelayed.Inc()
	}
}

func (s *Stats) RecordConnect() {
	s.connectionsAccepted.Add(1)
	if s.metrics != nil {
		s.metrics.connected()
	}
}

func (s *Stats) RecordDisconnect(cause DisconnectCause, connected time.Duration) {
	s.disconnections.Add(1)
	if s.metrics != nil {
		s.metrics.disconnected(cause.String(), connected)
	}
}

func (s *Stats) RecordRateLimited() {
	s.rateLimited.Add(1)
	if s.metrics != nil {
		s.metrics.rateLimited.Inc()
	}
}

func (s *Stats) RecordSendFailure() {
	s.sendFailures.Add(1)
	if s.metrics != nil {
		s.metrics.sendFailures.Inc()
	}
}

func (s *Stats) RecordRejectedJoin(reason string) {
	s.rejectedJoins.Add(1)
	if s.metrics != nil {
		s.metrics.rejectedJoins.WithLabelValues(reason).Inc()
	}
}

func (s *Stats) RecordRoomExpired() {
	s.roomsExpired.Add(1)
	if s.metrics != nil {
		s.metrics.roomsExpired.Inc()
	}
}
