package main

import (
	"encoding/json"
	"errors"
)

// Server-originated message types.
const (
	TypeConnected      = "connected"
	TypeUserJoined     = "user-joined"
	TypeUserLeft       = "user-left"
	TypeRoomExpired    = "room-expired"
	TypeServerShutdown = "server-shutdown"
	TypeError          = "error"
)

// Error codes carried by "error" messages.
const (
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeInvalidMessage    = "INVALID_MESSAGE"
	CodeParseError        = "PARSE_ERROR"
	CodeInternalError     = "INTERNAL_ERROR"
)

var (
	errNotJSON     = errors.New("payload is not valid JSON")
	errNotObject   = errors.New("payload is not a JSON object")
	errMissingType = errors.New("message type is required")
)

// Envelope is an inbound client message. Only "type" is interpreted; every
// other field is carried through untouched.
type Envelope struct {
	Type   string
	fields map[string]json.RawMessage
}

// ParseEnvelope decodes raw into an Envelope. It returns errNotJSON for
// undecodable input, errNotObject for JSON that is not an object and
// errMissingType when "type" is absent, empty or not a string.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	if !json.Valid(raw) {
		return nil, errNotJSON
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, errNotObject
	}

	var typ string
	if rawType, ok := fields["type"]; ok {
		_ = json.Unmarshal(rawType, &typ)
	}
	if typ == "" {
		return nil, errMissingType
	}
	return &Envelope{Type: typ, fields: fields}, nil
}

// Stamp overwrites the sender id and timestamp (epoch ms) and returns the
// serialized message.
func (e *Envelope) Stamp(connID string, timestamp int64) ([]byte, error) {
	id, err := json.Marshal(connID)
	if err != nil {
		return nil, err
	}
	ts, err := json.Marshal(timestamp)
	if err != nil {
		return nil, err
	}
	e.fields["connectionId"] = id
	e.fields["timestamp"] = ts
	return json.Marshal(e.fields)
}

type ConnectedMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	RoomID       string `json:"roomId"`
	UserCount    int    `json:"userCount"`
	Timestamp    int64  `json:"timestamp"`
}

// PresenceMessage is used for both user-joined and user-left.
type PresenceMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	UserCount    int    `json:"userCount"`
	Timestamp    int64  `json:"timestamp"`
}

// NoticeMessage is used for room-expired and server-shutdown.
type NoticeMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type ErrorMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	Timestamp int64  `json:"timestamp"`
}
