package main

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Close codes sent by the relay.
const (
	CloseRejectedJoin = websocket.ClosePolicyViolation
	CloseRoomExpired  = 4000
	CloseShutdown     = websocket.CloseGoingAway
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

// ConnState is a connection's lifecycle state.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateJoined
	StateLeft
	StateExpired
	StateErrored
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateLeft:
		return "left"
	case StateExpired:
		return "expired"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// Terminal reports whether s is one of the end states.
func (s ConnState) Terminal() bool {
	return s == StateLeft || s == StateExpired || s == StateErrored
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	id       string
	roomID   string
	ip       string
	joinedAt time.Time
	send     chan []byte
	state    atomic.Int32

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
	done        chan struct{}

	leaveOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, roomID, ip string, bufferSize int) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		id:     uuid.NewString(),
		roomID: roomID,
		ip:     ip,
		send:   make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) RoomID() string { return c.roomID }

func (c *Client) State() ConnState { return ConnState(c.state.Load()) }

func (c *Client) setState(s ConnState) { c.state.Store(int32(s)) }

// IsOpen reports whether the client still accepts outbound messages.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Send queues payload for the write pump without blocking.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close asks the write pump to flush queued messages, send a close frame
// with code and reason, and drop the connection. Only the first call counts.
func (c *Client) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.done)
}

// CloseWith queues notice as the last message and closes with code and
// reason in one step, so nothing else can be queued in between. It returns
// ErrClientClosed if the client was already closed and ErrSendBufferFull if
// the notice was dropped; the client is closed either way.
func (c *Client) CloseWith(notice []byte, code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}

	var err error
	if notice != nil {
		select {
		case c.send <- notice:
		default:
			err = ErrSendBufferFull
		}
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.done)
	return err
}

// ReadPump feeds inbound frames to the hub and runs the disconnect path when
// the connection ends. It owns message handling for this client, so inbound
// processing and teardown never overlap.
func (c *Client) ReadPump() {
	cause := CauseClosed
	defer func() {
		c.hub.Disconnect(c, cause)
		c.Close(websocket.CloseNormalClosure, "")
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !c.IsOpen() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				cause = CauseClosed
			} else {
				cause = CauseError
				c.hub.log.Debug().Err(err).Str("conn_id", c.id).Str("room_id", c.roomID).Msg("Read error")
			}
			return
		}
		c.hub.safeHandleInbound(c, message)
	}
}

// WritePump is the only writer on the socket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.done:
			c.flush()
			c.mu.Lock()
			code, reason := c.closeCode, c.closeReason
			c.mu.Unlock()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
			return
		}
	}
}

// flush writes whatever is still queued, e.g. a room-expired notice sent
// just before Close.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}
