// Package ws implements C10 ConnectionHub: the socket fleet, per-socket
// read/write goroutines, heartbeat, and room/global bus fan-out to local
// sockets. Generalized from the teacher's Hub/Client
// (internal/ws/hub.go, internal/ws/client.go) — same register/unregister
// lifecycle and reader/writer goroutine pair — retargeted at the typed
// Router (C11) instead of an inline per-client switch, and at the single-
// room-per-connection model instead of the teacher's multi-room
// subscription set plus DM side channel (Non-goals).
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relaychat/server/internal/router"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

// Connection is C10's per-socket record (spec.md §4's Connection):
// connectionId, remoteAddr, the live socket, and the router state that
// connection's own inbound loop exclusively owns.
type Connection struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	ping   chan struct{}
	logger *zap.Logger

	id    string
	state *router.ConnState

	mu     sync.Mutex
	alive  bool
	closed bool
}

func newConnection(hub *Hub, conn *websocket.Conn, id, remoteAddr string, logger *zap.Logger) *Connection {
	return &Connection{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		ping:   make(chan struct{}, 1),
		logger: logger,
		id:     id,
		state:  &router.ConnState{ConnectionID: id, RemoteAddr: remoteAddr},
		alive:  true,
	}
}

func (c *Connection) markAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}

// checkAliveAndReset reports whether a pong (or any read) was observed
// since the previous heartbeat round, then clears the flag for the next
// round (spec.md §5: "a connection flagged not-alive since the previous
// round is terminated; clients that respond to ping reset the flag").
func (c *Connection) checkAliveAndReset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.alive
	c.alive = false
	return was
}

// Send implements router.Sender: marshal v and enqueue it on this
// connection's write buffer. writePump is the connection's sole writer,
// so this never touches the socket directly (spec.md §5's per-socket
// write-lock discipline). A full buffer means a slow reader; the frame
// is dropped and logged rather than blocking the caller. The enqueue and
// closeSend's close both run under mu, so a concurrent fan-out callback
// racing a readPump exit can never hit a send on a closed channel.
func (c *Connection) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("connection: send buffer full, dropping frame", zap.String("connection_id", c.id))
	}
	return nil
}

func (c *Connection) requestPing() {
	select {
	case c.ping <- struct{}{}:
	default:
	}
}

func (c *Connection) readPump() {
	defer c.hub.unregisterConn(c)

	c.conn.SetReadLimit(c.hub.maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.heartbeatTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.markAlive()
		c.conn.SetReadDeadline(time.Now().Add(c.hub.heartbeatTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("connection: read error", zap.String("connection_id", c.id), zap.Error(err))
			}
			return
		}
		c.markAlive()

		prevRoom := c.state.RoomID
		c.hub.router.Dispatch(c.hub.ctx, c.state, c, data)
		if c.state.RoomID != prevRoom {
			c.hub.updateRoomMembership(c, prevRoom, c.state.RoomID)
		}
	}
}

func (c *Connection) writePump() {
	defer c.conn.Close()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.ping:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.hub.shutdownCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Connection) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
