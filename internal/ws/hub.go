package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relaychat/server/internal/bus"
	"github.com/relaychat/server/internal/messageservice"
	"github.com/relaychat/server/internal/roomregistry"
	"github.com/relaychat/server/internal/router"
	"github.com/relaychat/server/internal/userregistry"
)

// Config bounds the socket fleet's behavior (spec.md §4.10/§5), a subset
// of internal/config.ServerConfig threaded through at construction.
type Config struct {
	MaxFrameBytes    int64
	HeartbeatPeriod  time.Duration
	HeartbeatTimeout time.Duration
	DrainTimeout     time.Duration
}

// Hub is the concrete C10: owns the socket fleet, dispatches inbound
// frames to C11, and subscribes to C6 channels to fan published frames
// out to whichever local sockets currently hold that room.
type Hub struct {
	mu     sync.RWMutex
	fleet  map[string]*Connection            // connectionId -> Connection
	byRoom map[string]map[string]*Connection // roomId -> connectionId -> Connection

	router *router.Router
	bus    bus.Bus
	users  *userregistry.Registry
	rooms  *roomregistry.Registry

	roomUnsub   map[string]func()
	globalUnsub func()

	maxFrameBytes    int64
	heartbeatPeriod  time.Duration
	heartbeatTimeout time.Duration
	drainTimeout     time.Duration

	logger *zap.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	shutdownCh chan struct{}
	once       sync.Once
	wg         sync.WaitGroup
}

// New builds a Hub. The caller (cmd/server) is responsible for wiring r,
// b, users, and rooms from the same construction it passes to C9/C8/C7.
func New(cfg Config, r *router.Router, b bus.Bus, users *userregistry.Registry, rooms *roomregistry.Registry, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		fleet:            make(map[string]*Connection),
		byRoom:           make(map[string]map[string]*Connection),
		router:           r,
		bus:              b,
		users:            users,
		rooms:            rooms,
		roomUnsub:        make(map[string]func()),
		maxFrameBytes:    cfg.MaxFrameBytes,
		heartbeatPeriod:  cfg.HeartbeatPeriod,
		heartbeatTimeout: cfg.HeartbeatTimeout,
		drainTimeout:     cfg.DrainTimeout,
		logger:           logger,
		ctx:              ctx,
		cancel:           cancel,
		shutdownCh:       make(chan struct{}),
	}
}

// Run subscribes to the global room-created channel and starts the
// heartbeat loop. It returns immediately; call Shutdown to stop.
func (h *Hub) Run() {
	unsub, err := h.bus.Subscribe(h.ctx, bus.RoomCreated, h.handleRoomCreated)
	if err != nil {
		h.logger.Warn("hub: failed to subscribe to room-created channel", zap.Error(err))
	} else {
		h.globalUnsub = unsub
	}

	go h.heartbeatLoop()
}

// Accept registers a freshly upgraded socket, sends the welcome frame,
// and starts its reader/writer goroutines (spec.md §4.10: "On accept:
// allocate connectionId, stamp remoteAddr, insert connection record,
// send SYSTEM welcome frame, schedule heartbeat, attach per-socket reader").
func (h *Hub) Accept(conn *websocket.Conn, remoteAddr string) *Connection {
	id := uuid.New().String()
	c := newConnection(h, conn, id, remoteAddr, h.logger)

	h.mu.Lock()
	h.fleet[id] = c
	h.mu.Unlock()

	h.wg.Add(1)
	c.Send(router.NewSystemFrame("welcome"))

	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go c.readPump()

	h.logger.Info("hub: connection accepted", zap.String("connection_id", id), zap.String("remote_addr", remoteAddr))
	return c
}

// unregisterConn removes a closed connection from the fleet and, if it
// was authenticated and in a room, runs the same leave-room and
// disconnect bookkeeping C8/C7 expect on socket close (spec.md §4.10).
func (h *Hub) unregisterConn(c *Connection) {
	h.mu.Lock()
	if _, ok := h.fleet[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.fleet, c.id)
	h.mu.Unlock()

	if c.state.RoomID != "" {
		h.updateRoomMembership(c, c.state.RoomID, "")
	}
	if c.state.Authenticated {
		// Disconnect's LeaveAll walks the user's active memberships and
		// calls Leave on each, which also publishes user_left — no need
		// to call rooms.Leave directly here too.
		if err := h.users.Disconnect(h.ctx, c.id, h.rooms); err != nil {
			h.logger.Warn("hub: failed to disconnect user", zap.Error(err))
		}
	}

	c.closeSend()
	h.logger.Info("hub: connection closed", zap.String("connection_id", c.id))
}

// updateRoomMembership keeps byRoom in sync with a connection's current
// room and subscribes/unsubscribes the room's channels as the local
// member count for that room crosses 0 (spec.md §4.10: "Subscribes to
// ... each room's channels while any local connection holds it;
// unsubscribes when the last local member leaves").
func (h *Hub) updateRoomMembership(c *Connection, oldRoomID, newRoomID string) {
	h.mu.Lock()
	if oldRoomID != "" {
		if conns, ok := h.byRoom[oldRoomID]; ok {
			delete(conns, c.id)
			if len(conns) == 0 {
				delete(h.byRoom, oldRoomID)
			}
		}
	}
	if newRoomID != "" {
		if h.byRoom[newRoomID] == nil {
			h.byRoom[newRoomID] = make(map[string]*Connection)
		}
		h.byRoom[newRoomID][c.id] = c
	}
	emptyOld := oldRoomID != ""
	if emptyOld {
		_, stillPresent := h.byRoom[oldRoomID]
		emptyOld = !stillPresent
	}
	newlyCreated := newRoomID != "" && len(h.byRoom[newRoomID]) == 1
	h.mu.Unlock()

	if emptyOld {
		h.unsubscribeRoom(oldRoomID)
	}
	if newlyCreated {
		h.subscribeRoom(newRoomID)
	}
}

func (h *Hub) subscribeRoom(roomID string) {
	unsubMessages, err := h.bus.Subscribe(h.ctx, bus.RoomMessagesChannel(roomID), func(payload []byte) {
		h.handleRoomMessage(roomID, payload)
	})
	if err != nil {
		h.logger.Warn("hub: failed to subscribe to room messages", zap.String("room_id", roomID), zap.Error(err))
	}
	unsubEvents, err := h.bus.Subscribe(h.ctx, bus.RoomEventsChannel(roomID), func(payload []byte) {
		h.handleRoomEvent(roomID, payload)
	})
	if err != nil {
		h.logger.Warn("hub: failed to subscribe to room events", zap.String("room_id", roomID), zap.Error(err))
	}

	h.mu.Lock()
	h.roomUnsub[roomID] = func() {
		if unsubMessages != nil {
			unsubMessages()
		}
		if unsubEvents != nil {
			unsubEvents()
		}
	}
	h.mu.Unlock()
}

func (h *Hub) unsubscribeRoom(roomID string) {
	h.mu.Lock()
	unsub := h.roomUnsub[roomID]
	delete(h.roomUnsub, roomID)
	h.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (h *Hub) localConnectionsInRoom(roomID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.byRoom[roomID]
	out := make([]*Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// handleRoomMessage fans a published message out to every local
// connection in the room except the one that sent it (spec.md §8's
// fan-out invariant: "exactly one message frame to every other active
// member's socket").
func (h *Hub) handleRoomMessage(roomID string, payload []byte) {
	var envelope messageservice.MessageEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		h.logger.Warn("hub: failed to unmarshal message envelope", zap.Error(err))
		return
	}

	frame := router.NewMessageFrame(envelope.Message)
	for _, c := range h.localConnectionsInRoom(roomID) {
		if c.id == envelope.SenderConnectionID {
			continue
		}
		c.Send(frame)
	}
}

// roomEventEnvelope reads just the discriminator every room-events
// payload carries, before unmarshaling into its concrete type.
type roomEventEnvelope struct {
	Type string `json:"type"`
}

func (h *Hub) handleRoomEvent(roomID string, payload []byte) {
	var tag roomEventEnvelope
	if err := json.Unmarshal(payload, &tag); err != nil {
		h.logger.Warn("hub: failed to unmarshal room event tag", zap.Error(err))
		return
	}

	switch tag.Type {
	case string(roomregistry.EventUserJoined):
		var ev roomregistry.UserJoinedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return
		}
		h.broadcastRoom(roomID, router.UserJoinedFrame{
			User:        router.UserView{UserID: ev.UserID, Username: ev.Username},
			MemberCount: ev.MemberCount,
		}.WithTimestamp())
	case string(roomregistry.EventUserLeft):
		var ev roomregistry.UserLeftEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return
		}
		h.broadcastRoom(roomID, router.UserLeftFrame{
			User:        router.UserView{UserID: ev.UserID, Username: ev.Username},
			MemberCount: ev.MemberCount,
		}.WithTimestamp())
	case string(roomregistry.EventTypingUpdate):
		var ev roomregistry.TypingUpdateEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return
		}
		h.broadcastRoom(roomID, router.TypingUpdateFrame{TypingUsers: ev.TypingUsers}.WithTimestamp())
	case string(messageservice.EventMessageEdited):
		var ev messageservice.MessageEditedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return
		}
		h.broadcastRoom(roomID, router.NewMessageFrame(ev.Message))
	case string(messageservice.EventMessageDeleted):
		// No dedicated wire frame is named for message_deleted in
		// spec.md §6; surface it as a system notice to the room.
		h.broadcastRoom(roomID, router.NewSystemFrame("a message was deleted"))
	}
}

func (h *Hub) broadcastRoom(roomID string, frame interface{}) {
	for _, c := range h.localConnectionsInRoom(roomID) {
		c.Send(frame)
	}
}

// handleRoomCreated notifies every connected socket (whatever room it
// currently holds, if any) that a new room now exists, so a client
// watching the lobby can refresh its room list without polling the
// `rooms` command (spec.md §4.6: room creation is announced globally).
func (h *Hub) handleRoomCreated(payload []byte) {
	var ev roomregistry.RoomCreatedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		h.logger.Warn("hub: failed to unmarshal room_created event", zap.Error(err))
		return
	}

	frame := router.NewSystemFrame("new room available: " + ev.Name)

	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.fleet))
	for _, c := range h.fleet {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Send(frame)
	}
}

// heartbeatLoop pings every connection on cfg.HeartbeatPeriod and
// terminates any connection that hasn't responded since the previous
// round (spec.md §5).
func (h *Hub) heartbeatLoop() {
	ticker := time.NewTicker(h.heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.mu.RLock()
			conns := make([]*Connection, 0, len(h.fleet))
			for _, c := range h.fleet {
				conns = append(conns, c)
			}
			h.mu.RUnlock()

			for _, c := range conns {
				if !c.checkAliveAndReset() {
					h.logger.Info("heartbeat: connection unresponsive, terminating", zap.String("connection_id", c.id))
					c.conn.Close()
					continue
				}
				c.requestPing()
			}
		case <-h.ctx.Done():
			return
		}
	}
}

// Shutdown implements the graceful-shutdown sequence's socket half
// (spec.md §5): send close(1001) to every connection, wait up to
// drainTimeout for the fleet to drain, then return.
func (h *Hub) Shutdown() {
	h.once.Do(func() {
		close(h.shutdownCh)
	})

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(h.drainTimeout):
		h.logger.Warn("hub: drain timeout elapsed, forcing remaining connections closed")
		h.mu.RLock()
		for _, c := range h.fleet {
			c.conn.Close()
		}
		h.mu.RUnlock()
	}

	h.cancel()
	if h.globalUnsub != nil {
		h.globalUnsub()
	}
}

// Stats reports fleet-wide counters for the /metrics surface.
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]int{
		"connections": len(h.fleet),
		"rooms":       len(h.byRoom),
	}
}
