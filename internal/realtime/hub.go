package realtime

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/revaristo12/chatliver1404/internal/models"
	"github.com/revaristo12/chatliver1404/pkg/logger"
	"github.com/revaristo12/chatliver1404/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 16 // 64 KiB

	defaultSendBuffer = 64

	resolveTimeout = 5 * time.Second
)

// Event is a JSON payload delivered to room subscribers.
type Event struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// Presence describes a subscriber arriving or leaving a room.
type Presence struct {
	Event    string `json:"event"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Typing describes a typing indicator.
type Typing struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Typing   bool   `json:"typing"`
}

type controlFrame struct {
	Action  string `json:"action"`
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
	Typing  bool   `json:"typing"`
}

// MembershipResolver answers whether a user belongs to a room. The room
// service satisfies it through its Role lookup.
type MembershipResolver interface {
	Role(ctx context.Context, roomID, userID string) (models.RoomRole, error)
}

// MessageCreator persists an inbound chat frame. The message service
// satisfies it and fans the committed row back out through the hub.
type MessageCreator interface {
	CreateFromClient(ctx context.Context, roomID, userID, content string) (*models.Message, error)
}

// HubOption customises Hub behaviour.
type HubOption func(*Hub)

// WithSendBuffer sets the per-connection outbound queue size.
func WithSendBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.sendBuffer = size
		}
	}
}

// Hub fans out room events to connected subscribers. Join requests from
// non-members are ignored without a reply; a subscriber whose queue stays
// full is disconnected rather than allowed to stall the room.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*connection]struct{}
	closed   bool
	resolver MembershipResolver
	creator  MessageCreator

	sendBuffer int
	upgrader   websocket.Upgrader
	log        *zap.Logger
}

// NewHub constructs a room broadcaster.
func NewHub(resolver MembershipResolver, opts ...HubOption) *Hub {
	hub := &Hub{
		rooms:      make(map[string]map[*connection]struct{}),
		resolver:   resolver,
		sendBuffer: defaultSendBuffer,
		log:        logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
	}
	for _, opt := range opts {
		opt(hub)
	}
	return hub
}

// AttachMessageCreator wires the service that persists inbound message
// frames. Attached after construction because the message service itself
// broadcasts through the hub.
func (h *Hub) AttachMessageCreator(creator MessageCreator) {
	h.creator = creator
}

// Serve upgrades the HTTP connection to a WebSocket and runs its read loop
// until the client disconnects.
func (h *Hub) Serve(userID, username string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &connection{
		hub:      h,
		socket:   conn,
		userID:   userID,
		username: username,
		rooms:    make(map[string]struct{}),
		send:     make(chan Event, h.sendBuffer),
	}

	go client.writeLoop()
	client.readLoop()
}

// BroadcastMessage fans a committed message out to every subscriber of its
// room, the author included.
func (h *Hub) BroadcastMessage(roomID string, message *models.Message) {
	h.broadcast(roomID, Event{Type: "message", RoomID: roomID, Data: message}, nil)
	metrics.BroadcastEvents.WithLabelValues("message").Inc()
}

// broadcast delivers an event to every subscriber of a room except the one
// given as skip. The write lock keeps concurrent fan-outs from interleaving,
// so every subscriber of a room observes events in the same order.
func (h *Hub) broadcast(roomID string, event Event, skip *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[roomID] {
		if client == skip {
			continue
		}
		h.enqueue(client, event)
	}
}

func (h *Hub) enqueue(client *connection, event Event) {
	if client.trySend(event) {
		return
	}
	h.log.Warn("dropping slow subscriber",
		zap.String("user", client.userID))
	metrics.DroppedSubscribers.Inc()
	go client.close()
}

// join subscribes a connection to a room after a membership check.
// Non-members get no subscription and no reply.
func (h *Hub) join(client *connection, roomID string) {
	if roomID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	role, err := h.resolver.Role(ctx, roomID, client.userID)
	if err != nil {
		h.log.Warn("membership check failed",
			zap.String("room", roomID),
			zap.String("user", client.userID),
			zap.Error(err))
		return
	}
	if !role.Valid() {
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if _, exists := client.rooms[roomID]; exists {
		h.mu.Unlock()
		return
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*connection]struct{})
	}
	h.rooms[roomID][client] = struct{}{}
	client.rooms[roomID] = struct{}{}
	h.mu.Unlock()

	metrics.RoomSubscribers.Inc()
	metrics.BroadcastEvents.WithLabelValues("presence").Inc()

	// Presence goes to everyone in the room, the joiner included.
	h.broadcast(roomID, Event{
		Type:   "presence",
		RoomID: roomID,
		Data:   Presence{Event: "joined", UserID: client.userID, Username: client.username},
	}, nil)
}

// inbound persists a message frame through the message service; the service
// broadcasts the committed row back through the hub. Frames from
// non-subscribers and frames the service rejects are dropped without a reply.
func (h *Hub) inbound(client *connection, roomID, content string) {
	if h.creator == nil || roomID == "" {
		return
	}

	h.mu.RLock()
	_, subscribed := client.rooms[roomID]
	h.mu.RUnlock()
	if !subscribed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	if _, err := h.creator.CreateFromClient(ctx, roomID, client.userID, content); err != nil {
		h.log.Debug("inbound message rejected",
			zap.String("room", roomID),
			zap.String("user", client.userID),
			zap.Error(err))
	}
}

// leave unsubscribes a connection from a room and announces the departure.
func (h *Hub) leave(client *connection, roomID string) {
	h.mu.Lock()
	if _, exists := client.rooms[roomID]; !exists {
		h.mu.Unlock()
		return
	}
	h.removeLocked(client, roomID)
	h.mu.Unlock()

	metrics.RoomSubscribers.Dec()
	metrics.BroadcastEvents.WithLabelValues("presence").Inc()

	h.broadcast(roomID, Event{
		Type:   "presence",
		RoomID: roomID,
		Data:   Presence{Event: "left", UserID: client.userID, Username: client.username},
	}, nil)
}

// typing relays a typing indicator to everyone in the room except the
// sender. Only subscribed rooms relay.
func (h *Hub) typing(client *connection, roomID string, active bool) {
	h.mu.RLock()
	_, subscribed := client.rooms[roomID]
	h.mu.RUnlock()
	if !subscribed {
		return
	}

	metrics.BroadcastEvents.WithLabelValues("typing").Inc()
	h.broadcast(roomID, Event{
		Type:   "typing",
		RoomID: roomID,
		Data:   Typing{UserID: client.userID, Username: client.username, Typing: active},
	}, client)
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	left := make([]string, 0, len(client.rooms))
	for roomID := range client.rooms {
		h.removeLocked(client, roomID)
		left = append(left, roomID)
	}
	h.mu.Unlock()

	for _, roomID := range left {
		metrics.RoomSubscribers.Dec()
		h.broadcast(roomID, Event{
			Type:   "presence",
			RoomID: roomID,
			Data:   Presence{Event: "left", UserID: client.userID, Username: client.username},
		}, nil)
	}
}

func (h *Hub) removeLocked(client *connection, roomID string) {
	delete(client.rooms, roomID)
	subscribers := h.rooms[roomID]
	delete(subscribers, client)
	if len(subscribers) == 0 {
		delete(h.rooms, roomID)
	}
}

// Shutdown disconnects every subscriber and refuses new subscriptions.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	clients := make(map[*connection]struct{})
	for _, subscribers := range h.rooms {
		for client := range subscribers {
			clients[client] = struct{}{}
		}
	}
	h.mu.Unlock()

	for client := range clients {
		client.close()
	}
}

type connection struct {
	hub      *Hub
	socket   *websocket.Conn
	userID   string
	username string

	// rooms is guarded by hub.mu.
	rooms map[string]struct{}

	// sendMu guards send against enqueue racing close; sealed marks the
	// channel closed.
	sendMu sync.Mutex
	sealed bool
	send   chan Event

	once sync.Once
}

// trySend queues an event without blocking. A full queue returns false;
// sealed connections swallow the event.
func (c *connection) trySend(event Event) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sealed {
		return true
	}
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close",
					zap.String("user", c.userID),
					zap.Error(err))
			}
			break
		}
		if len(payload) == 0 {
			continue
		}

		var frame controlFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.hub.log.Debug("invalid control payload",
				zap.String("user", c.userID),
				zap.Error(err))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(frame.Action)) {
		case "join":
			c.hub.join(c, frame.RoomID)
		case "leave":
			c.hub.leave(c, frame.RoomID)
		case "message":
			c.hub.inbound(c, frame.RoomID, frame.Content)
		case "typing":
			c.hub.typing(c, frame.RoomID, frame.Typing)
		case "ping":
			c.hub.enqueue(c, Event{Type: "pong"})
		default:
		}
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)

		c.sendMu.Lock()
		c.sealed = true
		close(c.send)
		c.sendMu.Unlock()

		_ = c.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
