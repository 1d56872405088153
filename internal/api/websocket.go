package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/telegate/telegate/internal/auth"
	"github.com/telegate/telegate/internal/device"
	"github.com/telegate/telegate/internal/infrastructure/config"
	"github.com/telegate/telegate/internal/infrastructure/logging"
	"github.com/telegate/telegate/internal/telemetry"
)

// WebSocket message types.
const (
	WSTypeReady        = "ready"
	WSTypePing         = "ping"
	WSTypePong         = "pong"
	WSTypeSubscribe    = "subscribe"
	WSTypeSubscribed   = "subscribed"
	WSTypeUnsubscribe  = "unsubscribe"
	WSTypeUnsubscribed = "unsubscribed"
	WSTypeTelemetry    = "telemetry"
	WSTypeError        = "error"
)

// Error strings sent to clients.
const (
	wsErrUnauthorized    = "Unauthorized"
	wsErrForbidden       = "Forbidden"
	wsErrBadMessage      = "Bad message"
	wsErrUnknownType     = "Unknown message type"
	wsErrDeviceRequired  = "deviceId required"
	defaultSendBufferLen = 256
	accessCheckTimeout   = 5 * time.Second
)

// wsClientMessage is a control frame from the client.
type wsClientMessage struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
}

// wsFrame is a frame sent to the client.
type wsFrame struct {
	Type       string         `json:"type"`
	DeviceID   string         `json:"deviceId,omitempty"`
	IMEI       string         `json:"imei,omitempty"`
	Payload    device.Payload `json:"payload,omitempty"`
	ReceivedAt string         `json:"receivedAt,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Hub tracks connected WebSocket clients and routes telemetry events to
// device subscribers.
//
// One mutex guards both the client set and the reverse index; every
// mutation updates both sides atomically, so a device entry never points
// at an unregistered client and a registered client's subscriptions are
// always reflected in the index. No network I/O happens under the lock.
type Hub struct {
	cfg    config.WebSocketConfig
	access AccessChecker
	logger *logging.Logger

	mu                sync.Mutex
	clients           map[*WSClient]struct{}
	deviceSubscribers map[string]map[*WSClient]struct{}
}

// WSClient represents a connected WebSocket client.
// The subscriptions set is guarded by the hub mutex, not a client mutex.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	userID        string
	subscriptions map[string]struct{}
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, access AccessChecker, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:               cfg,
		access:            access,
		logger:            logger,
		clients:           make(map[*WSClient]struct{}),
		deviceSubscribers: make(map[string]map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "user_id", client.userID, "clients", h.ClientCount())
}

// Unregister removes a client from the hub and from every reverse-index
// entry. Only the goroutine that successfully removes the client from the
// set closes the send channel, so teardown is idempotent even when the
// read pump and shutdown race.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	if existed {
		delete(h.clients, client)
		h.removeFromIndexLocked(client)
	}
	h.mu.Unlock()

	if existed {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "user_id", client.userID, "clients", h.ClientCount())
	}
}

// Subscribe adds a device subscription for a client. Idempotent.
// Returns false if the client is no longer registered.
func (h *Hub) Subscribe(client *WSClient, deviceID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return false
	}

	client.subscriptions[deviceID] = struct{}{}
	subscribers, ok := h.deviceSubscribers[deviceID]
	if !ok {
		subscribers = make(map[*WSClient]struct{})
		h.deviceSubscribers[deviceID] = subscribers
	}
	subscribers[client] = struct{}{}
	return true
}

// Unsubscribe removes a device subscription for a client. Idempotent.
func (h *Hub) Unsubscribe(client *WSClient, deviceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(client.subscriptions, deviceID)
	if subscribers, ok := h.deviceSubscribers[deviceID]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.deviceSubscribers, deviceID)
		}
	}
}

// DispatchEvent routes a telemetry event to all clients subscribed to its
// device. Runs on the ingestion goroutine: subscribers are snapshotted
// under the lock and sends are non-blocking, so a slow client drops frames
// rather than stalling ingestion. Authorization was checked at subscribe
// time and is not re-evaluated per event.
func (h *Hub) DispatchEvent(evt telemetry.Event) {
	frame := wsFrame{
		Type:       WSTypeTelemetry,
		DeviceID:   evt.DeviceID,
		IMEI:       evt.IMEI,
		Payload:    evt.Payload,
		ReceivedAt: evt.ReceivedAt.UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal telemetry frame", "error", err)
		return
	}

	h.mu.Lock()
	subscribers := h.deviceSubscribers[evt.DeviceID]
	snapshot := make([]*WSClient, 0, len(subscribers))
	for client := range subscribers {
		snapshot = append(snapshot, client)
	}
	h.mu.Unlock()

	for _, client := range snapshot {
		client.trySend(data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// SubscriberCount returns the number of clients subscribed to a device.
func (h *Hub) SubscriberCount(deviceID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.deviceSubscribers[deviceID])
}

// removeFromIndexLocked strips a client from every reverse-index entry.
// Caller must hold h.mu.
func (h *Hub) removeFromIndexLocked(client *WSClient) {
	for deviceID := range client.subscriptions {
		if subscribers, ok := h.deviceSubscribers[deviceID]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.deviceSubscribers, deviceID)
			}
		}
	}
	client.subscriptions = make(map[string]struct{})
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		h.removeFromIndexLocked(client)
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the HTTP connection and authenticates the client.
//
// Authentication is a JWT in the token query parameter, signed with the
// shared secret. A missing or invalid token gets a single error frame and
// the connection is closed without reading anything else.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	claims, err := auth.ParseToken(r.URL.Query().Get("token"), s.secCfg.JWT.Secret)
	if err != nil {
		s.logger.Debug("websocket auth rejected", "error", err)
		//nolint:errcheck // Best-effort rejection frame before close
		conn.WriteJSON(wsFrame{Type: WSTypeError, Error: wsErrUnauthorized})
		conn.Close()
		return
	}

	bufSize := s.wsCfg.SendBufferSize
	if bufSize <= 0 {
		bufSize = defaultSendBufferLen
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, bufSize),
		userID:        claims.Subject,
		subscriptions: make(map[string]struct{}),
	}

	s.hub.Register(client)
	client.sendFrame(wsFrame{Type: WSTypeReady})

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if browser doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
// Protocol errors are reported with an error frame; the connection
// stays open.
func (c *WSClient) handleMessage(data []byte) {
	var msg wsClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(wsErrBadMessage)
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.sendFrame(wsFrame{Type: WSTypePong})
	case WSTypeSubscribe:
		c.handleSubscribe(msg.DeviceID)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(msg.DeviceID)
	default:
		c.sendError(wsErrUnknownType)
	}
}

// handleSubscribe authorizes and registers a device subscription.
// Approval is idempotent; denial leaves hub state untouched.
func (c *WSClient) handleSubscribe(deviceID string) {
	if deviceID == "" {
		c.sendError(wsErrDeviceRequired)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), accessCheckTimeout)
	defer cancel()

	allowed, err := c.hub.access.CanAccessDevice(ctx, c.userID, deviceID)
	if err != nil {
		c.hub.logger.Error("access check failed",
			"user_id", c.userID,
			"device_id", deviceID,
			"error", err,
		)
		c.sendError(wsErrForbidden)
		return
	}
	if !allowed {
		c.sendError(wsErrForbidden)
		return
	}

	if c.hub.Subscribe(c, deviceID) {
		c.sendFrame(wsFrame{Type: WSTypeSubscribed, DeviceID: deviceID})
	}
}

// handleUnsubscribe removes a device subscription.
func (c *WSClient) handleUnsubscribe(deviceID string) {
	if deviceID == "" {
		c.sendError(wsErrDeviceRequired)
		return
	}

	c.hub.Unsubscribe(c, deviceID)
	c.sendFrame(wsFrame{Type: WSTypeUnsubscribed, DeviceID: deviceID})
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during dispatch)
// and full buffers (slow client).
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// sendFrame marshals and queues a frame for the client.
func (c *WSClient) sendFrame(frame wsFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError queues an error frame for the client.
func (c *WSClient) sendError(message string) {
	c.sendFrame(wsFrame{Type: WSTypeError, Error: message})
}
