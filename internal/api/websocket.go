package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/camlink-core/internal/auth"
	"github.com/nerrad567/camlink-core/internal/bridge"
	"github.com/nerrad567/camlink-core/internal/infrastructure/config"
	"github.com/nerrad567/camlink-core/internal/infrastructure/logging"
)

// Message types on the event stream.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	wsSendBufferSize = 256
)

// WSMessage is one frame of the event stream. Events carry the bridge
// channel and the serial number of the camera they concern.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	SN        string `json:"sn,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload selects events by channel and, optionally, by camera.
// An empty SNs list means every camera. Unsubscribing with no channels
// drops the whole subscription.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	SNs      []string `json:"sn,omitempty"`
}

// Hub fans bridge events out to WebSocket clients. Only the bridge's
// device.* channels can be subscribed.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *logging.Logger
	channels []string

	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	dropped atomic.Uint64
}

// WSClient is one event stream connection.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
	sns      map[string]struct{}

	// Identity from the redeemed ticket.
	subject string
	role    auth.Role
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub serving the bridge channels.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		channels: bridge.Channels(),
		clients:  make(map[*WSClient]struct{}),
	}
}

func newWSClient(h *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}),
		sns:      make(map[string]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("event stream opened", "subject", c.subject, "clients", n)
}

// Unregister removes a client. Whoever removes it from the map closes its
// send channel.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
	}
	h.logger.Debug("event stream closed", "subject", c.subject, "clients", n)
}

// Broadcast sends an event about camera sn to every client subscribed to
// channel and to that camera. Slow clients lose the event.
func (h *Hub) Broadcast(channel, sn string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		Channel:   channel,
		SN:        sn,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding event failed", "channel", channel, "sn", sn, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if c.wants(channel, sn) && !c.trySend(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of open event streams.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of events lost to full client buffers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) known(channel string) bool {
	return slices.Contains(h.channels, channel)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// handleWebSocket opens an event stream. The caller authenticates with a
// single-use ticket from POST /auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.tickets.redeem(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(s.hub, conn)
	c.subject, c.role = entry.subject, entry.role
	s.hub.Register(c)

	go c.writePump(s.wsCfg)
	go c.readPump(s.wsCfg)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	//nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetReadDeadline(time.Now().Add(idle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("event stream read failed", "subject", c.subject, "error", err)
			}
			return
		}
		// Browsers that ignore protocol pings stay alive by talking.
		//nolint:errcheck // a failed deadline surfaces as a read error
		c.conn.SetReadDeadline(time.Now().Add(idle))
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // closing anyway
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // a failed deadline surfaces as a write error
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // a failed deadline surfaces as a write error
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		sel, err := decodeSelection(msg.Payload)
		if err != nil {
			c.sendError(msg.ID, "invalid "+msg.Type+" payload")
			return
		}
		if msg.Type == WSTypeSubscribe {
			c.subscribe(msg.ID, sel)
		} else {
			c.unsubscribe(msg.ID, sel)
		}
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func decodeSelection(payload any) (WSSubscribePayload, error) {
	var sel WSSubscribePayload
	raw, err := json.Marshal(payload)
	if err != nil {
		return sel, err
	}
	err = json.Unmarshal(raw, &sel)
	return sel, err
}

// subscribe adds the known channels of sel and narrows the client to the
// cameras in sel, if any. Unknown channels are reported back.
func (c *WSClient) subscribe(id string, sel WSSubscribePayload) {
	var added, unknown []string
	for _, ch := range sel.Channels {
		if c.hub.known(ch) {
			added = append(added, ch)
		} else {
			unknown = append(unknown, ch)
		}
	}
	if len(added) == 0 {
		c.sendError(id, "no known channel; use one of "+strings.Join(c.hub.channels, ", "))
		return
	}

	c.mu.Lock()
	for _, ch := range added {
		c.channels[ch] = struct{}{}
	}
	for _, sn := range sel.SNs {
		c.sns[sn] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Debug("event stream subscribed", "subject", c.subject, "role", c.role, "channels", added, "sn", sel.SNs)
	resp := map[string]any{"subscribed": added}
	if len(unknown) > 0 {
		resp["unknown"] = unknown
	}
	c.reply(id, WSTypeResponse, resp)
}

// unsubscribe drops channels, or everything when sel names none. Cameras
// in sel are removed from the camera filter.
func (c *WSClient) unsubscribe(id string, sel WSSubscribePayload) {
	c.mu.Lock()
	if len(sel.Channels) == 0 {
		clear(c.channels)
		clear(c.sns)
	}
	for _, ch := range sel.Channels {
		delete(c.channels, ch)
	}
	for _, sn := range sel.SNs {
		delete(c.sns, sn)
	}
	c.mu.Unlock()

	c.reply(id, WSTypeResponse, map[string]any{"unsubscribed": sel.Channels})
}

// wants reports whether an event on channel about camera sn matches the
// client's selection.
func (c *WSClient) wants(channel, sn string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.channels[channel]; !ok {
		return false
	}
	if len(c.sns) == 0 {
		return true
	}
	_, ok := c.sns[sn]
	return ok
}

// trySend queues data without blocking. It reports false when the buffer
// is full or the client is gone.
func (c *WSClient) trySend(data []byte) (sent bool) {
	defer func() {
		// send on a channel closed by Unregister
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err == nil {
		c.trySend(data)
	}
}

func (c *WSClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
