// Package messaging pushes dashboard updates to connected admin browsers over websockets.
package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/metrics"
)

// Message is the websocket envelope.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

type tenantMessage struct {
	tenantID string
	payload  []byte
}

// DashboardHub fans tenant-scoped messages out to that tenant's clients.
type DashboardHub struct {
	tenantClients map[string]map[*Client]bool
	broadcast     chan tenantMessage
	logger        *logging.ChanneledLogger
	mu            sync.RWMutex
}

// NewDashboardHub creates a hub. Serve must be running for messages to flow.
func NewDashboardHub(logger *logging.ChanneledLogger) *DashboardHub {
	return &DashboardHub{
		tenantClients: make(map[string]map[*Client]bool),
		broadcast:     make(chan tenantMessage, 256),
		logger:        logger,
	}
}

// Serve delivers queued messages until ctx is done, then disconnects every client.
func (h *DashboardHub) Serve(ctx context.Context) error {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			h.logger.WS().Info("Dashboard hub stopping", "reason", ctx.Err())
			return ctx.Err()
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *DashboardHub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tenantClients[client.TenantID]; !ok {
		h.tenantClients[client.TenantID] = make(map[*Client]bool)
	}
	h.tenantClients[client.TenantID][client] = true
	metrics.WebsocketClients.Inc()
	h.logger.WS().Debug("Websocket client registered", "tenantId", client.TenantID, "clients", len(h.tenantClients[client.TenantID]))
}

func (h *DashboardHub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.tenantClients[client.TenantID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	metrics.WebsocketClients.Dec()
	if len(clients) == 0 {
		delete(h.tenantClients, client.TenantID)
	}
	h.logger.WS().Debug("Websocket client unregistered", "tenantId", client.TenantID)
}

func (h *DashboardHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for tenantID, clients := range h.tenantClients {
		for client := range clients {
			close(client.send)
			metrics.WebsocketClients.Dec()
		}
		delete(h.tenantClients, tenantID)
	}
}

func (h *DashboardHub) deliver(msg tenantMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.tenantClients[msg.tenantID] {
		select {
		case client.send <- msg.payload:
		default:
			metrics.WebsocketMessagesDropped.Inc()
			h.logger.WS().Warn("Websocket send buffer full, message dropped", "tenantId", msg.tenantID)
		}
	}
}

// reply queues a message for one client. Channels are only closed under the
// write lock, so a registered client's send is safe under the read lock.
func (h *DashboardHub) reply(client *Client, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.tenantClients[client.TenantID][client] {
		return
	}
	select {
	case client.send <- payload:
	default:
		metrics.WebsocketMessagesDropped.Inc()
	}
}

// Publish queues a message for every client of the tenant. It never blocks.
func (h *DashboardHub) Publish(tenantID, msgType string, data any) {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		h.logger.LogError(logging.ChannelWS, "publish", err, tenantID, map[string]any{"type": msgType})
		return
	}
	select {
	case h.broadcast <- tenantMessage{tenantID: tenantID, payload: payload}:
	default:
		metrics.WebsocketMessagesDropped.Inc()
		h.logger.WS().Warn("Hub broadcast queue full, message dropped", "tenantId", tenantID, "type", msgType)
	}
}

// ClientCount returns the number of connected clients for a tenant.
func (h *DashboardHub) ClientCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenantClients[tenantID])
}

// Attach registers a websocket connection for a tenant and runs its pumps.
// It returns once the connection closes.
func (h *DashboardHub) Attach(conn *websocket.Conn, tenantID string) {
	client := newClient(h, conn, tenantID)
	h.add(client)
	go client.writePump()
	client.readPump()
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Client is one admin browser connection.
type Client struct {
	TenantID string
	hub      *DashboardHub
	conn     *websocket.Conn
	send     chan []byte
}

func newClient(hub *DashboardHub, conn *websocket.Conn, tenantID string) *Client {
	return &Client{TenantID: tenantID, hub: hub, conn: conn, send: make(chan []byte, 32)}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WS().Warn("Unexpected websocket close", "tenantId", c.TenantID, "error", err)
			}
			return
		}
		if msg.Type == MessageTypePing {
			pong, _ := json.Marshal(Message{Type: MessageTypePong})
			c.hub.reply(c, pong)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
