// Package ws implements the WebSocket transport: per-session hubs that
// fan PTY output out to attached clients and route client input back to
// the PTY.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// MessageType identifies a WebSocket message.
type MessageType string

const (
	// Client -> server
	MessageTypeStdin  MessageType = "stdin"
	MessageTypeResize MessageType = "resize"
	MessageTypePing   MessageType = "ping"

	// Server -> client
	MessageTypeStdout  MessageType = "stdout"
	MessageTypeHistory MessageType = "history"
	MessageTypeStatus  MessageType = "status"
	MessageTypePong    MessageType = "pong"
	MessageTypeError   MessageType = "error"
)

// Message is the JSON envelope exchanged over the WebSocket. ANSI escape
// sequences in Data are passed through untouched.
type Message struct {
	Type  MessageType `json:"type"`
	Data  string      `json:"data,omitempty"`
	Rows  uint16      `json:"rows,omitempty"`
	Cols  uint16      `json:"cols,omitempty"`
	State string      `json:"state,omitempty"`
	Code  *int        `json:"code,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Client is one WebSocket connection attached to a session.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	send      chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient wraps a WebSocket connection for the given session.
func NewClient(hub *Hub, conn *websocket.Conn, sessionID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, 256),
	}
}

// Send queues data for delivery. A client whose buffer is full is
// dropped rather than allowed to stall the session.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		c.closeLocked()
	}
}

// Close closes the client's send channel.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed reports whether the client has been closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SessionID returns the session this client is attached to.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the client's outgoing channel.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Hub tracks the clients attached to one session.
type Hub struct {
	sessionID string

	mu      sync.RWMutex
	clients map[*Client]struct{}

	onMessage func(client *Client, msg *Message)
	onEmpty   func()
}

// NewHub creates a hub for the given session.
func NewHub(sessionID string) *Hub {
	return &Hub{
		sessionID: sessionID,
		clients:   make(map[*Client]struct{}),
	}
}

// SessionID returns the session this hub serves.
func (h *Hub) SessionID() string {
	return h.sessionID
}

// SetOnMessage sets the callback for incoming client messages.
func (h *Hub) SetOnMessage(fn func(client *Client, msg *Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = fn
}

// SetOnEmpty sets the callback that fires when the last client leaves.
// The session keeps running regardless; this is for bookkeeping only.
func (h *Hub) SetOnEmpty(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onEmpty = fn
}

// Register adds a client.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

// Unregister removes a client and closes it.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	remaining := len(h.clients)
	onEmpty := h.onEmpty
	h.mu.Unlock()

	client.Close()

	if remaining == 0 && onEmpty != nil {
		onEmpty()
	}
}

// Broadcast sends raw data to every attached client.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.Send(data)
	}
}

// BroadcastMessage marshals msg and sends it to every attached client.
func (h *Hub) BroadcastMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HasClients reports whether any client is attached.
func (h *Hub) HasClients() bool {
	return h.ClientCount() > 0
}

// HandleMessage dispatches an incoming client message.
func (h *Hub) HandleMessage(client *Client, msg *Message) {
	h.mu.RLock()
	fn := h.onMessage
	h.mu.RUnlock()

	if fn != nil {
		fn(client, msg)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}

// HubManager holds the hub of every session that has ever been attached.
type HubManager struct {
	mu   sync.RWMutex
	hubs map[string]*Hub
}

// NewHubManager creates an empty HubManager.
func NewHubManager() *HubManager {
	return &HubManager{hubs: make(map[string]*Hub)}
}

// GetOrCreate returns the session's hub, creating it on first use.
func (m *HubManager) GetOrCreate(sessionID string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[sessionID]; ok {
		return hub
	}
	hub := NewHub(sessionID)
	m.hubs[sessionID] = hub
	return hub
}

// Get returns the session's hub, or nil.
func (m *HubManager) Get(sessionID string) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[sessionID]
}

// Remove closes and drops the session's hub.
func (m *HubManager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[sessionID]; ok {
		hub.Close()
		delete(m.hubs, sessionID)
	}
}

// Close closes every hub.
func (m *HubManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, hub := range m.hubs {
		hub.Close()
	}
	m.hubs = make(map[string]*Hub)
}
