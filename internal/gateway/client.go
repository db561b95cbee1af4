package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/zueira/internal/logging"
)

const writeTimeout = 10 * time.Second

// Client represents an authenticated WebSocket connection.
type Client struct {
	ConnID      string
	Info        ClientInfo
	Socket      *websocket.Conn
	AuthResult  AuthResult
	ConnectedAt time.Time

	mu            sync.Mutex
	closed        bool
	conversations map[string]struct{}
}

// NewClient creates a Client for a newly authenticated WebSocket connection.
func NewClient(conn *websocket.Conn, info ClientInfo, authResult AuthResult) *Client {
	return &Client{
		ConnID:      uuid.NewString(),
		Info:        info,
		Socket:      conn,
		AuthResult:  authResult,
		ConnectedAt: time.Now(),
	}
}

// Subscribe replaces the set of conversations the client receives events
// for. An empty list subscribes to all conversations.
func (c *Client) Subscribe(conversationIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(conversationIDs) == 0 {
		c.conversations = nil
		return
	}
	c.conversations = make(map[string]struct{}, len(conversationIDs))
	for _, id := range conversationIDs {
		c.conversations[id] = struct{}{}
	}
}

// Wants reports whether an event for conversationID should reach the
// client. Events without a conversation reach every client.
func (c *Client) Wants(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conversationID == "" || c.conversations == nil {
		return true
	}
	_, ok := c.conversations[conversationID]
	return ok
}

// Send sends a frame to the client. Thread-safe.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	_ = c.Socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.Socket.WriteJSON(frame)
}

// Respond sends a success response for the given request ID.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError sends an error response for the given request ID.
func (c *Client) RespondError(reqID string, errShape ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, errShape))
}

// ReadFrame reads the next frame from the WebSocket.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.Socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.Socket.Close()
}

// ClientRegistry manages connected clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client // connID → Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers a connected client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Msg("client connected")
}

// Remove unregisters a client by connection ID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, connID)
	r.log.Info().Str("connId", connID).Msg("client disconnected")
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast sends an event frame to every client subscribed to the frame's
// conversation. It returns the number of clients reached.
func (r *ClientRegistry) Broadcast(frame Frame) int {
	conversationID := conversationOf(frame.Payload)

	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for _, c := range r.clients {
		if !c.Wants(conversationID) {
			continue
		}
		if err := c.Send(frame); err != nil {
			r.log.Warn().Err(err).Str("connId", c.ConnID).Msg("broadcast send failed")
			continue
		}
		sent++
	}
	return sent
}

// CloseAll closes all connected clients.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		_ = c.Close()
		delete(r.clients, id)
	}
}
