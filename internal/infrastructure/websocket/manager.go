package websocket

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"lotedd/internal/usecase"
	"lotedd/pkg/logger"
)

// Client represents one WebSocket connection and the realtime subscriptions
// it owns. Subscriptions die with the connection.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	mutex         sync.Mutex
	subscriptions map[string]func()
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID:        userID,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		subscriptions: make(map[string]func()),
	}
}

func (c *Client) addSubscription(id string, cancel func()) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if existing, ok := c.subscriptions[id]; ok {
		existing()
	}
	c.subscriptions[id] = cancel
}

func (c *Client) removeSubscription(id string) {
	c.mutex.Lock()
	cancel, ok := c.subscriptions[id]
	delete(c.subscriptions, id)
	c.mutex.Unlock()

	if ok {
		cancel()
	}
}

func (c *Client) cancelAllSubscriptions() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for id, cancel := range c.subscriptions {
		cancel()
		delete(c.subscriptions, id)
	}
}

// Manager owns all active WebSocket connections.
type Manager struct {
	clients    map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex

	streams *usecase.StreamUseCase
}

func NewManager(streams *usecase.StreamUseCase) *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		streams:    streams,
	}
}

// Start runs the manager's main loop in a goroutine.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				if previous, ok := m.clients[client.UserID]; ok {
					previous.cancelAllSubscriptions()
					close(previous.Send)
				}
				m.clients[client.UserID] = client
				m.mutex.Unlock()
				logger.Info("Client registered: %s", client.UserID)

			case client := <-m.Unregister:
				m.mutex.Lock()
				if current, ok := m.clients[client.UserID]; ok && current == client {
					delete(m.clients, client.UserID)
					client.cancelAllSubscriptions()
					close(client.Send)
				}
				m.mutex.Unlock()
				logger.Info("Client unregistered: %s", client.UserID)

			case <-ctx.Done():
				return
			}
		}
	}()
}

// SendToUser queues a payload for a connected user. Payloads for absent or
// backed-up clients are dropped; the streams re-deliver current state on the
// next commit.
func (m *Manager) SendToUser(userID string, payload []byte) {
	m.mutex.RLock()
	client, ok := m.clients[userID]
	m.mutex.RUnlock()

	if !ok {
		return
	}

	select {
	case client.Send <- payload:
	default:
		logger.Warn("Dropping realtime payload for slow client %s", userID)
	}
}

// ReadPump reads subscription commands from the connection.
func (c *Client) ReadPump(ctx context.Context, m *Manager) {
	defer func() {
		m.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, payload, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket read error for %s: %v", c.UserID, err)
			}
			break
		}

		m.HandleClientMessage(ctx, c, payload)
	}
}

// WritePump drains the send queue to the connection.
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		payload, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Error("WebSocket write error for %s: %v", c.UserID, err)
			return
		}
	}
}
