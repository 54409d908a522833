package notify

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raids-lab/staffdesk/dao/model"
)

const writeWait = 5 * time.Second

type hubClient struct {
	conn *websocket.Conn
	mu   sync.Mutex // gorilla connections allow one concurrent writer
}

// Hub pushes notifications to the recipients' open websocket connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]map[*hubClient]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[uint]map[*hubClient]struct{})}
}

func (h *Hub) Name() string { return "websocket" }

// Register attaches conn to userID. The returned func detaches and closes it.
func (h *Hub) Register(userID uint, conn *websocket.Conn) func() {
	c := &hubClient{conn: conn}
	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*hubClient]struct{})
	}
	h.clients[userID][c] = struct{}{}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.clients[userID], c)
		if len(h.clients[userID]) == 0 {
			delete(h.clients, userID)
		}
		h.mu.Unlock()
		_ = conn.Close()
	}
}

// Connections reports how many connections userID has open.
func (h *Hub) Connections(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) Deliver(_ context.Context, recipient *model.User, n *model.Notification) error {
	h.mu.RLock()
	targets := make([]*hubClient, 0, len(h.clients[recipient.ID]))
	for c := range h.clients[recipient.ID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var firstErr error
	for _, c := range targets {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.conn.WriteJSON(NewPushMessage(n))
		c.mu.Unlock()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PushMessage is the frame written to websocket subscribers.
type PushMessage struct {
	ID        uint      `json:"id"`
	RequestID *uint     `json:"requestID,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewPushMessage(n *model.Notification) PushMessage {
	return PushMessage{
		ID:        n.ID,
		RequestID: n.RequestID,
		Title:     n.Title,
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
	}
}
