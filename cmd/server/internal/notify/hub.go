package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/puzzlehunt/huntserver/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// API tokens gate the upgrade, not the origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one open websocket in a group.
type Client struct {
	Group string
	Send  chan []byte
}

type message struct {
	group string
	data  []byte
}

// Hub fans messages out to every client of a group. Group membership is only mutated from Run.
type Hub struct {
	clients map[string]map[*Client]bool

	broadcast  chan *message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex
}

var _ Publisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan *message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for group, clients := range h.clients {
				for client := range clients {
					close(client.Send)
				}
				delete(h.clients, group)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.Group] == nil {
				h.clients[client.Group] = make(map[*Client]bool)
			}
			h.clients[client.Group][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for client := range h.clients[msg.group] {
				select {
				case client.Send <- msg.data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range slow {
				logger.Logger.Warn("dropping slow websocket client", "group", client.Group)
				h.remove(client)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.Group]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.Group)
	}
}

// Publish drops the message when the broadcast buffer is full rather than stall the publisher.
func (h *Hub) Publish(group string, data []byte) {
	select {
	case h.broadcast <- &message{group: group, data: data}:
	default:
		logger.Logger.Warn("websocket broadcast buffer full, dropping message", "group", group)
	}
}

// Register closes the client straight away once the hub has stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Connected returns the number of clients in a group.
func (h *Hub) Connected(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[group])
}

// Serve upgrades the request and pumps group messages to it until either side hangs up.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, group string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{Group: group, Send: make(chan []byte, sendBuffer)}
	h.Register(client)

	go h.writePump(conn, client)
	h.readPump(conn, client)
	return nil
}

// Clients never send anything meaningful, reading only services pongs and close frames.
func (h *Hub) readPump(conn *websocket.Conn, client *Client) {
	defer func() {
		h.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Logger.Debug("websocket closed", "group", client.Group, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
