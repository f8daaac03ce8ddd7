// Package websocket fans cover status messages out to connected websocket clients.
package websocket

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

const sendBuffer = 64

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub event loop, it returns and disconnects every client when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			logrus.Debugf("websocket: client connected (total: %d)", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			logrus.Debugf("websocket: client disconnected (total: %d)", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow client
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues message for every connected client. It never blocks, a full queue drops the message.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		logrus.Warn("websocket: broadcast queue full, dropping message")
	}
}

// Register adds client to the hub. A client registered after the hub stopped is closed right away.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

type Client struct {
	send chan []byte
}

func NewClient() *Client {
	return &Client{send: make(chan []byte, sendBuffer)}
}

// Send is closed by the hub once the client is unregistered.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Queue puts message directly into the client buffer, bypassing the hub. It reports false when the buffer is full.
func (c *Client) Queue(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}
