package server

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"ledremote/internal/logging"
)

const writeWait = 2 * time.Second

type client struct {
	id          string
	conn        *websocket.Conn
	connectedAt time.Time
	closing     bool
	// greet builds the first message, written when the hub registers
	// the client so no broadcast can slip in before it.
	greet func() interface{}
}

// Hub manages WebSocket clients. All writes after registration go through
// its Run loop, so each connection has a single writer.
type Hub struct {
	clients    map[*websocket.Conn]*client
	mu         sync.Mutex
	broadcast  chan interface{}
	register   chan *client
	unregister chan *websocket.Conn
	done       chan struct{}
	dropped    atomic.Uint64

	maxClients int
	onCount    func(n int)
	log        *logrus.Entry
}

// NewHub creates a Hub that keeps at most maxClients connections
// (0 means unlimited). onCount, if set, is called with the client count
// whenever it changes.
func NewHub(maxClients int, onCount func(n int)) *Hub {
	if onCount == nil {
		onCount = func(int) {}
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan interface{}, 16),
		register:   make(chan *client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		maxClients: maxClients,
		onCount:    onCount,
		log:        logging.For("hub"),
	}
}

// Run starts the hub's event loop. It returns when ctx is cancelled, after
// closing every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			h.onCount(0)
			return
		case c := <-h.register:
			if c.greet != nil {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteJSON(c.greet()); err != nil {
					h.log.WithError(err).WithField("client", c.id).Warn("initial status failed, dropping client")
					c.conn.Close()
					continue
				}
			}
			h.mu.Lock()
			h.clients[c.conn] = c
			n := len(h.clients)
			h.mu.Unlock()
			h.onCount(n)
			h.log.WithFields(logrus.Fields{"client": c.id, "remote": c.conn.RemoteAddr().String()}).Info("WebSocket client connected")
		case conn := <-h.unregister:
			h.mu.Lock()
			c, ok := h.clients[conn]
			if ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			if ok {
				h.onCount(n)
				h.log.WithField("client", c.id).Info("WebSocket client disconnected")
			}
		case message := <-h.broadcast:
			// write outside the lock so Cleanup never waits on a slow client
			h.mu.Lock()
			targets := make([]*client, 0, len(h.clients))
			for _, c := range h.clients {
				targets = append(targets, c)
			}
			h.mu.Unlock()

			var failed []*client
			for _, c := range targets {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteJSON(message); err != nil {
					h.log.WithError(err).WithField("client", c.id).Warn("broadcast failed, dropping client")
					failed = append(failed, c)
				}
			}
			if len(failed) > 0 {
				h.mu.Lock()
				for _, c := range failed {
					c.conn.Close()
					delete(h.clients, c.conn)
				}
				n := len(h.clients)
				h.mu.Unlock()
				h.onCount(n)
			}
		}
	}
}

// Broadcast queues a message for all connected clients and never blocks.
// When the queue is full, or the hub has stopped, the message is dropped.
func (h *Hub) Broadcast(msg interface{}) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.log.Debug("broadcast queue full, dropping message")
	}
}

// Dropped returns how many broadcasts were discarded.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Cleanup closes the oldest clients beyond the configured maximum. Their
// read loops then fail and unregister them.
func (h *Hub) Cleanup() {
	if h.maxClients <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	live := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if !c.closing {
			live = append(live, c)
		}
	}
	excess := len(live) - h.maxClients
	if excess <= 0 {
		return
	}
	sort.Slice(live, func(i, j int) bool { return live[i].connectedAt.Before(live[j].connectedAt) })
	for _, c := range live[:excess] {
		c.closing = true
		c.conn.Close()
		h.log.WithField("client", c.id).Info("too many clients, closing oldest")
	}
}

func (h *Hub) newClient(conn *websocket.Conn, greet func() interface{}) *client {
	return &client{
		id:          uuid.NewString(),
		conn:        conn,
		connectedAt: time.Now(),
		greet:       greet,
	}
}

func (h *Hub) add(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}
