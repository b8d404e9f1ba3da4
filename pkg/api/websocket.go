package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/secret-orderbook/pkg/app/book"
	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
)

// errBookUnavailable is sent for failures that say nothing about the
// caller's credentials.
const errBookUnavailable = "book unavailable"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (CORS handled by main server)
		return true
	},
}

// Hub tracks websocket clients and pushes the book peek to every client
// holding an authorized subscription after each committed call.
type Hub struct {
	node *book.Node
	log  *zap.SugaredLogger

	clients map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	notify     chan struct{}
	done       chan struct{}
}

func NewHub(node *book.Node, log *zap.SugaredLogger) *Hub {
	return &Hub{
		node:       node,
		log:        log,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Notify schedules a push. Bursts of commits collapse into one push.
func (h *Hub) Notify() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Run starts the hub's main loop
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
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debugw("ws_client_connected", "id", client.id, "total", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.log.Debugw("ws_client_disconnected", "id", client.id, "total", len(h.clients))
			}
			h.mu.Unlock()

		case <-h.notify:
			h.push(ctx)
		}
	}
}

func (h *Hub) push(ctx context.Context) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		creds, ok := c.credentials()
		if !ok {
			continue
		}
		// re-checked on every push so a revoked key stops the feed
		peek, err := h.node.BookPeek(ctx, creds)
		if errors.Is(err, msg.ErrUnauthorized) {
			c.Unsubscribe()
			c.enqueue(WSError{Type: "error", Error: msg.ErrUnauthorized.Error()})
			continue
		}
		if err != nil {
			h.log.Warnw("ws_peek_failed", "id", c.id, "err", err)
			c.enqueue(WSError{Type: "error", Error: errBookUnavailable})
			continue
		}
		c.enqueue(peekUpdate(peek))
	}
}

func peekUpdate(p msg.BookPeek) BookPeekUpdate {
	return BookPeekUpdate{
		Type:      "book_peek",
		BidPrice:  p.BidPrice,
		AskPrice:  p.AskPrice,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Client represents a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subsMu sync.RWMutex
	creds  *msg.Credentials
}

func (c *Client) credentials() (msg.Credentials, bool) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	if c.creds == nil {
		return msg.Credentials{}, false
	}
	return *c.creds, true
}

// Subscribe stores creds once they have been authorized.
func (c *Client) Subscribe(creds msg.Credentials) {
	c.subsMu.Lock()
	c.creds = &creds
	c.subsMu.Unlock()
}

func (c *Client) Unsubscribe() {
	c.subsMu.Lock()
	c.creds = nil
	c.subsMu.Unlock()
}

// enqueue drops the message if the client is not keeping up.
func (c *Client) enqueue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.log.Warnw("ws_marshal_failed", "err", err)
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debugw("ws_read_error", "id", c.id, "err", err)
			}
			return
		}

		var req WSRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.enqueue(WSError{Type: "error", Error: "invalid message"})
			continue
		}

		switch req.Op {
		case "subscribe":
			creds := msg.Credentials{Owner: req.Owner, ViewKey: req.ViewKey}
			peek, err := c.hub.node.BookPeek(ctx, creds)
			if errors.Is(err, msg.ErrUnauthorized) {
				c.Unsubscribe()
				c.enqueue(WSError{Type: "error", Error: msg.ErrUnauthorized.Error()})
				continue
			}
			if err != nil {
				// authorization never ran, so the request is not kept
				c.hub.log.Debugw("ws_subscribe_failed", "id", c.id, "err", err)
				c.enqueue(WSError{Type: "error", Error: errBookUnavailable})
				continue
			}
			c.Subscribe(creds)
			c.enqueue(peekUpdate(peek))
		case "unsubscribe":
			c.Unsubscribe()
		default:
			c.enqueue(WSError{Type: "error", Error: "unknown op"})
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket handles WebSocket upgrade and client lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugw("ws_upgrade_failed", "err", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 64),
		id:   conn.RemoteAddr().String(),
	}
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(context.Background())
}
