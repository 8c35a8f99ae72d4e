package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be below pongWait
	maxMessageSize = 4 * 1024            // subscribe frames only
	sendBuffer     = 256
)

// Client is one subscriber connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	mu     sync.RWMutex
	topics map[string]bool // nil accepts everything
}

// NewClient registers a subscriber, optionally limited to topics.
// It returns nil if the hub has stopped.
func NewClient(hub *Hub, conn *websocket.Conn, topics ...string) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan Message, sendBuffer),
	}
	c.SetTopics(topics)

	select {
	case hub.register <- c:
		return c
	case <-hub.done:
		return nil
	}
}

// SetTopics replaces the client's filter. Empty topics clear it.
func (c *Client) SetTopics(topics []string) {
	var set map[string]bool
	for _, t := range topics {
		if t == "" {
			continue
		}
		if set == nil {
			set = make(map[string]bool, len(topics))
		}
		set[t] = true
	}
	c.mu.Lock()
	c.topics = set
	c.mu.Unlock()
}

// Accepts reports whether msg passes the client's filter.
func (c *Client) Accepts(msg Message) bool {
	if msg.Topic == "" {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics == nil || c.topics[msg.Topic]
}

// Run pumps messages until the connection closes. Call it from the
// websocket handler.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump handles subscribe frames and pongs, and notices disconnects.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var sub Subscribe
		if err := json.Unmarshal(data, &sub); err != nil {
			c.hub.logger.Debug("ignoring subscriber frame", "error", err)
			continue
		}
		c.SetTopics(sub.Topics)
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
