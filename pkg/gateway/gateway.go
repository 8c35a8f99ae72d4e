// Package gateway accepts WebSocket connections from sensor nodes and feeds
// their readings into the correlation engine.
package gateway

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-correlate/internal/log"
	"github.com/teslashibe/go-correlate/pkg/protocol"
	"github.com/teslashibe/go-correlate/pkg/sensor"
)

// Ingestor accepts decoded readings. *correlation.Engine satisfies it.
type Ingestor interface {
	Add(sensor.Reading) error
}

// NodeConnection represents a connected sensor node
type NodeConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time
	Readings  uint64

	mu sync.Mutex
}

// Send sends a message to the node
func (n *NodeConnection) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Conn.WriteMessage(websocket.TextMessage, data)
}

// Gateway manages WebSocket connections from sensor nodes
type Gateway struct {
	mu     sync.RWMutex
	nodes  map[string]*NodeConnection
	sink   Ingestor
	logger *slog.Logger

	// Stats
	messagesReceived   atomic.Uint64
	messagesSent       atomic.Uint64
	readingsDispatched atomic.Uint64
	parseErrors        atomic.Uint64
}

// New creates a gateway that forwards readings to sink.
func New(sink Ingestor) *Gateway {
	return &Gateway{
		nodes:  make(map[string]*NodeConnection),
		sink:   sink,
		logger: log.With("component", "gateway"),
	}
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (g *Gateway) RegisterRoutes(app fiber.Router) {
	app.Use("/ws/sensor", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/sensor", websocket.New(g.handleNode))
	app.Get("/ws/sensor/:id", websocket.New(g.handleNode))
}

// handleNode handles a sensor node WebSocket connection
func (g *Gateway) handleNode(c *websocket.Conn) {
	nodeID := c.Params("id")
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	now := time.Now()
	node := &NodeConnection{
		ID:        nodeID,
		Conn:      c,
		Connected: now,
		LastSeen:  now,
	}

	g.mu.Lock()
	g.nodes[nodeID] = node
	count := len(g.nodes)
	g.mu.Unlock()
	g.logger.Info("sensor node connected", "node", nodeID, "nodes", count)

	defer func() {
		g.mu.Lock()
		if g.nodes[nodeID] == node {
			delete(g.nodes, nodeID)
		}
		count := len(g.nodes)
		g.mu.Unlock()
		g.logger.Info("sensor node disconnected", "node", nodeID, "nodes", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			g.logger.Debug("sensor node read error", "node", nodeID, "error", err)
			return
		}

		node.mu.Lock()
		node.LastSeen = time.Now()
		node.mu.Unlock()

		if reply := g.HandleMessage(nodeID, data); reply != nil {
			g.messagesSent.Add(1)
			if err := node.Send(reply); err != nil {
				g.logger.Debug("sensor node write error", "node", nodeID, "error", err)
				return
			}
		}
	}
}

// HandleMessage processes one inbound frame from nodeID. It returns a
// reply to send back, if any.
func (g *Gateway) HandleMessage(nodeID string, data []byte) *protocol.Message {
	g.messagesReceived.Add(1)

	msg, err := protocol.ParseMessage(data)
	if err != nil {
		g.parseErrors.Add(1)
		g.logger.Debug("parse error", "node", nodeID, "error", err)
		return nil
	}

	switch {
	case msg.Type == protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			g.parseErrors.Add(1)
			return nil
		}
		if ping.Timestamp == 0 {
			ping.Timestamp = msg.Timestamp
		}
		pong, err := protocol.NewPongMessage(ping)
		if err != nil {
			return nil
		}
		return pong

	case msg.IsReading():
		if msg.Timestamp == 0 {
			msg.Timestamp = time.Now().UnixMilli()
		}
		r, err := msg.Reading()
		if err != nil {
			g.parseErrors.Add(1)
			g.logger.Debug("bad reading", "node", nodeID, "error", err)
			return nil
		}
		if err := g.sink.Add(r); err != nil {
			g.logger.Warn("reading rejected", "node", nodeID, "error", err)
			return nil
		}
		g.readingsDispatched.Add(1)
		g.mu.RLock()
		node := g.nodes[nodeID]
		g.mu.RUnlock()
		if node != nil {
			node.mu.Lock()
			node.Readings++
			node.mu.Unlock()
		}

	default:
		g.parseErrors.Add(1)
		g.logger.Debug("unexpected message type", "node", nodeID, "type", msg.Type)
	}
	return nil
}

// NodeCount returns the number of connected nodes
func (g *Gateway) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetNode returns a node connection by ID
func (g *Gateway) GetNode(nodeID string) *NodeConnection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[nodeID]
}

// Stats contains gateway statistics
type Stats struct {
	NodeCount          int    `json:"node_count"`
	MessagesReceived   uint64 `json:"messages_received"`
	MessagesSent       uint64 `json:"messages_sent"`
	ReadingsDispatched uint64 `json:"readings_dispatched"`
	ParseErrors        uint64 `json:"parse_errors"`
}

// GetStats returns gateway statistics
func (g *Gateway) GetStats() Stats {
	return Stats{
		NodeCount:          g.NodeCount(),
		MessagesReceived:   g.messagesReceived.Load(),
		MessagesSent:       g.messagesSent.Load(),
		ReadingsDispatched: g.readingsDispatched.Load(),
		ParseErrors:        g.parseErrors.Load(),
	}
}

// NodeInfo contains info about a connected node
type NodeInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Readings  uint64    `json:"readings"`
}

func (n *NodeConnection) info() NodeInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return NodeInfo{
		ID:        n.ID,
		Connected: n.Connected,
		LastSeen:  n.LastSeen,
		Readings:  n.Readings,
	}
}

// GetNodeInfos returns info about all connected nodes
func (g *Gateway) GetNodeInfos() []NodeInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	infos := make([]NodeInfo, 0, len(g.nodes))
	for _, n := range g.nodes {
		infos = append(infos, n.info())
	}
	return infos
}

// RegisterAPIRoutes registers API routes for node inspection
func (g *Gateway) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/sensors", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"nodes": g.GetNodeInfos(),
			"count": g.NodeCount(),
			"stats": g.GetStats(),
		})
	})

	api.Get("/sensors/:id", func(c *fiber.Ctx) error {
		n := g.GetNode(c.Params("id"))
		if n == nil {
			return fiber.NewError(fiber.StatusNotFound, "sensor node not connected")
		}
		return c.JSON(n.info())
	})
}
