// Package feed pulls readings from a remote sensor node over WebSocket and
// reconnects with exponential backoff when the link drops.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-correlate/internal/log"
	"github.com/teslashibe/go-correlate/pkg/protocol"
	"github.com/teslashibe/go-correlate/pkg/sensor"
)

// Ingestor accepts decoded readings.
type Ingestor interface {
	Add(sensor.Reading) error
}

// Default timings.
const (
	DefaultMinBackoff  = 500 * time.Millisecond
	DefaultMaxBackoff  = 30 * time.Second
	DefaultReadTimeout = 120 * time.Second
	handshakeTimeout   = 10 * time.Second
	writeTimeout       = 5 * time.Second
)

// Client streams readings from one upstream URL.
type Client struct {
	URL         string
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	ReadTimeout time.Duration

	sink   Ingestor
	logger *slog.Logger

	wsMu sync.Mutex
	ws   *websocket.Conn

	connects atomic.Uint64
	readings atomic.Uint64
	errors   atomic.Uint64
}

// NewClient creates a feed client for url.
func NewClient(url string, sink Ingestor) *Client {
	return &Client{
		URL:         url,
		MinBackoff:  DefaultMinBackoff,
		MaxBackoff:  DefaultMaxBackoff,
		ReadTimeout: DefaultReadTimeout,
		sink:        sink,
		logger:      log.With("component", "feed", "url", url),
	}
}

// Run connects and streams until ctx is cancelled. It always returns a
// non-nil error: ctx.Err() on shutdown.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.MinBackoff
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("feed disconnected", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if err == nil || errors.Is(err, errSessionEstablished) {
			backoff = c.MinBackoff
		} else {
			backoff = min(backoff*2, c.MaxBackoff)
		}
	}
}

var errSessionEstablished = errors.New("feed: session ended")

// session runs one connection. A session that got as far as connecting
// returns an error wrapping errSessionEstablished so backoff resets.
func (c *Client) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.URL, err)
	}
	c.connects.Add(1)
	c.logger.Info("feed connected")

	c.wsMu.Lock()
	c.ws = ws
	c.wsMu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()
	defer func() {
		c.wsMu.Lock()
		c.ws = nil
		c.wsMu.Unlock()
		ws.Close()
	}()

	ws.SetPingHandler(func(appData string) error {
		c.wsMu.Lock()
		defer c.wsMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})

	for {
		ws.SetReadDeadline(time.Now().Add(c.ReadTimeout))
		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", errSessionEstablished, err)
		}
		c.handle(ws, data)
	}
}

func (c *Client) handle(ws *websocket.Conn, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		c.errors.Add(1)
		return
	}

	switch {
	case msg.Type == protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			c.errors.Add(1)
			return
		}
		pong, err := protocol.NewPongMessage(ping)
		if err != nil {
			return
		}
		out, _ := pong.Bytes()
		c.wsMu.Lock()
		ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		err = ws.WriteMessage(websocket.TextMessage, out)
		c.wsMu.Unlock()
		if err != nil {
			c.logger.Debug("pong write failed", "error", err)
		}

	case msg.IsReading():
		if msg.Timestamp == 0 {
			msg.Timestamp = time.Now().UnixMilli()
		}
		r, err := msg.Reading()
		if err != nil {
			c.errors.Add(1)
			return
		}
		if err := c.sink.Add(r); err != nil {
			c.errors.Add(1)
			return
		}
		c.readings.Add(1)

	default:
		c.errors.Add(1)
	}
}

// Stats counts connections, forwarded readings and rejected frames.
type Stats struct {
	Connects uint64 `json:"connects"`
	Readings uint64 `json:"readings"`
	Errors   uint64 `json:"errors"`
}

// Stats returns feed counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connects: c.connects.Load(),
		Readings: c.readings.Load(),
		Errors:   c.errors.Load(),
	}
}

// IsConnected reports whether a session is open.
func (c *Client) IsConnected() bool {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.ws != nil
}
