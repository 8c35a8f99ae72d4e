// Package web exposes the correlation engine over HTTP: a REST control and
// query API plus a live event stream at /ws/events.
package web

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-correlate/internal/log"
	"github.com/teslashibe/go-correlate/pkg/correlation"
	"github.com/teslashibe/go-correlate/pkg/gateway"
	"github.com/teslashibe/go-correlate/pkg/hub"
	"github.com/teslashibe/go-correlate/pkg/sensor"
)

// Engine is the part of *correlation.Engine the API drives.
type Engine interface {
	Add(sensor.Reading) error
	Status() correlation.Status
	History() []correlation.Result
	Baselines() map[string]float64
	Config() correlation.Config
	UpdateConfiguration(correlation.ConfigPatch) error
	ClearHistory()
	ClearBuffers()
	Start() error
	Stop()
	RestartIfStopped() bool
	RunCycle(context.Context) ([]correlation.Result, error)
}

// Options configures a Server.
type Options struct {
	Addr    string
	Version string
	Debug   bool // enables request logging

	Engine  Engine
	Events  *hub.Hub         // required for /ws/events
	Gateway *gateway.Gateway // optional sensor node endpoint
}

// Server is the HTTP API server
type Server struct {
	app    *fiber.App
	opts   Options
	logger *slog.Logger
}

// NewServer creates the server and registers all routes.
func NewServer(opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		opts:   opts,
		logger: log.With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "correlated",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if opts.Debug {
		app.Use(logger.New())
	}

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.handleMetrics)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/history", s.handleHistory)
	api.Delete("/history", s.handleClearHistory)
	api.Get("/baselines", s.handleBaselines)
	api.Get("/config", s.handleGetConfig)
	api.Patch("/config", s.handleUpdateConfig)
	api.Post("/analysis/start", s.handleStart)
	api.Post("/analysis/stop", s.handleStop)
	api.Post("/analysis/restart", s.handleRestart)
	api.Post("/analysis/run", s.handleRun)
	api.Post("/buffers/clear", s.handleClearBuffers)
	api.Post("/readings/:source", s.handleReading)

	// WebSocket upgrade middleware
	app.Use("/ws/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	if opts.Gateway != nil {
		opts.Gateway.RegisterRoutes(app)
		opts.Gateway.RegisterAPIRoutes(api)
	}

	s.app = app
	return s
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until Shutdown is called.
func (s *Server) Listen() error {
	s.logger.Info("http api listening", "addr", s.opts.Addr)
	return s.app.Listen(s.opts.Addr)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// handleEventsWS streams engine events to a subscriber. ?kinds=a,b limits
// the stream to those event kinds.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	if s.opts.Events == nil {
		c.Close()
		return
	}
	var kinds []string
	if q := c.Query("kinds"); q != "" {
		kinds = strings.Split(q, ",")
	}
	client := hub.NewClient(s.opts.Events, c, kinds...)
	if client == nil {
		c.Close()
		return
	}
	client.Run()
}
