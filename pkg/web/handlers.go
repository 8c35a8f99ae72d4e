package web

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-correlate/pkg/correlation"
	"github.com/teslashibe/go-correlate/pkg/protocol"
	"github.com/teslashibe/go-correlate/pkg/sensor"
)

// errorHandler renders every error as {"error": "..."}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, correlation.ErrInvalidConfig):
		return fiber.StatusBadRequest
	case errors.Is(err, correlation.ErrEngineClosed),
		errors.Is(err, correlation.ErrCycleInProgress),
		errors.Is(err, correlation.ErrInsufficientData):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status":  "ok",
		"version": s.opts.Version,
		"active":  s.opts.Engine.Status().Active,
	}
	if s.opts.Gateway != nil {
		resp["nodes"] = s.opts.Gateway.NodeCount()
	}
	if s.opts.Events != nil {
		resp["subscribers"] = s.opts.Events.ClientCount()
	}
	return c.JSON(resp)
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	st := s.opts.Engine.Status()
	var b strings.Builder

	active := 0
	if st.Active {
		active = 1
	}
	fmt.Fprintf(&b, "# HELP correlate_active Whether the analysis scheduler is running\n")
	fmt.Fprintf(&b, "# TYPE correlate_active gauge\ncorrelate_active %d\n\n", active)

	fmt.Fprintf(&b, "# HELP correlate_buffered_readings Readings currently buffered per source\n")
	fmt.Fprintf(&b, "# TYPE correlate_buffered_readings gauge\n")
	for _, src := range sensor.Sources {
		fmt.Fprintf(&b, "correlate_buffered_readings{source=%q} %d\n", src, st.Buffers[src])
	}

	fmt.Fprintf(&b, "\n# HELP correlate_history_results Results retained in history\n")
	fmt.Fprintf(&b, "# TYPE correlate_history_results gauge\ncorrelate_history_results %d\n", st.HistoryCount)
	fmt.Fprintf(&b, "\n# HELP correlate_cycles_total Completed analysis cycles\n")
	fmt.Fprintf(&b, "# TYPE correlate_cycles_total counter\ncorrelate_cycles_total %d\n", st.Cycles)

	if s.opts.Gateway != nil {
		gs := s.opts.Gateway.GetStats()
		fmt.Fprintf(&b, "\n# HELP correlate_sensor_nodes Connected sensor nodes\n")
		fmt.Fprintf(&b, "# TYPE correlate_sensor_nodes gauge\ncorrelate_sensor_nodes %d\n", gs.NodeCount)
		fmt.Fprintf(&b, "\n# HELP correlate_gateway_readings_total Readings accepted from sensor nodes\n")
		fmt.Fprintf(&b, "# TYPE correlate_gateway_readings_total counter\ncorrelate_gateway_readings_total %d\n", gs.ReadingsDispatched)
	}
	return c.SendString(b.String())
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.opts.Engine.Status())
}

// handleHistory returns retained results, optionally filtered by ?type=
// and truncated to the newest ?limit= entries.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	results := s.opts.Engine.History()

	if t := correlation.Type(c.Query("type")); t != "" {
		if !t.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown correlation type " + string(t)})
		}
		filtered := results[:0]
		for _, r := range results {
			if r.Type == t {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	if limit := c.QueryInt("limit", 0); limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must not be negative"})
	} else if limit > 0 && limit < len(results) {
		results = results[len(results)-limit:]
	}

	return c.JSON(fiber.Map{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleClearHistory(c *fiber.Ctx) error {
	s.opts.Engine.ClearHistory()
	return c.JSON(fiber.Map{"status": "cleared"})
}

func (s *Server) handleBaselines(c *fiber.Ctx) error {
	return c.JSON(s.opts.Engine.Baselines())
}

func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	return c.JSON(s.opts.Engine.Config())
}

func (s *Server) handleUpdateConfig(c *fiber.Ctx) error {
	var patch correlation.ConfigPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.opts.Engine.UpdateConfiguration(patch); err != nil {
		return fail(c, err)
	}
	return c.JSON(s.opts.Engine.Config())
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	if err := s.opts.Engine.Start(); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"active": true})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	s.opts.Engine.Stop()
	return c.JSON(fiber.Map{"active": false})
}

func (s *Server) handleRestart(c *fiber.Ctx) error {
	restarted := s.opts.Engine.RestartIfStopped()
	return c.JSON(fiber.Map{
		"restarted": restarted,
		"active":    s.opts.Engine.Status().Active,
	})
}

func (s *Server) handleRun(c *fiber.Ctx) error {
	results, err := s.opts.Engine.RunCycle(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleClearBuffers(c *fiber.Ctx) error {
	s.opts.Engine.ClearBuffers()
	return c.JSON(fiber.Map{"status": "cleared"})
}

// handleReading accepts a single reading as the JSON body of
// POST /api/readings/{motion,emf,audio,environmental}. A missing
// timestamp defaults to the time of receipt.
func (s *Server) handleReading(c *fiber.Ctx) error {
	src, err := sensor.ParseSource(c.Params("source"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}

	body := append([]byte(nil), c.Body()...)
	msg := &protocol.Message{
		Type:      protocol.MessageType(src),
		Timestamp: time.Now().UnixMilli(),
		Data:      body,
	}
	r, err := msg.Reading()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.opts.Engine.Add(r); err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"source":    src,
		"timestamp": r.UnixMilli(),
	})
}
