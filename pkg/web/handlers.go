package web

import (
	"encoding/json"
	"errors"
	"io/fs"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-drivemind/pkg/eventlog"
	"github.com/teslashibe/go-drivemind/pkg/hub"
	"github.com/teslashibe/go-drivemind/pkg/trend"
)

const defaultEventTail = 50

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"clients": s.statusHub.ClientCount() + s.cameraHub.ClientCount() + s.advisoryHub.ClientCount(),
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	r, ok := s.source.Latest()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no samples processed yet",
		})
	}
	return c.JSON(r)
}

// handleSubjects lists every subject with samples in the trend window.
func (s *Server) handleSubjects(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"subjects": s.source.Subjects()})
}

// handleSummary returns the rolling trend for one subject; "unknown" selects
// unidentified drivers.
func (s *Server) handleSummary(c *fiber.Ctx) error {
	subject := c.Params("subject")
	return c.JSON(fiber.Map{
		"subject": trend.Key(subject),
		"summary": s.source.Summary(subject),
	})
}

func (s *Server) handleProfiles(c *fiber.Ctx) error {
	return c.JSON(s.profiles.All())
}

// handleEvents returns the newest event log rows as objects keyed by column.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	n := c.QueryInt("tail", defaultEventTail)
	if n <= 0 {
		n = defaultEventTail
	}

	rows, err := eventlog.Tail(s.cfg.EventsPath, n)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]string, len(eventlog.Header))
		for i, col := range eventlog.Header {
			m[col] = row[i]
		}
		out = append(out, m)
	}
	return c.JSON(out)
}

// handleStatusWS greets with the latest result, then streams updates.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var greeting []hub.Message
	if r, ok := s.source.Latest(); ok {
		if data, err := json.Marshal(r); err == nil {
			greeting = append(greeting, hub.NewJSONMessage(data))
		}
	}
	hub.Attach(s.statusHub, c, greeting...).Run()
}

func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.Attach(s.cameraHub, c).Run()
}

func (s *Server) handleAdvisoriesWS(c *websocket.Conn) {
	hub.Attach(s.advisoryHub, c).Run()
}
