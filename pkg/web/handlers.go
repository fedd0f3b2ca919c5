package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-roomba/pkg/arena"
	"github.com/teslashibe/go-roomba/pkg/hub"
	"github.com/teslashibe/go-roomba/pkg/journal"
	"github.com/teslashibe/go-roomba/pkg/robot"
)

type activationOp string

const (
	opActivate   activationOp = "activate"
	opDeactivate activationOp = "deactivate"
	opToggle     activationOp = "toggle_activate"
)

// RobotSummary describes one hosted robot
type RobotSummary struct {
	Namespace     string      `json:"namespace"`
	Type          string      `json:"type"`
	ID            int         `json:"id"`
	State         robot.State `json:"state"`
	Active        bool        `json:"active"`
	RunningSlowly bool        `json:"running_slowly"`
	Session       string      `json:"session"`
	Stats         robot.Stats `json:"stats"`
}

// ActivationResponse is returned by the activation endpoints
type ActivationResponse struct {
	OK     bool `json:"ok"`
	Active bool `json:"active"`
}

// QuadRequest is the body of POST /api/quad
type QuadRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func summarize(c *robot.Controller) RobotSummary {
	id := c.Robot()
	return RobotSummary{
		Namespace:     id.Namespace(),
		Type:          string(id.Type),
		ID:            id.ID,
		State:         c.State(),
		Active:        c.IsActive(),
		RunningSlowly: c.RunningSlowly(),
		Session:       c.Session(),
		Stats:         c.Stats(),
	}
}

// handleError maps domain errors to status codes
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, robot.ErrUnknownRobot):
		code = fiber.StatusNotFound
	case errors.Is(err, robot.ErrInvalidNamespace):
		code = fiber.StatusBadRequest
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": Version,
		"robots":  s.fleet.Len(),
	})
}

// handleListRobots returns every hosted robot
func (s *Server) handleListRobots(c *fiber.Ctx) error {
	all := s.fleet.All()
	out := make([]RobotSummary, 0, len(all))
	for _, ctrl := range all {
		out = append(out, summarize(ctrl))
	}
	return c.JSON(out)
}

// handleRobotState returns the summary and the latest status report
func (s *Server) handleRobotState(c *fiber.Ctx) error {
	ctrl, err := s.fleet.Lookup(c.Params("ns"))
	if err != nil {
		return err
	}
	resp := fiber.Map{"robot": summarize(ctrl)}
	if report, ok := ctrl.Last(); ok {
		resp["report"] = report
		resp["text"] = report.String()
	}
	return c.JSON(resp)
}

// handleActivation builds the activate / deactivate / toggle handlers
func (s *Server) handleActivation(op activationOp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctrl, err := s.fleet.Lookup(c.Params("ns"))
		if err != nil {
			return err
		}
		var active bool
		switch op {
		case opActivate:
			active = ctrl.Activate()
		case opDeactivate:
			active = ctrl.Deactivate()
		case opToggle:
			active = ctrl.Toggle()
		}
		return c.JSON(ActivationResponse{OK: true, Active: active})
	}
}

// handleBumper returns the collision component of the latest directive
func (s *Server) handleBumper(c *fiber.Ctx) error {
	ctrl, err := s.fleet.Lookup(c.Params("ns"))
	if err != nil {
		return err
	}
	return c.JSON(ctrl.Bumper())
}

// handleEvents returns recent journal entries
func (s *Server) handleEvents(c *fiber.Ctx) error {
	if s.events == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "event journal disabled")
	}
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 1000 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 1000")
	}
	ns := c.Query("robot")
	if ns != "" {
		if _, err := robot.ParseNamespace(ns); err != nil {
			return err
		}
	}
	entries, err := s.events.Recent(c.UserContext(), ns, limit)
	if err != nil {
		return err
	}
	return c.JSON(entries)
}

// handleArena returns every known pose and the quad position
func (s *Server) handleArena(c *fiber.Ctx) error {
	if s.arena == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "arena registry disabled")
	}
	resp := fiber.Map{"robots": s.arena.Entries()}
	if q, ok := s.arena.Quad(); ok {
		resp["quad"] = q
	}
	return c.JSON(resp)
}

// handleSetQuad places the quad (simulation)
func (s *Server) handleSetQuad(c *fiber.Ctx) error {
	if s.arena == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "arena registry disabled")
	}
	var req QuadRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid quad position")
	}
	pos := robot.Vec3{X: req.X, Y: req.Y, Z: req.Z}
	if !pos.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "quad position must be finite")
	}
	s.arena.SetQuad(pos)
	return c.JSON(fiber.Map{"ok": true, "quad": pos})
}

// handleClearQuad removes the quad from the arena
func (s *Server) handleClearQuad(c *fiber.Ctx) error {
	if s.arena == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "arena registry disabled")
	}
	s.arena.ClearQuad()
	return c.JSON(fiber.Map{"ok": true})
}

// handleStateWS streams status reports to a websocket client
func (s *Server) handleStateWS(c *websocket.Conn) {
	if s.hub == nil {
		c.Close()
		return
	}
	hub.NewClient(s.hub, c).Run()
}

// Ensure the stores satisfy the server interfaces
var (
	_ Arena       = (*arena.Registry)(nil)
	_ EventReader = (*journal.Journal)(nil)
)
