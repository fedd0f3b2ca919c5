// Package web provides the HTTP and websocket surface of a roomba node
package web

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-roomba/pkg/arena"
	"github.com/teslashibe/go-roomba/pkg/hub"
	"github.com/teslashibe/go-roomba/pkg/journal"
	"github.com/teslashibe/go-roomba/pkg/robot"
)

// Version is reported by /healthz.
var Version = "dev"

// Arena is the part of the pose registry the API exposes.
type Arena interface {
	SetQuad(pos robot.Vec3)
	ClearQuad()
	Quad() (robot.Vec3, bool)
	Entries() []arena.Entry
}

// EventReader reads the event journal.
type EventReader interface {
	Recent(ctx context.Context, namespace string, limit int) ([]journal.Entry, error)
}

// Deps are the collaborators the server exposes. Fleet is required.
type Deps struct {
	Fleet   *robot.Fleet
	Arena   Arena       // optional
	Events  EventReader // optional
	Hub     *hub.Hub    // optional, enables /ws/state
	Logger  *slog.Logger
	Verbose bool // log every request
}

// Server is the node's HTTP server
type Server struct {
	app    *fiber.App
	addr   string
	fleet  *robot.Fleet
	arena  Arena
	events EventReader
	hub    *hub.Hub
	logger *slog.Logger
}

// NewServer creates a server listening on addr once started
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		addr:   addr,
		fleet:  deps.Fleet,
		arena:  deps.Arena,
		events: deps.Events,
		hub:    deps.Hub,
		logger: deps.Logger.With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "roomba",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if deps.Verbose {
		app.Use(logger.New())
	}

	app.Get("/healthz", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes
	api := app.Group("/api")
	api.Get("/robots", s.handleListRobots)
	api.Get("/robots/:ns/state", s.handleRobotState)
	api.Post("/robots/:ns/activate", s.handleActivation(opActivate))
	api.Post("/robots/:ns/deactivate", s.handleActivation(opDeactivate))
	api.Post("/robots/:ns/toggle_activate", s.handleActivation(opToggle))
	api.Get("/robots/:ns/bumper_trigger", s.handleBumper)
	api.Get("/events", s.handleEvents)
	api.Get("/arena", s.handleArena)
	api.Post("/quad", s.handleSetQuad)
	api.Delete("/quad", s.handleClearQuad)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))

	s.app = app
	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the web server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("web server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server error", "error", err)
		}
	}()
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
