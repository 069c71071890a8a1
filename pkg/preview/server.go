// Package preview serves a live view of the capture session: JPEG frames
// and frame events over websockets, plus a small JSON status API.
package preview

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-daheng/pkg/camctl"
	"github.com/teslashibe/go-daheng/pkg/gxi"
	"github.com/teslashibe/go-daheng/pkg/hub"
)

// Source is the session the server reports on. It is usually a
// *camctl.Session.
type Source interface {
	Status() camctl.Status
	Info() gxi.DeviceInfo
	Snapshot() []camctl.FeatureValue
}

// Server is the preview HTTP server.
type Server struct {
	app     *fiber.App
	port    int
	logger  *slog.Logger
	started time.Time

	mu  sync.RWMutex
	src Source

	// Hubs for websocket broadcast
	frames *hub.Hub
	events *hub.Hub
}

// NewServer creates a preview server listening on port.
func NewServer(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		port:    port,
		logger:  logger.With("component", "preview"),
		started: time.Now(),
		frames:  hub.New("frames", logger),
		events:  hub.New("events", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "gxdemo preview",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/device", s.handleDevice)
	api.Get("/features", s.handleFeatures)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/frames", websocket.New(s.serveHub(s.frames)))
	app.Get("/ws/events", websocket.New(s.serveHub(s.events)))

	s.app = app
	return s
}

// SetSource attaches the session to report on. nil detaches it.
func (s *Server) SetSource(src Source) {
	s.mu.Lock()
	s.src = src
	s.mu.Unlock()
}

func (s *Server) source() Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.src
}

// Frames returns the hub that carries JPEG previews.
func (s *Server) Frames() *hub.Hub { return s.frames }

// Events returns the hub that carries JSON frame events.
func (s *Server) Events() *hub.Hub { return s.events }

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Addr returns the listen address.
func (s *Server) Addr() string { return fmt.Sprintf(":%d", s.port) }

// Start runs the hubs and serves until Shutdown.
func (s *Server) Start() error {
	go s.frames.Run()
	go s.events.Run()

	s.logger.Info("preview listening", "url", fmt.Sprintf("http://localhost:%d", s.port))
	return s.app.Listen(s.Addr())
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("preview server stopped", "error", err)
		}
	}()
}

// Shutdown stops the server and the hubs.
func (s *Server) Shutdown() error {
	s.frames.Stop()
	s.events.Stop()
	return s.app.Shutdown()
}

func (s *Server) serveHub(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		s.logger.Debug("websocket client connected", "hub", h.Stats().Name, "remote", c.RemoteAddr().String())
		hub.NewClient(h, c).Run()
	}
}
