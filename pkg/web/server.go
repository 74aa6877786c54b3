// Package web serves the installation dashboard: live slots, loop status
// and the camera feed.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-jellyfish/internal/log"
	"github.com/teslashibe/go-jellyfish/pkg/hub"
	"github.com/teslashibe/go-jellyfish/pkg/protocol"
	"github.com/teslashibe/go-jellyfish/pkg/tracking"
)

// Server is the web dashboard server
type Server struct {
	app  *fiber.App
	port string
	log  *slog.Logger

	// Latest snapshots for the REST routes
	mu     sync.RWMutex
	status protocol.StatusData
	slots  protocol.SlotsData
	config any

	// Hubs for websocket broadcast
	liveHub   *hub.Hub // slots and status messages
	cameraHub *hub.Hub // JPEG frames

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new web dashboard server. The hubs start right away
// so broadcasts drain even if the listener never comes up.
func NewServer(port string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		port:      port,
		log:       log.Component("web"),
		slots:     protocol.SlotsData{Slots: []protocol.SlotState{}},
		liveHub:   hub.New("live"),
		cameraHub: hub.New("camera"),
		ctx:       ctx,
		cancel:    cancel,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Jellyfish Dashboard",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/slots", s.handleSlots)
	api.Get("/config", s.handleConfig)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/slots", websocket.New(s.handleSlotsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app

	go s.liveHub.Run(ctx)
	go s.cameraHub.Run(ctx)
	return s
}

// Start listens on the configured port and blocks until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return fmt.Errorf("web: listen on :%s: %w", s.port, err)
	}
	return s.Serve(ln)
}

// Serve runs the dashboard on ln and blocks until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("dashboard listening", "url", fmt.Sprintf("http://%s", ln.Addr()))
	return s.app.Listener(ln)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.log.Error("web server stopped", "error", err)
		}
	}()
}

// PublishSlots stores the slot snapshot and pushes it to live clients.
func (s *Server) PublishSlots(frame uint64, slots []tracking.Slot) error {
	data := protocol.SlotsData{Frame: frame, Slots: protocol.SlotStates(slots)}

	s.mu.Lock()
	s.slots = data
	s.mu.Unlock()

	msg, err := protocol.NewMessage(protocol.TypeSlots, data)
	if err != nil {
		return err
	}
	return s.liveHub.BroadcastJSON(msg)
}

// UpdateStatus stores the loop counters and pushes them to live clients.
func (s *Server) UpdateStatus(status protocol.StatusData) error {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()

	msg, err := protocol.NewStatusMessage(status)
	if err != nil {
		return err
	}
	return s.liveHub.BroadcastJSON(msg)
}

// SetConfigView sets the value served on /api/config.
func (s *Server) SetConfigView(v any) {
	s.mu.Lock()
	s.config = v
	s.mu.Unlock()
}

// SendCameraFrame sends the frame metadata followed by the JPEG bytes to
// all camera viewers.
func (s *Server) SendCameraFrame(frameID uint64, width, height int, jpegData []byte) error {
	msg, err := protocol.NewFrameMessage(width, height, frameID)
	if err != nil {
		return err
	}
	if err := s.cameraHub.BroadcastJSON(msg); err != nil {
		return err
	}
	s.cameraHub.BroadcastBinary(jpegData)
	return nil
}

// CameraClients returns the number of camera viewers. Encoding frames is
// skipped when nobody is watching.
func (s *Server) CameraClients() int {
	return s.cameraHub.ClientCount()
}

// Shutdown gracefully stops the web server. Connected clients are closed
// by their hubs before the listener goes away.
func (s *Server) Shutdown() error {
	s.cancel()
	for _, h := range []*hub.Hub{s.liveHub, s.cameraHub} {
		if !h.IsRunning() {
			continue
		}
		select {
		case <-h.Done():
		case <-time.After(time.Second):
			s.log.Warn("hub did not stop in time")
		}
	}
	return s.app.Shutdown()
}
