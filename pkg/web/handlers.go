package web

import (
	_ "embed"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

//go:embed index.html
var indexHTML []byte

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html")
	return c.Send(indexHTML)
}

// handleStatus returns the latest loop counters
func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(s.status)
}

// handleSlots returns the latest slot snapshot
func (s *Server) handleSlots(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(s.slots)
}

// handleConfig returns the effective configuration
func (s *Server) handleConfig(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "configuration not published",
		})
	}
	return c.JSON(s.config)
}

// handleSlotsWS streams slot and status messages
func (s *Server) handleSlotsWS(c *websocket.Conn) {
	s.liveHub.Serve(c)
}

// handleCameraWS streams JPEG frames
func (s *Server) handleCameraWS(c *websocket.Conn) {
	s.cameraHub.Serve(c)
}
