package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-market-api/database"
)

// HealthHandler reports process and database health.
type HealthHandler struct {
	store     database.Storage
	startedAt time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store database.Storage) *HealthHandler {
	return &HealthHandler{
		store:     store,
		startedAt: time.Now(),
	}
}

// Health handles GET /api/v1/health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	dbStatus := "up"
	status := fiber.StatusOK
	if err := h.store.HealthCheck(); err != nil {
		dbStatus = "down"
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"status":   dbStatus,
		"uptime":   time.Since(h.startedAt).String(),
		"database": dbStatus,
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}
