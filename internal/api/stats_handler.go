package api

import (
	"github.com/gofiber/fiber/v2"

	"pmengine/internal/control"
)

// StatsHandler serves engine statistics.
type StatsHandler struct {
	service *control.Service
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(service *control.Service) *StatsHandler {
	return &StatsHandler{service: service}
}

// Get handles GET /v1/stats
func (h *StatsHandler) Get(c *fiber.Ctx) error {
	return Success(c, h.service.Stats())
}
