package api

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"pmengine/internal/control"
	"pmengine/internal/domain"
)

// defaultHistoryLimit caps switch listings when no limit is given.
const defaultHistoryLimit = 50

// ModeHandler handles HTTP requests for reading and switching the mode.
type ModeHandler struct {
	service       *control.Service
	switchTimeout time.Duration
	logger        *slog.Logger
}

// NewModeHandler creates a new mode handler.
// switchTimeout bounds how long a switch waits for in-flight operations.
func NewModeHandler(service *control.Service, switchTimeout time.Duration, logger *slog.Logger) *ModeHandler {
	return &ModeHandler{
		service:       service,
		switchTimeout: switchTimeout,
		logger:        logger,
	}
}

// ModeRequest is the request body for PUT /v1/mode.
type ModeRequest struct {
	HighPriority *bool `json:"high_priority"`
}

// ModeResponse reports the current mode.
type ModeResponse struct {
	HighPriority bool   `json:"high_priority"`
	Ordering     string `json:"ordering"`
}

// SwitchResponse reports the outcome of a mode change.
type SwitchResponse struct {
	Changed   bool               `json:"changed"`
	Persisted bool               `json:"persisted"`
	Switch    *domain.ModeSwitch `json:"switch,omitempty"`
}

// Get handles GET /v1/mode
func (h *ModeHandler) Get(c *fiber.Ctx) error {
	high := h.service.Mode()
	return Success(c, ModeResponse{
		HighPriority: high,
		Ordering:     domain.OrderingForMode(high).String(),
	})
}

// Set handles PUT /v1/mode
// Switches the engine and persists the new mode.
func (h *ModeHandler) Set(c *fiber.Ctx) error {
	var req ModeRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body: "+err.Error())
	}
	if req.HighPriority == nil {
		return ValidationError(c, "high_priority is required")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.switchTimeout)
	defer cancel()

	sw, err := h.service.SetMode(ctx, *req.HighPriority)
	switch {
	case err == nil:
		return Success(c, SwitchResponse{Changed: sw != nil, Persisted: sw != nil, Switch: sw})
	case errors.Is(err, control.ErrPersistFailed):
		// The switch took effect; only its persistence failed
		return Success(c, SwitchResponse{Changed: true, Persisted: false, Switch: sw})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.logger.Warn("mode switch timed out", "error", err, "high_priority", *req.HighPriority)
		return Unavailable(c, "mode switch timed out waiting for in-flight operations")
	default:
		h.logger.Error("failed to switch mode", "error", err)
		return InternalError(c, "failed to switch mode")
	}
}

// ListSwitches handles GET /v1/mode/switches
// Returns the most recent switches, newest first.
func (h *ModeHandler) ListSwitches(c *fiber.Ctx) error {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l <= 0 {
			return ValidationError(c, "limit must be a positive integer")
		}
		limit = l
	}

	switches, err := h.service.History(c.UserContext(), limit)
	if err != nil {
		h.logger.Error("failed to list mode switches", "error", err)
		return InternalError(c, "failed to list mode switches")
	}

	if switches == nil {
		switches = []*domain.ModeSwitch{}
	}
	return Success(c, switches)
}

// GetSwitch handles GET /v1/mode/switches/:id
func (h *ModeHandler) GetSwitch(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return BadRequest(c, "id is required")
	}

	sw, err := h.service.Switch(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, domain.ErrModeSwitchNotFound) {
			return NotFound(c, "mode switch not found")
		}
		h.logger.Error("failed to get mode switch", "error", err, "id", id)
		return InternalError(c, "failed to get mode switch")
	}

	return Success(c, sw)
}
