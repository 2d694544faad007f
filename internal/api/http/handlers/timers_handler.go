package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/service"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// TimersHandler exposes timer inspection and the manual pause/resume
// controls used by operators.
type TimersHandler struct {
	engine *service.TimerEngine
	clock  clock.Clock
}

// NewTimersHandler constructs handler.
func NewTimersHandler(engine *service.TimerEngine, clk clock.Clock) *TimersHandler {
	return &TimersHandler{engine: engine, clock: clk}
}

// Get GET /timers/:id.
func (h *TimersHandler) Get(c *fiber.Ctx) error {
	timer, err := h.engine.GetTimer(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTimer(timer, h.clock.Now())})
}

// ListByTicket GET /timers/ticket/:ticketId.
func (h *TimersHandler) ListByTicket(c *fiber.Ctx) error {
	timers, err := h.engine.TimersForTicket(c.UserContext(), c.Params("ticketId"))
	if err != nil {
		return err
	}
	now := h.clock.Now()
	out := make([]dto.TimerResponse, 0, len(timers))
	for i := range timers {
		out = append(out, dto.FromTimer(&timers[i], now))
	}
	return c.JSON(fiber.Map{"data": out})
}

type pauseTimerRequest struct {
	Reason string `json:"reason"`
}

// Pause POST /timers/:id/pause.
func (h *TimersHandler) Pause(c *fiber.Ctx) error {
	var req pauseTimerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}
	now := h.clock.Now()
	timer, err := h.engine.Pause(c.UserContext(), c.Params("id"), req.Reason, now)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTimer(timer, now)})
}

// Resume POST /timers/:id/resume.
func (h *TimersHandler) Resume(c *fiber.Ctx) error {
	now := h.clock.Now()
	timer, err := h.engine.Resume(c.UserContext(), c.Params("id"), now)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTimer(timer, now)})
}

// Evaluate POST /timers/:id/evaluate. Forces an immediate re-check outside
// the periodic sweep.
func (h *TimersHandler) Evaluate(c *fiber.Ctx) error {
	now := h.clock.Now()
	result, err := h.engine.Evaluate(c.UserContext(), c.Params("id"), now)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTimer(result.Timer, now)})
}
