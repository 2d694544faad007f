package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/service"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// WorkflowsHandler manages the automation rule surface.
type WorkflowsHandler struct {
	workflows *service.WorkflowService
	clock     clock.Clock
}

// NewWorkflowsHandler constructs handler.
func NewWorkflowsHandler(workflows *service.WorkflowService, clk clock.Clock) *WorkflowsHandler {
	return &WorkflowsHandler{workflows: workflows, clock: clk}
}

// List GET /workflows. Accepts an optional status filter.
func (h *WorkflowsHandler) List(c *fiber.Ctx) error {
	var status *domain.RuleStatus
	if raw := c.Query("status"); raw != "" {
		parsed := domain.RuleStatus(raw)
		if parsed != domain.RuleStatusDraft && parsed != domain.RuleStatusPublished {
			return apperrors.NewValidationError("unknown rule status", map[string]any{"status": raw})
		}
		status = &parsed
	}
	rules, err := h.workflows.List(c.UserContext(), status)
	if err != nil {
		return err
	}
	out := make([]dto.RuleResponse, 0, len(rules))
	for i := range rules {
		out = append(out, dto.FromRule(&rules[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

// Get GET /workflows/:id.
func (h *WorkflowsHandler) Get(c *fiber.Ctx) error {
	rule, err := h.workflows.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromRule(rule)})
}

// Create POST /workflows. New rules always start as drafts.
func (h *WorkflowsHandler) Create(c *fiber.Ctx) error {
	var req dto.RuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	rule := &domain.WorkflowRule{
		Name:       req.Name,
		Trigger:    req.Trigger,
		Conditions: req.Conditions,
		Actions:    req.Actions,
	}
	created, err := h.workflows.Create(c.UserContext(), rule)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.FromRule(created)})
}

// Update PUT /workflows/:id. Published rules reject edits.
func (h *WorkflowsHandler) Update(c *fiber.Ctx) error {
	var req dto.RuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	rule := &domain.WorkflowRule{
		ID:         c.Params("id"),
		Name:       req.Name,
		Trigger:    req.Trigger,
		Conditions: req.Conditions,
		Actions:    req.Actions,
	}
	updated, err := h.workflows.Update(c.UserContext(), rule)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromRule(updated)})
}

// Publish POST /workflows/:id/publish.
func (h *WorkflowsHandler) Publish(c *fiber.Ctx) error {
	rule, err := h.workflows.Publish(c.UserContext(), c.Params("id"), h.clock.Now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromRule(rule)})
}

// Unpublish POST /workflows/:id/unpublish.
func (h *WorkflowsHandler) Unpublish(c *fiber.Ctx) error {
	rule, err := h.workflows.Unpublish(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromRule(rule)})
}
