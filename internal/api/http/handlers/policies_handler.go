package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/service"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// PoliciesHandler manages the SLA policy configuration surface.
type PoliciesHandler struct {
	policies *service.PolicyService
}

// NewPoliciesHandler constructs handler.
func NewPoliciesHandler(policies *service.PolicyService) *PoliciesHandler {
	return &PoliciesHandler{policies: policies}
}

// List GET /policies.
func (h *PoliciesHandler) List(c *fiber.Ctx) error {
	activeOnly := c.QueryBool("active_only", false)
	policies, err := h.policies.List(c.UserContext(), activeOnly)
	if err != nil {
		return err
	}
	out := make([]dto.PolicyResponse, 0, len(policies))
	for i := range policies {
		out = append(out, dto.FromPolicy(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

// Get GET /policies/:id.
func (h *PoliciesHandler) Get(c *fiber.Ctx) error {
	policy, err := h.policies.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromPolicy(policy)})
}

// Create POST /policies.
func (h *PoliciesHandler) Create(c *fiber.Ctx) error {
	var req dto.CreatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	policy := &domain.SLAPolicy{
		Name:         req.Name,
		IsDefault:    req.IsDefault,
		DepartmentID: req.DepartmentID,
		Targets:      dto.ToDomainTargets(req.Targets),
	}
	created, err := h.policies.Create(c.UserContext(), policy)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.FromPolicy(created)})
}

// Update PUT /policies/:id.
func (h *PoliciesHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	existing, err := h.policies.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	existing.Name = req.Name
	existing.DepartmentID = req.DepartmentID
	existing.Targets = dto.ToDomainTargets(req.Targets)
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	updated, err := h.policies.Update(c.UserContext(), existing)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromPolicy(updated)})
}

// SetDefault POST /policies/:id/default.
func (h *PoliciesHandler) SetDefault(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.policies.SetDefault(c.UserContext(), id); err != nil {
		return err
	}
	policy, err := h.policies.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromPolicy(policy)})
}

// Deactivate DELETE /policies/:id.
func (h *PoliciesHandler) Deactivate(c *fiber.Ctx) error {
	if err := h.policies.Deactivate(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
