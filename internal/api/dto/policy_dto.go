package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// TargetPayload carries one priority's targets in minutes, the unit the
// admin surface works in.
type TargetPayload struct {
	ResponseMinutes   int `json:"response_minutes"`
	ResolutionMinutes int `json:"resolution_minutes"`
}

// CreatePolicyRequest payload.
type CreatePolicyRequest struct {
	Name         string                                  `json:"name"`
	IsDefault    bool                                    `json:"is_default"`
	DepartmentID *string                                 `json:"department_id"`
	Targets      map[domain.TicketPriority]TargetPayload `json:"targets"`
}

// UpdatePolicyRequest payload.
type UpdatePolicyRequest struct {
	Name         string                                  `json:"name"`
	IsActive     *bool                                   `json:"is_active"`
	DepartmentID *string                                 `json:"department_id"`
	Targets      map[domain.TicketPriority]TargetPayload `json:"targets"`
}

// PolicyResponse response.
type PolicyResponse struct {
	ID           string                                  `json:"id"`
	Name         string                                  `json:"name"`
	IsDefault    bool                                    `json:"is_default"`
	IsActive     bool                                    `json:"is_active"`
	DepartmentID *string                                 `json:"department_id,omitempty"`
	Targets      map[domain.TicketPriority]TargetPayload `json:"targets"`
	CreatedAt    time.Time                               `json:"created_at"`
	UpdatedAt    time.Time                               `json:"updated_at"`
}

// ToDomainTargets converts minute payloads into durations.
func ToDomainTargets(targets map[domain.TicketPriority]TargetPayload) map[domain.TicketPriority]domain.PriorityTarget {
	out := make(map[domain.TicketPriority]domain.PriorityTarget, len(targets))
	for priority, target := range targets {
		out[priority] = domain.PriorityTarget{
			Response:   time.Duration(target.ResponseMinutes) * time.Minute,
			Resolution: time.Duration(target.ResolutionMinutes) * time.Minute,
		}
	}
	return out
}

// FromPolicy maps a domain policy to its response form.
func FromPolicy(policy *domain.SLAPolicy) PolicyResponse {
	targets := make(map[domain.TicketPriority]TargetPayload, len(policy.Targets))
	for priority, target := range policy.Targets {
		targets[priority] = TargetPayload{
			ResponseMinutes:   int(target.Response / time.Minute),
			ResolutionMinutes: int(target.Resolution / time.Minute),
		}
	}
	return PolicyResponse{
		ID:           policy.ID,
		Name:         policy.Name,
		IsDefault:    policy.IsDefault,
		IsActive:     policy.IsActive,
		DepartmentID: policy.DepartmentID,
		Targets:      targets,
		CreatedAt:    policy.CreatedAt,
		UpdatedAt:    policy.UpdatedAt,
	}
}
