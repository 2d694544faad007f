package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// RuleRequest payload for create/update.
type RuleRequest struct {
	Name       string                 `json:"name"`
	Trigger    domain.RuleTrigger     `json:"trigger"`
	Conditions []domain.RuleCondition `json:"conditions"`
	Actions    []domain.RuleAction    `json:"actions"`
}

// RuleResponse response.
type RuleResponse struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Status      domain.RuleStatus      `json:"status"`
	Trigger     domain.RuleTrigger     `json:"trigger"`
	Conditions  []domain.RuleCondition `json:"conditions"`
	Actions     []domain.RuleAction    `json:"actions"`
	PublishedAt *time.Time             `json:"published_at,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// FromRule maps a domain rule to its response form.
func FromRule(rule *domain.WorkflowRule) RuleResponse {
	return RuleResponse{
		ID:          rule.ID,
		Name:        rule.Name,
		Status:      rule.Status,
		Trigger:     rule.Trigger,
		Conditions:  rule.Conditions,
		Actions:     rule.Actions,
		PublishedAt: rule.PublishedAt,
		CreatedAt:   rule.CreatedAt,
		UpdatedAt:   rule.UpdatedAt,
	}
}
