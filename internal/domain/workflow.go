package domain

import "time"

// RuleStatus enumerates workflow rule lifecycle states.
type RuleStatus string

const (
	RuleStatusDraft     RuleStatus = "draft"
	RuleStatusPublished RuleStatus = "published"
)

// RuleTrigger is the closed vocabulary of events a rule can react to.
type RuleTrigger string

const (
	RuleTriggerTicketCreated  RuleTrigger = "ticket_created"
	RuleTriggerTicketUpdated  RuleTrigger = "ticket_updated"
	RuleTriggerTicketAssigned RuleTrigger = "ticket_assigned"
	RuleTriggerTimerAtRisk    RuleTrigger = "timer_at_risk"
	RuleTriggerTimerBreached  RuleTrigger = "timer_breached"
)

// Valid reports whether t is a known trigger.
func (t RuleTrigger) Valid() bool {
	switch t {
	case RuleTriggerTicketCreated, RuleTriggerTicketUpdated, RuleTriggerTicketAssigned,
		RuleTriggerTimerAtRisk, RuleTriggerTimerBreached:
		return true
	}
	return false
}

// ConditionOperator is the closed vocabulary of condition comparisons.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorIn          ConditionOperator = "in"
	OperatorContains    ConditionOperator = "contains"
	OperatorGreaterThan ConditionOperator = "greater_than"
	OperatorLessThan    ConditionOperator = "less_than"
)

// Valid reports whether o is a known operator.
func (o ConditionOperator) Valid() bool {
	switch o {
	case OperatorEquals, OperatorNotEquals, OperatorIn, OperatorContains,
		OperatorGreaterThan, OperatorLessThan:
		return true
	}
	return false
}

// RuleCondition is one field comparison; a rule matches only when every
// condition holds.
type RuleCondition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value"`
}

// ActionKind is the closed vocabulary of workflow actions.
type ActionKind string

const (
	ActionReassignToAgent      ActionKind = "reassign_to_agent"
	ActionReassignToTeam       ActionKind = "reassign_to_team"
	ActionChangePriority       ActionKind = "change_priority"
	ActionSendNotification     ActionKind = "send_notification"
	ActionEscalateToDepartment ActionKind = "escalate_to_department"
)

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionReassignToAgent, ActionReassignToTeam, ActionChangePriority,
		ActionSendNotification, ActionEscalateToDepartment:
		return true
	}
	return false
}

// RuleAction is a tagged variant over the action vocabulary. Exactly the
// fields relevant to the kind are populated; unknown kinds are rejected at
// publish time, never silently skipped at evaluation time.
type RuleAction struct {
	Kind         ActionKind     `json:"kind"`
	AgentID      string         `json:"agent_id,omitempty"`
	TeamID       string         `json:"team_id,omitempty"`
	DepartmentID string         `json:"department_id,omitempty"`
	Priority     TicketPriority `json:"priority,omitempty"`
	Message      string         `json:"message,omitempty"`
}

// WorkflowRule is a trigger/condition/action tuple. Only published rules are
// evaluated against live events.
type WorkflowRule struct {
	ID          string
	Name        string
	Status      RuleStatus
	Trigger     RuleTrigger
	Conditions  []RuleCondition
	Actions     []RuleAction
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
