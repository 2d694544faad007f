package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

const cacheKeyRulesPrefix = "sla:rules:"

// conditionFields is the closed vocabulary of fields a rule condition may
// reference. Unknown fields are rejected at publish time.
var conditionFields = map[string]bool{
	"ticket_id":     true,
	"priority":      true,
	"department_id": true,
	"status":        true,
	"assignee_id":   true,
	"metric_type":   true,
	"risk_level":    true,
}

// WorkflowService owns workflow rule configuration and evaluates published
// rules against live events.
type WorkflowService struct {
	rules    repository.RuleRepository
	executor ActionExecutor
	cache    Cache
	cacheTTL time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// WorkflowDependencies bundles collaborators for the workflow service.
type WorkflowDependencies struct {
	RuleRepo repository.RuleRepository
	Executor ActionExecutor
	Cache    Cache
	CacheTTL time.Duration
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// NewWorkflowService constructs the service.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	return &WorkflowService{
		rules:    deps.RuleRepo,
		executor: deps.Executor,
		cache:    deps.Cache,
		cacheTTL: deps.CacheTTL,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
}

// RegisterHandlers subscribes the evaluator to the events rules can trigger on.
func (s *WorkflowService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventTicketCreated, s.OnEvent)
	dispatcher.Subscribe(events.EventTicketUpdated, s.OnEvent)
	dispatcher.Subscribe(events.EventTicketAssigned, s.OnEvent)
	dispatcher.Subscribe(events.EventTimerAtRisk, s.OnEvent)
	dispatcher.Subscribe(events.EventTimerBreached, s.OnEvent)
}

// List returns rules, optionally filtered by status.
func (s *WorkflowService) List(ctx context.Context, status *domain.RuleStatus) ([]domain.WorkflowRule, error) {
	rules, err := s.rules.List(ctx, status)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return rules, nil
}

// Get returns one rule.
func (s *WorkflowService) Get(ctx context.Context, id string) (*domain.WorkflowRule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("workflow rule", map[string]any{"rule_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return rule, nil
}

// Create stores a new rule in draft status.
func (s *WorkflowService) Create(ctx context.Context, rule *domain.WorkflowRule) (*domain.WorkflowRule, error) {
	if strings.TrimSpace(rule.Name) == "" {
		return nil, apperrors.NewValidationError("rule name required", nil)
	}
	if !rule.Trigger.Valid() {
		return nil, apperrors.NewValidationError("unknown trigger",
			map[string]any{"trigger": string(rule.Trigger)})
	}
	rule.Status = domain.RuleStatusDraft
	rule.PublishedAt = nil
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, apperrors.MapError(err)
	}
	return rule, nil
}

// Update edits a draft rule. Published rules are immutable; edit via
// copy-then-republish so past events keep their original interpretation.
func (s *WorkflowService) Update(ctx context.Context, rule *domain.WorkflowRule) (*domain.WorkflowRule, error) {
	existing, err := s.Get(ctx, rule.ID)
	if err != nil {
		return nil, err
	}
	if existing.Status == domain.RuleStatusPublished {
		return nil, apperrors.NewConflict("published rules are immutable; copy then republish",
			map[string]any{"rule_id": rule.ID})
	}
	if !rule.Trigger.Valid() {
		return nil, apperrors.NewValidationError("unknown trigger",
			map[string]any{"trigger": string(rule.Trigger)})
	}
	rule.Status = domain.RuleStatusDraft
	rule.PublishedAt = nil
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, apperrors.MapError(err)
	}
	return rule, nil
}

// Publish validates the full rule definition and makes it live. Publishing
// takes effect only for events received afterwards.
func (s *WorkflowService) Publish(ctx context.Context, id string, now time.Time) (*domain.WorkflowRule, error) {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.Status == domain.RuleStatusPublished {
		return rule, nil
	}
	if err := s.validateDefinition(rule); err != nil {
		return nil, err
	}

	rule.Status = domain.RuleStatusPublished
	publishedAt := now
	rule.PublishedAt = &publishedAt
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.invalidateRules(ctx, rule.Trigger)
	s.logger.Info("workflow rule published",
		zap.String("rule_id", rule.ID), zap.String("trigger", string(rule.Trigger)))
	return rule, nil
}

// Unpublish returns a rule to draft.
func (s *WorkflowService) Unpublish(ctx context.Context, id string) (*domain.WorkflowRule, error) {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.Status == domain.RuleStatusDraft {
		return rule, nil
	}
	rule.Status = domain.RuleStatusDraft
	rule.PublishedAt = nil
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.invalidateRules(ctx, rule.Trigger)
	return rule, nil
}

// Counts returns rule totals for the stats query.
func (s *WorkflowService) Counts(ctx context.Context) (repository.RuleCounts, error) {
	counts, err := s.rules.Counts(ctx)
	if err != nil {
		return repository.RuleCounts{}, apperrors.MapError(err)
	}
	return counts, nil
}

// validateDefinition rejects unknown condition fields, operators and action
// kinds so evaluation never hits a silent no-op in production.
func (s *WorkflowService) validateDefinition(rule *domain.WorkflowRule) error {
	if !rule.Trigger.Valid() {
		return apperrors.NewValidationError("unknown trigger",
			map[string]any{"trigger": string(rule.Trigger)})
	}
	for i, condition := range rule.Conditions {
		if !conditionFields[condition.Field] {
			return apperrors.NewValidationError("unknown condition field",
				map[string]any{"index": i, "field": condition.Field})
		}
		if !condition.Operator.Valid() {
			return apperrors.NewValidationError("unknown condition operator",
				map[string]any{"index": i, "operator": string(condition.Operator)})
		}
	}
	if len(rule.Actions) == 0 {
		return apperrors.NewValidationError("rule has no actions", nil)
	}
	for i, action := range rule.Actions {
		if err := validateAction(action); err != nil {
			return apperrors.NewValidationError("invalid action",
				map[string]any{"index": i, "kind": string(action.Kind), "reason": err.Error()})
		}
	}
	return nil
}

func validateAction(action domain.RuleAction) error {
	switch action.Kind {
	case domain.ActionReassignToAgent:
		if action.AgentID == "" {
			return errors.New("agent_id required")
		}
	case domain.ActionReassignToTeam:
		if action.TeamID == "" {
			return errors.New("team_id required")
		}
	case domain.ActionChangePriority:
		if !action.Priority.Valid() {
			return errors.New("valid priority required")
		}
	case domain.ActionSendNotification:
		if action.Message == "" {
			return errors.New("message required")
		}
	case domain.ActionEscalateToDepartment:
		if action.DepartmentID == "" {
			return errors.New("department_id required")
		}
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
	return nil
}

// OnEvent matches the event against published rules for its trigger and
// executes every fully-matching rule's actions in declared order. A failing
// action is logged and does not abort sibling actions or other rules.
func (s *WorkflowService) OnEvent(ctx context.Context, event events.Event) error {
	trigger := domain.RuleTrigger(event.Type)
	if !trigger.Valid() {
		return nil
	}
	rules, err := s.publishedRules(ctx, trigger)
	if err != nil {
		s.logger.Error("load workflow rules failed",
			zap.String("trigger", string(trigger)), zap.Error(err))
		return nil
	}

	snapshot := eventSnapshot(event)
	for _, rule := range rules {
		if !rulesMatch(rule.Conditions, snapshot) {
			continue
		}
		s.executeRule(ctx, rule, event)
	}
	return nil
}

func (s *WorkflowService) executeRule(ctx context.Context, rule domain.WorkflowRule, event events.Event) {
	for _, action := range rule.Actions {
		if err := s.executeAction(ctx, action, event); err != nil {
			s.metrics.WorkflowActions.WithLabelValues(string(action.Kind), "error").Inc()
			s.logger.Error("workflow action failed",
				zap.String("rule_id", rule.ID),
				zap.String("action", string(action.Kind)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(apperrors.NewActionExecutionError(string(action.Kind), err)),
			)
			continue
		}
		s.metrics.WorkflowActions.WithLabelValues(string(action.Kind), "ok").Inc()
	}
}

func (s *WorkflowService) executeAction(ctx context.Context, action domain.RuleAction, event events.Event) error {
	switch action.Kind {
	case domain.ActionReassignToAgent:
		return s.executor.ReassignToAgent(ctx, event.TicketID, action.AgentID)
	case domain.ActionReassignToTeam:
		return s.executor.ReassignToTeam(ctx, event.TicketID, action.TeamID)
	case domain.ActionChangePriority:
		return s.executor.ChangePriority(ctx, event.TicketID, action.Priority)
	case domain.ActionSendNotification:
		return s.executor.SendNotification(ctx, event.TicketID, action.Message)
	case domain.ActionEscalateToDepartment:
		return s.executor.EscalateToDepartment(ctx, event.TicketID, action.DepartmentID)
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func (s *WorkflowService) publishedRules(ctx context.Context, trigger domain.RuleTrigger) ([]domain.WorkflowRule, error) {
	key := cacheKeyRulesPrefix + string(trigger)
	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, key); ok {
			var rules []domain.WorkflowRule
			if err := json.Unmarshal(raw, &rules); err == nil {
				return rules, nil
			}
		}
	}
	rules, err := s.rules.ListPublishedByTrigger(ctx, trigger)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if raw, err := json.Marshal(rules); err == nil {
			s.cache.Set(ctx, key, raw, s.cacheTTL)
		}
	}
	return rules, nil
}

func (s *WorkflowService) invalidateRules(ctx context.Context, trigger domain.RuleTrigger) {
	if s.cache == nil {
		return
	}
	s.cache.Delete(ctx, cacheKeyRulesPrefix+string(trigger))
}

// eventSnapshot flattens an event into the fields conditions may reference.
func eventSnapshot(event events.Event) map[string]any {
	snapshot := map[string]any{
		"ticket_id":     event.Ticket.TicketID,
		"priority":      string(event.Ticket.Priority),
		"department_id": event.Ticket.DepartmentID,
		"status":        string(event.Ticket.Status),
	}
	if event.Ticket.AssigneeID != nil {
		snapshot["assignee_id"] = *event.Ticket.AssigneeID
	}
	if payload, ok := event.Payload.(events.TimerEventPayload); ok {
		snapshot["metric_type"] = string(payload.Metric)
		if event.Type == events.EventTimerBreached {
			snapshot["risk_level"] = "breached"
		} else {
			snapshot["risk_level"] = string(domain.RiskLevelAtRisk)
		}
	}
	return snapshot
}

// rulesMatch applies AND semantics over the condition list. Unknown fields
// evaluate false, never panic.
func rulesMatch(conditions []domain.RuleCondition, snapshot map[string]any) bool {
	for _, condition := range conditions {
		if !evaluateCondition(condition, snapshot) {
			return false
		}
	}
	return true
}

func evaluateCondition(condition domain.RuleCondition, snapshot map[string]any) bool {
	value, exists := snapshot[condition.Field]
	if !exists {
		return false
	}
	actual := fmt.Sprint(value)

	switch condition.Operator {
	case domain.OperatorEquals:
		return actual == fmt.Sprint(condition.Value)
	case domain.OperatorNotEquals:
		return actual != fmt.Sprint(condition.Value)
	case domain.OperatorContains:
		return strings.Contains(actual, fmt.Sprint(condition.Value))
	case domain.OperatorIn:
		options, ok := condition.Value.([]any)
		if !ok {
			return false
		}
		for _, option := range options {
			if actual == fmt.Sprint(option) {
				return true
			}
		}
		return false
	case domain.OperatorGreaterThan, domain.OperatorLessThan:
		left, leftErr := strconv.ParseFloat(actual, 64)
		right, rightErr := strconv.ParseFloat(fmt.Sprint(condition.Value), 64)
		if leftErr != nil || rightErr != nil {
			return false
		}
		if condition.Operator == domain.OperatorGreaterThan {
			return left > right
		}
		return left < right
	default:
		return false
	}
}
