package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// fakeClock is a settable clock for deterministic duration math.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// memCache is an in-memory Cache without TTL expiry.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	return raw, ok
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *memCache) Delete(_ context.Context, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
}

// fakeTimerRepo mirrors the storage contract: unique (ticket_id, metric)
// pair, copies in and out so callers never share instances.
type fakeTimerRepo struct {
	mu     sync.Mutex
	seq    int
	timers map[string]*domain.SLATimer
}

func newFakeTimerRepo() *fakeTimerRepo {
	return &fakeTimerRepo{timers: map[string]*domain.SLATimer{}}
}

func copyTimer(t *domain.SLATimer) *domain.SLATimer {
	out := *t
	out.Pauses = append([]domain.PauseInterval{}, t.Pauses...)
	if t.AtRiskAt != nil {
		at := *t.AtRiskAt
		out.AtRiskAt = &at
	}
	if t.TerminalAt != nil {
		at := *t.TerminalAt
		out.TerminalAt = &at
	}
	return &out
}

func (r *fakeTimerRepo) Create(_ context.Context, timer *domain.SLATimer) (*domain.SLATimer, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.timers {
		if existing.TicketID == timer.TicketID && existing.Metric == timer.Metric {
			return copyTimer(existing), false, nil
		}
	}
	r.seq++
	stored := copyTimer(timer)
	stored.ID = fmt.Sprintf("timer-%d", r.seq)
	stored.CreatedAt = timer.StartedAt
	stored.UpdatedAt = timer.StartedAt
	r.timers[stored.ID] = stored
	return copyTimer(stored), true, nil
}

func (r *fakeTimerRepo) Update(_ context.Context, timer *domain.SLATimer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.timers[timer.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.timers[timer.ID] = copyTimer(timer)
	return nil
}

func (r *fakeTimerRepo) GetByID(_ context.Context, id string) (*domain.SLATimer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	timer, ok := r.timers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyTimer(timer), nil
}

func (r *fakeTimerRepo) GetByTicketMetric(_ context.Context, ticketID string, metric domain.TimerMetric) (*domain.SLATimer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, timer := range r.timers {
		if timer.TicketID == ticketID && timer.Metric == metric {
			return copyTimer(timer), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTimerRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.SLATimer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SLATimer
	// response before resolution keeps assertions stable
	for _, metric := range []domain.TimerMetric{domain.TimerMetricResponse, domain.TimerMetricResolution} {
		for _, timer := range r.timers {
			if timer.TicketID == ticketID && timer.Metric == metric {
				out = append(out, *copyTimer(timer))
			}
		}
	}
	return out, nil
}

func (r *fakeTimerRepo) ListRunningIDs(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, timer := range r.timers {
		if timer.State == domain.TimerStateRunning {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeTimerRepo) ListTerminalInRange(_ context.Context, from, to time.Time) ([]domain.SLATimer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SLATimer
	for _, timer := range r.timers {
		if timer.TerminalAt == nil {
			continue
		}
		if timer.TerminalAt.Before(from) || timer.TerminalAt.After(to) {
			continue
		}
		out = append(out, *copyTimer(timer))
	}
	return out, nil
}

func (r *fakeTimerRepo) CountByState(_ context.Context) (domain.TimerStateCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var counts domain.TimerStateCounts
	for _, timer := range r.timers {
		switch timer.State {
		case domain.TimerStateRunning:
			counts.Running++
			if timer.AtRiskAt != nil {
				counts.AtRisk++
			}
		case domain.TimerStatePaused:
			counts.Paused++
		case domain.TimerStateMet:
			counts.Met++
		case domain.TimerStateBreached:
			counts.Breached++
		}
	}
	return counts, nil
}

// fakeBreachRepo enforces the unique timer_id constraint.
type fakeBreachRepo struct {
	mu      sync.Mutex
	seq     int
	records map[string]*domain.BreachRecord
}

func newFakeBreachRepo() *fakeBreachRepo {
	return &fakeBreachRepo{records: map[string]*domain.BreachRecord{}}
}

func (r *fakeBreachRepo) Create(_ context.Context, record *domain.BreachRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.TimerID]; ok {
		return false, nil
	}
	r.seq++
	stored := *record
	stored.ID = fmt.Sprintf("breach-%d", r.seq)
	r.records[record.TimerID] = &stored
	record.ID = stored.ID
	return true, nil
}

func (r *fakeBreachRepo) ListInRange(_ context.Context, from, to time.Time) ([]domain.BreachRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.BreachRecord
	for _, record := range r.records {
		if record.DetectedAt.Before(from) || record.DetectedAt.After(to) {
			continue
		}
		out = append(out, *record)
	}
	return out, nil
}

func (r *fakeBreachRepo) CountByTypeInRange(ctx context.Context, from, to time.Time) (map[domain.BreachType]int, error) {
	records, err := r.ListInRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	counts := map[domain.BreachType]int{}
	for _, record := range records {
		counts[record.BreachType]++
	}
	return counts, nil
}

func (r *fakeBreachRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// fakePolicyRepo keeps the single-default invariant the way the partial
// unique index does.
type fakePolicyRepo struct {
	mu       sync.Mutex
	seq      int
	policies map[string]*domain.SLAPolicy
}

func newFakePolicyRepo() *fakePolicyRepo {
	return &fakePolicyRepo{policies: map[string]*domain.SLAPolicy{}}
}

func copyPolicy(p *domain.SLAPolicy) *domain.SLAPolicy {
	out := *p
	if p.DepartmentID != nil {
		id := *p.DepartmentID
		out.DepartmentID = &id
	}
	out.Targets = make(map[domain.TicketPriority]domain.PriorityTarget, len(p.Targets))
	for priority, target := range p.Targets {
		out.Targets[priority] = target
	}
	return &out
}

func (r *fakePolicyRepo) Create(_ context.Context, policy *domain.SLAPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if policy.ID == "" {
		policy.ID = fmt.Sprintf("policy-%d", r.seq)
	}
	r.policies[policy.ID] = copyPolicy(policy)
	return nil
}

func (r *fakePolicyRepo) Update(_ context.Context, policy *domain.SLAPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[policy.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.policies[policy.ID] = copyPolicy(policy)
	return nil
}

func (r *fakePolicyRepo) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	policy, ok := r.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyPolicy(policy), nil
}

func (r *fakePolicyRepo) List(_ context.Context, activeOnly bool) ([]domain.SLAPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SLAPolicy
	for _, policy := range r.policies {
		if activeOnly && !policy.IsActive {
			continue
		}
		out = append(out, *copyPolicy(policy))
	}
	return out, nil
}

func (r *fakePolicyRepo) GetDefault(_ context.Context) (*domain.SLAPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, policy := range r.policies {
		if policy.IsDefault && policy.IsActive {
			return copyPolicy(policy), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakePolicyRepo) FindByDepartment(_ context.Context, departmentID string) (*domain.SLAPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, policy := range r.policies {
		if policy.IsActive && policy.DepartmentID != nil && *policy.DepartmentID == departmentID {
			return copyPolicy(policy), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakePolicyRepo) SetDefault(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.policies[id]
	if !ok {
		return pgx.ErrNoRows
	}
	for _, policy := range r.policies {
		policy.IsDefault = false
	}
	target.IsDefault = true
	return nil
}

func (r *fakePolicyRepo) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	policy, ok := r.policies[id]
	if !ok {
		return pgx.ErrNoRows
	}
	policy.IsActive = false
	return nil
}

func (r *fakePolicyRepo) Counts(_ context.Context) (repository.PolicyCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := repository.PolicyCounts{}
	for _, policy := range r.policies {
		counts.Total++
		if policy.IsActive {
			counts.Active++
		}
	}
	return counts, nil
}

func (r *fakePolicyRepo) defaultCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, policy := range r.policies {
		if policy.IsDefault {
			count++
		}
	}
	return count
}

// fakeRuleRepo stores workflow rules.
type fakeRuleRepo struct {
	mu    sync.Mutex
	seq   int
	rules map[string]*domain.WorkflowRule
}

func newFakeRuleRepo() *fakeRuleRepo {
	return &fakeRuleRepo{rules: map[string]*domain.WorkflowRule{}}
}

func copyRule(rule *domain.WorkflowRule) *domain.WorkflowRule {
	out := *rule
	out.Conditions = append([]domain.RuleCondition{}, rule.Conditions...)
	out.Actions = append([]domain.RuleAction{}, rule.Actions...)
	if rule.PublishedAt != nil {
		at := *rule.PublishedAt
		out.PublishedAt = &at
	}
	return &out
}

func (r *fakeRuleRepo) Create(_ context.Context, rule *domain.WorkflowRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if rule.ID == "" {
		rule.ID = fmt.Sprintf("rule-%d", r.seq)
	}
	r.rules[rule.ID] = copyRule(rule)
	return nil
}

func (r *fakeRuleRepo) Update(_ context.Context, rule *domain.WorkflowRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rule.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.rules[rule.ID] = copyRule(rule)
	return nil
}

func (r *fakeRuleRepo) GetByID(_ context.Context, id string) (*domain.WorkflowRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyRule(rule), nil
}

func (r *fakeRuleRepo) List(_ context.Context, status *domain.RuleStatus) ([]domain.WorkflowRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.WorkflowRule
	for _, rule := range r.rules {
		if status != nil && rule.Status != *status {
			continue
		}
		out = append(out, *copyRule(rule))
	}
	return out, nil
}

func (r *fakeRuleRepo) ListPublishedByTrigger(_ context.Context, trigger domain.RuleTrigger) ([]domain.WorkflowRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.WorkflowRule
	for _, rule := range r.rules {
		if rule.Status == domain.RuleStatusPublished && rule.Trigger == trigger {
			out = append(out, *copyRule(rule))
		}
	}
	return out, nil
}

func (r *fakeRuleRepo) Counts(_ context.Context) (repository.RuleCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := repository.RuleCounts{}
	for _, rule := range r.rules {
		if rule.Status == domain.RuleStatusPublished {
			counts.Published++
		} else {
			counts.Draft++
		}
	}
	return counts, nil
}

// executedAction records one executor invocation.
type executedAction struct {
	Kind     domain.ActionKind
	TicketID string
	Value    string
}

// fakeExecutor records actions and can be told to fail specific kinds.
type fakeExecutor struct {
	mu       sync.Mutex
	actions  []executedAction
	failKind domain.ActionKind
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{}
}

func (e *fakeExecutor) record(kind domain.ActionKind, ticketID, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failKind != "" && kind == e.failKind {
		return fmt.Errorf("simulated %s failure", kind)
	}
	e.actions = append(e.actions, executedAction{Kind: kind, TicketID: ticketID, Value: value})
	return nil
}

func (e *fakeExecutor) Executed() []executedAction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]executedAction{}, e.actions...)
}

func (e *fakeExecutor) ReassignToAgent(_ context.Context, ticketID, agentID string) error {
	return e.record(domain.ActionReassignToAgent, ticketID, agentID)
}

func (e *fakeExecutor) ReassignToTeam(_ context.Context, ticketID, teamID string) error {
	return e.record(domain.ActionReassignToTeam, ticketID, teamID)
}

func (e *fakeExecutor) ChangePriority(_ context.Context, ticketID string, priority domain.TicketPriority) error {
	return e.record(domain.ActionChangePriority, ticketID, string(priority))
}

func (e *fakeExecutor) SendNotification(_ context.Context, ticketID, message string) error {
	return e.record(domain.ActionSendNotification, ticketID, message)
}

func (e *fakeExecutor) EscalateToDepartment(_ context.Context, ticketID, departmentID string) error {
	return e.record(domain.ActionEscalateToDepartment, ticketID, departmentID)
}
