package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

const (
	cacheKeyDefaultPolicy    = "sla:policy:default"
	cacheKeyDepartmentPrefix = "sla:policy:dept:"
)

// PolicyService owns SLA policy configuration and resolution.
type PolicyService struct {
	policies repository.PolicyRepository
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// PolicyDependencies bundles collaborators for the policy service.
type PolicyDependencies struct {
	PolicyRepo repository.PolicyRepository
	Cache      Cache
	CacheTTL   time.Duration
	Logger     *zap.Logger
}

// NewPolicyService constructs the service.
func NewPolicyService(deps PolicyDependencies) *PolicyService {
	return &PolicyService{
		policies: deps.PolicyRepo,
		cache:    deps.Cache,
		cacheTTL: deps.CacheTTL,
		logger:   deps.Logger,
	}
}

// Resolve selects the policy applicable to the ticket: explicit per-ticket
// override first, then the most specific active department match, then the
// single default. A NO_POLICY_AVAILABLE error means SLA tracking is suspended
// for this ticket, not that the pipeline failed.
func (s *PolicyService) Resolve(ctx context.Context, ticket domain.TicketSnapshot) (*domain.SLAPolicy, error) {
	if ticket.PolicyID != nil && *ticket.PolicyID != "" {
		policy, err := s.policies.GetByID(ctx, *ticket.PolicyID)
		if err == nil && policy.IsActive {
			return policy, nil
		}
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.MapError(err)
		}
		s.logger.Warn("ticket policy override missing or inactive, falling back",
			zap.String("ticket_id", ticket.TicketID), zap.String("policy_id", *ticket.PolicyID))
	}

	if ticket.DepartmentID != "" {
		policy, err := s.departmentPolicy(ctx, ticket.DepartmentID)
		if err != nil {
			return nil, err
		}
		if policy != nil {
			return policy, nil
		}
	}

	policy, err := s.defaultPolicy(ctx)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, apperrors.NewNoPolicyAvailable(ticket.TicketID)
	}
	return policy, nil
}

func (s *PolicyService) departmentPolicy(ctx context.Context, departmentID string) (*domain.SLAPolicy, error) {
	key := cacheKeyDepartmentPrefix + departmentID
	if cached := s.cachedPolicy(ctx, key); cached != nil {
		return cached, nil
	}
	policy, err := s.policies.FindByDepartment(ctx, departmentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.cachePolicy(ctx, key, policy)
	return policy, nil
}

func (s *PolicyService) defaultPolicy(ctx context.Context) (*domain.SLAPolicy, error) {
	if cached := s.cachedPolicy(ctx, cacheKeyDefaultPolicy); cached != nil {
		return cached, nil
	}
	policy, err := s.policies.GetDefault(ctx)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.cachePolicy(ctx, cacheKeyDefaultPolicy, policy)
	return policy, nil
}

func (s *PolicyService) cachedPolicy(ctx context.Context, key string) *domain.SLAPolicy {
	if s.cache == nil {
		return nil
	}
	raw, ok := s.cache.Get(ctx, key)
	if !ok {
		return nil
	}
	var policy domain.SLAPolicy
	if err := json.Unmarshal(raw, &policy); err != nil {
		return nil
	}
	return &policy
}

func (s *PolicyService) cachePolicy(ctx context.Context, key string, policy *domain.SLAPolicy) {
	if s.cache == nil || policy == nil {
		return
	}
	raw, err := json.Marshal(policy)
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, raw, s.cacheTTL)
}

func (s *PolicyService) invalidate(ctx context.Context, policy *domain.SLAPolicy) {
	if s.cache == nil {
		return
	}
	keys := []string{cacheKeyDefaultPolicy}
	if policy != nil && policy.DepartmentID != nil {
		keys = append(keys, cacheKeyDepartmentPrefix+*policy.DepartmentID)
	}
	s.cache.Delete(ctx, keys...)
}

// Validate enforces the per-priority response <= resolution invariant.
func (s *PolicyService) Validate(policy *domain.SLAPolicy) error {
	if strings.TrimSpace(policy.Name) == "" {
		return apperrors.NewValidationError("policy name required", nil)
	}
	if len(policy.Targets) == 0 {
		return apperrors.NewValidationError("policy targets required", nil)
	}
	for priority, target := range policy.Targets {
		if !priority.Valid() {
			return apperrors.NewValidationError("unknown priority level",
				map[string]any{"priority": string(priority)})
		}
		if target.Response < 0 || target.Resolution < 0 {
			return apperrors.NewValidationError("targets must be non-negative",
				map[string]any{"priority": string(priority)})
		}
		if target.Response > target.Resolution {
			return apperrors.NewValidationError("response target exceeds resolution target",
				map[string]any{"priority": string(priority)})
		}
	}
	for _, priority := range domain.Priorities {
		if _, ok := policy.Targets[priority]; !ok {
			return apperrors.NewValidationError("missing targets for priority",
				map[string]any{"priority": string(priority)})
		}
	}
	return nil
}

// List returns all policies.
func (s *PolicyService) List(ctx context.Context, activeOnly bool) ([]domain.SLAPolicy, error) {
	policies, err := s.policies.List(ctx, activeOnly)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return policies, nil
}

// Get returns a single policy.
func (s *PolicyService) Get(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("policy", map[string]any{"policy_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return policy, nil
}

// Create validates and stores a new policy. A policy created as default
// atomically displaces the previous default.
func (s *PolicyService) Create(ctx context.Context, policy *domain.SLAPolicy) (*domain.SLAPolicy, error) {
	if err := s.Validate(policy); err != nil {
		return nil, err
	}
	wantDefault := policy.IsDefault
	policy.IsDefault = false
	policy.IsActive = true
	if err := s.policies.Create(ctx, policy); err != nil {
		return nil, apperrors.MapError(err)
	}
	if wantDefault {
		if err := s.SetDefault(ctx, policy.ID); err != nil {
			return nil, err
		}
		policy.IsDefault = true
	}
	s.invalidate(ctx, policy)
	return policy, nil
}

// Update validates and stores edits to a policy. Default designation is
// managed through SetDefault only.
func (s *PolicyService) Update(ctx context.Context, policy *domain.SLAPolicy) (*domain.SLAPolicy, error) {
	if err := s.Validate(policy); err != nil {
		return nil, err
	}
	if err := s.policies.Update(ctx, policy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("policy", map[string]any{"policy_id": policy.ID})
		}
		return nil, apperrors.MapError(err)
	}
	s.invalidate(ctx, policy)
	return policy, nil
}

// SetDefault atomically swaps the default designation: after it returns,
// exactly one policy is default.
func (s *PolicyService) SetDefault(ctx context.Context, id string) error {
	if err := s.policies.SetDefault(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("policy", map[string]any{"policy_id": id})
		}
		return apperrors.MapError(err)
	}
	s.invalidate(ctx, nil)
	return nil
}

// Deactivate soft-disables a policy. In-flight timers keep their snapshotted
// targets, so this never affects running tickets.
func (s *PolicyService) Deactivate(ctx context.Context, id string) error {
	policy, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policies.Deactivate(ctx, id); err != nil {
		return apperrors.MapError(err)
	}
	s.invalidate(ctx, policy)
	s.logger.Info("policy deactivated", zap.String("policy_id", id))
	return nil
}

// Counts returns policy totals for the stats query.
func (s *PolicyService) Counts(ctx context.Context) (repository.PolicyCounts, error) {
	counts, err := s.policies.Counts(ctx)
	if err != nil {
		return repository.PolicyCounts{}, apperrors.MapError(err)
	}
	return counts, nil
}
