package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

func newPolicyFixture() (*PolicyService, *fakePolicyRepo, *memCache) {
	repo := newFakePolicyRepo()
	cache := newMemCache()
	svc := NewPolicyService(PolicyDependencies{
		PolicyRepo: repo,
		Cache:      cache,
		CacheTTL:   time.Minute,
		Logger:     zap.NewNop(),
	})
	return svc, repo, cache
}

func fullTargets(response, resolution time.Duration) map[domain.TicketPriority]domain.PriorityTarget {
	targets := map[domain.TicketPriority]domain.PriorityTarget{}
	for _, priority := range domain.Priorities {
		targets[priority] = domain.PriorityTarget{Response: response, Resolution: resolution}
	}
	return targets
}

func TestValidateRejectsBadPolicies(t *testing.T) {
	svc, _, _ := newPolicyFixture()

	tests := []struct {
		name   string
		policy *domain.SLAPolicy
	}{
		{
			name:   "empty name",
			policy: &domain.SLAPolicy{Name: "  ", Targets: fullTargets(time.Hour, 2*time.Hour)},
		},
		{
			name:   "no targets",
			policy: &domain.SLAPolicy{Name: "p"},
		},
		{
			name: "missing priority level",
			policy: &domain.SLAPolicy{Name: "p", Targets: map[domain.TicketPriority]domain.PriorityTarget{
				domain.TicketPriorityUrgent: {Response: time.Hour, Resolution: 2 * time.Hour},
			}},
		},
		{
			name: "unknown priority level",
			policy: func() *domain.SLAPolicy {
				targets := fullTargets(time.Hour, 2*time.Hour)
				targets["CRITICAL"] = domain.PriorityTarget{Response: time.Hour, Resolution: 2 * time.Hour}
				return &domain.SLAPolicy{Name: "p", Targets: targets}
			}(),
		},
		{
			name:   "response exceeds resolution",
			policy: &domain.SLAPolicy{Name: "p", Targets: fullTargets(3*time.Hour, 2*time.Hour)},
		},
		{
			name: "negative target",
			policy: func() *domain.SLAPolicy {
				targets := fullTargets(time.Hour, 2*time.Hour)
				targets[domain.TicketPriorityLow] = domain.PriorityTarget{Response: -time.Minute, Resolution: time.Hour}
				return &domain.SLAPolicy{Name: "p", Targets: targets}
			}(),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Validate(tc.policy)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
		})
	}
}

func TestCreateAsDefaultDisplacesPreviousDefault(t *testing.T) {
	svc, repo, _ := newPolicyFixture()
	ctx := context.Background()

	first, err := svc.Create(ctx, &domain.SLAPolicy{
		Name: "first", IsDefault: true, Targets: fullTargets(time.Hour, 4*time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	second, err := svc.Create(ctx, &domain.SLAPolicy{
		Name: "second", IsDefault: true, Targets: fullTargets(time.Hour, 4*time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, second.IsDefault)

	assert.Equal(t, 1, repo.defaultCount())

	current, err := repo.GetDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
}

func TestResolvePrefersTicketOverride(t *testing.T) {
	svc, _, _ := newPolicyFixture()
	ctx := context.Background()

	deptID := "dept-billing"
	_, err := svc.Create(ctx, &domain.SLAPolicy{
		Name: "default", IsDefault: true, Targets: fullTargets(time.Hour, 4*time.Hour),
	})
	require.NoError(t, err)
	deptPolicy, err := svc.Create(ctx, &domain.SLAPolicy{
		Name: "billing", DepartmentID: &deptID, Targets: fullTargets(time.Hour, 4*time.Hour),
	})
	require.NoError(t, err)
	override, err := svc.Create(ctx, &domain.SLAPolicy{
		Name: "vip", Targets: fullTargets(30*time.Minute, time.Hour),
	})
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, domain.TicketSnapshot{
		TicketID:     "t-1",
		Priority:     domain.TicketPriorityHigh,
		DepartmentID: deptID,
		PolicyID:     &override.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, override.ID, resolved.ID)

	resolved, err = svc.Resolve(ctx, domain.TicketSnapshot{
		TicketID:     "t-2",
		Priority:     domain.TicketPriorityHigh,
		DepartmentID: deptID,
	})
	require.NoError(t, err)
	assert.Equal(t, deptPolicy.ID, resolved.ID)
}

func TestResolveFallsBackToDefault(t *testing.T) {
	svc, _, _ := newPolicyFixture()
	ctx := context.Background()

	fallback, err := svc.Create(ctx, &domain.SLAPolicy{
		Name: "default", IsDefault: true, Targets: fullTargets(time.Hour, 4*time.Hour),
	})
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, domain.TicketSnapshot{
		TicketID:     "t-1",
		Priority:     domain.TicketPriorityLow,
		DepartmentID: "dept-without-policy",
	})
	require.NoError(t, err)
	assert.Equal(t, fallback.ID, resolved.ID)
}

func TestResolveInactiveOverrideFallsBack(t *testing.T) {
	svc, _, _ := newPolicyFixture()
	ctx := context.Background()

	fallback, err := svc.Create(ctx, &domain.SLAPolicy{
		Name: "default", IsDefault: true, Targets: fullTargets(time.Hour, 4*time.Hour),
	})
	require.NoError(t, err)
	override, err := svc.Create(ctx, &domain.SLAPolicy{
		Name: "retired", Targets: fullTargets(time.Hour, 4*time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, override.ID))

	resolved, err := svc.Resolve(ctx, domain.TicketSnapshot{
		TicketID: "t-1",
		Priority: domain.TicketPriorityLow,
		PolicyID: &override.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, fallback.ID, resolved.ID)
}

func TestResolveWithoutAnyPolicySuspendsTracking(t *testing.T) {
	svc, _, _ := newPolicyFixture()

	_, err := svc.Resolve(context.Background(), domain.TicketSnapshot{
		TicketID: "t-1",
		Priority: domain.TicketPriorityLow,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "NO_POLICY_AVAILABLE"))
}

func TestSetDefaultUnknownPolicy(t *testing.T) {
	svc, _, _ := newPolicyFixture()

	err := svc.SetDefault(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestUpdateInvalidatesDepartmentCache(t *testing.T) {
	svc, _, cache := newPolicyFixture()
	ctx := context.Background()

	deptID := "dept-billing"
	policy, err := svc.Create(ctx, &domain.SLAPolicy{
		Name: "billing", DepartmentID: &deptID, Targets: fullTargets(time.Hour, 4*time.Hour),
	})
	require.NoError(t, err)

	// warm the cache, then verify the update evicts it
	_, err = svc.Resolve(ctx, domain.TicketSnapshot{
		TicketID: "t-1", Priority: domain.TicketPriorityLow, DepartmentID: deptID,
	})
	require.NoError(t, err)
	_, cached := cache.Get(ctx, cacheKeyDepartmentPrefix+deptID)
	require.True(t, cached)

	policy.Targets = fullTargets(30*time.Minute, time.Hour)
	_, err = svc.Update(ctx, policy)
	require.NoError(t, err)

	_, cached = cache.Get(ctx, cacheKeyDepartmentPrefix+deptID)
	assert.False(t, cached)
}
