package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-engine/internal/domain"
)

func newReportFixture() (*ReportService, *fakeTimerRepo, *fakeBreachRepo) {
	timers := newFakeTimerRepo()
	breaches := newFakeBreachRepo()
	policies, _, _ := newPolicyFixture()
	workflows, _, _ := newWorkflowFixture()
	svc := NewReportService(ReportDependencies{
		TimerRepo:  timers,
		BreachRepo: breaches,
		Policies:   policies,
		Workflows:  workflows,
	})
	return svc, timers, breaches
}

// seedTerminalTimer stores a finished timer directly, bypassing the engine.
func seedTerminalTimer(t *testing.T, timers *fakeTimerRepo, ticketID string, metric domain.TimerMetric, state domain.TimerState, accumulated time.Duration, terminalAt time.Time) {
	t.Helper()
	_, created, err := timers.Create(context.Background(), &domain.SLATimer{
		TicketID:    ticketID,
		Metric:      metric,
		PolicyID:    "policy-1",
		Priority:    domain.TicketPriorityHigh,
		State:       state,
		StartedAt:   terminalAt.Add(-accumulated),
		Target:      time.Hour,
		Accumulated: accumulated,
		TerminalAt:  &terminalAt,
	})
	require.NoError(t, err)
	require.True(t, created)
}

func TestComputeComplianceRate(t *testing.T) {
	svc, timers, breaches := newReportFixture()
	ctx := context.Background()

	terminalAt := testStart.Add(time.Hour)
	// ten resolved tickets: eight met, two breached
	for i := 0; i < 8; i++ {
		seedTerminalTimer(t, timers, ticketID(i), domain.TimerMetricResolution,
			domain.TimerStateMet, 40*time.Minute, terminalAt)
	}
	for i := 8; i < 10; i++ {
		seedTerminalTimer(t, timers, ticketID(i), domain.TimerMetricResolution,
			domain.TimerStateBreached, 90*time.Minute, terminalAt)
		_, err := breaches.Create(ctx, &domain.BreachRecord{
			TimerID:    ticketID(i),
			TicketID:   ticketID(i),
			BreachType: domain.BreachTypeResolution,
			DetectedAt: terminalAt,
		})
		require.NoError(t, err)
	}
	// response timers should feed avg response, not the ticket counts
	for i := 0; i < 10; i++ {
		seedTerminalTimer(t, timers, ticketID(i), domain.TimerMetricResponse,
			domain.TimerStateMet, 10*time.Minute, terminalAt)
	}

	snapshot, err := svc.ComputeCompliance(ctx, testStart, testStart.Add(2*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 10, snapshot.TotalTickets)
	assert.Equal(t, 8, snapshot.MetCount)
	assert.Equal(t, 2, snapshot.BreachedCount)
	assert.InDelta(t, 0.8, snapshot.ComplianceRate, 1e-9)
	assert.Equal(t, 10*time.Minute, snapshot.AvgResponseTime)
	assert.Equal(t, 50*time.Minute, snapshot.AvgResolutionTime)
	assert.Equal(t, 2, snapshot.BreachesByType[domain.BreachTypeResolution])
}

func ticketID(i int) string {
	return string(rune('a'+i)) + "-ticket"
}

func TestComputeComplianceEmptyRange(t *testing.T) {
	svc, _, _ := newReportFixture()

	snapshot, err := svc.ComputeCompliance(context.Background(), testStart, testStart.Add(time.Hour))
	require.NoError(t, err)

	assert.Zero(t, snapshot.TotalTickets)
	assert.Zero(t, snapshot.ComplianceRate)
	assert.Zero(t, snapshot.AvgResponseTime)
	assert.Zero(t, snapshot.AvgResolutionTime)
}

func TestComputeComplianceExcludesTimersOutsideRange(t *testing.T) {
	svc, timers, _ := newReportFixture()

	seedTerminalTimer(t, timers, "in-range", domain.TimerMetricResolution,
		domain.TimerStateMet, 30*time.Minute, testStart.Add(time.Hour))
	seedTerminalTimer(t, timers, "too-late", domain.TimerMetricResolution,
		domain.TimerStateMet, 30*time.Minute, testStart.Add(48*time.Hour))

	snapshot, err := svc.ComputeCompliance(context.Background(), testStart, testStart.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.TotalTickets)
}

func TestExportRowsMatchColumns(t *testing.T) {
	svc, timers, _ := newReportFixture()

	terminalAt := testStart.Add(90 * time.Minute)
	seedTerminalTimer(t, timers, "t-1", domain.TimerMetricResolution,
		domain.TimerStateBreached, 90*time.Minute, terminalAt)

	table, err := svc.Export(context.Background(), testStart, testStart.Add(2*time.Hour))
	require.NoError(t, err)

	require.Len(t, table.Rows, 1)
	row := table.Rows[0]
	require.Len(t, row, len(table.Columns))

	assert.Equal(t, "t-1", row[0])
	assert.Equal(t, "resolution", row[1])
	assert.Equal(t, "BREACHED", row[2])
	assert.Equal(t, terminalAt.UTC().Format(time.RFC3339), row[6])
	assert.Equal(t, "60", row[7])
	assert.Equal(t, "90", row[8])
	assert.Equal(t, "true", row[10])
}

func TestStatsAggregates(t *testing.T) {
	timers := newFakeTimerRepo()
	breaches := newFakeBreachRepo()
	policies, _, _ := newPolicyFixture()
	workflows, _, _ := newWorkflowFixture()
	svc := NewReportService(ReportDependencies{
		TimerRepo:  timers,
		BreachRepo: breaches,
		Policies:   policies,
		Workflows:  workflows,
	})
	ctx := context.Background()

	_, err := policies.Create(ctx, &domain.SLAPolicy{
		Name: "default", IsDefault: true, Targets: fullTargets(time.Hour, 4*time.Hour),
	})
	require.NoError(t, err)

	rule, err := workflows.Create(ctx, notifyRule("r", domain.RuleTriggerTicketCreated))
	require.NoError(t, err)
	_, err = workflows.Publish(ctx, rule.ID, testStart)
	require.NoError(t, err)
	_, err = workflows.Create(ctx, notifyRule("draft", domain.RuleTriggerTicketCreated))
	require.NoError(t, err)

	seedTerminalTimer(t, timers, "t-1", domain.TimerMetricResolution,
		domain.TimerStateMet, 30*time.Minute, testStart.Add(time.Hour))

	stats, err := svc.Stats(ctx, testStart, testStart.Add(2*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.PoliciesTotal)
	assert.Equal(t, 1, stats.PoliciesActive)
	assert.Equal(t, 1, stats.WorkflowsPublished)
	assert.Equal(t, 1, stats.WorkflowsDraft)
	assert.Equal(t, 1, stats.Timers.Met)
	assert.Equal(t, 1, stats.Compliance.TotalTickets)
}

func TestFormatHoursMinutes(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0h 0m"},
		{45 * time.Minute, "0h 45m"},
		{90 * time.Minute, "1h 30m"},
		{26*time.Hour + 5*time.Minute, "26h 5m"},
		{-time.Hour, "0h 0m"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, FormatHoursMinutes(tc.in))
	}
}
