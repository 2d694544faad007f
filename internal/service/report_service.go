package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// ReportService aggregates timer and breach history into compliance views.
// All operations are pure reads over repository projections: report
// generation never calls Evaluate and never transitions a timer.
type ReportService struct {
	timers   repository.TimerRepository
	breaches repository.BreachRepository
	policies *PolicyService
	rules    *WorkflowService
}

// ReportDependencies bundles collaborators for the report service.
type ReportDependencies struct {
	TimerRepo  repository.TimerRepository
	BreachRepo repository.BreachRepository
	Policies   *PolicyService
	Workflows  *WorkflowService
}

// NewReportService constructs the service.
func NewReportService(deps ReportDependencies) *ReportService {
	return &ReportService{
		timers:   deps.TimerRepo,
		breaches: deps.BreachRepo,
		policies: deps.Policies,
		rules:    deps.Workflows,
	}
}

// ComputeCompliance scans timers whose terminal transition falls in range.
// Ticket-level compliance follows the resolution timer; with no terminal
// timers in range the rate is 0, never NaN.
func (s *ReportService) ComputeCompliance(ctx context.Context, from, to time.Time) (*domain.ComplianceSnapshot, error) {
	timers, err := s.timers.ListTerminalInRange(ctx, from, to)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	breachCounts, err := s.breaches.CountByTypeInRange(ctx, from, to)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	snapshot := &domain.ComplianceSnapshot{
		From:           from,
		To:             to,
		BreachesByType: breachCounts,
	}

	var (
		responseTotal   time.Duration
		responseCount   int
		resolutionTotal time.Duration
		resolutionCount int
	)
	for _, timer := range timers {
		switch timer.Metric {
		case domain.TimerMetricResponse:
			responseTotal += timer.Accumulated
			responseCount++
		case domain.TimerMetricResolution:
			resolutionTotal += timer.Accumulated
			resolutionCount++
			snapshot.TotalTickets++
			if timer.State == domain.TimerStateMet {
				snapshot.MetCount++
			} else {
				snapshot.BreachedCount++
			}
		}
	}

	if denominator := snapshot.MetCount + snapshot.BreachedCount; denominator > 0 {
		snapshot.ComplianceRate = float64(snapshot.MetCount) / float64(denominator)
	}
	if responseCount > 0 {
		snapshot.AvgResponseTime = responseTotal / time.Duration(responseCount)
	}
	if resolutionCount > 0 {
		snapshot.AvgResolutionTime = resolutionTotal / time.Duration(resolutionCount)
	}
	return snapshot, nil
}

// BreachesByType is a pure aggregation over breach records.
func (s *ReportService) BreachesByType(ctx context.Context, from, to time.Time) (map[domain.BreachType]int, error) {
	counts, err := s.breaches.CountByTypeInRange(ctx, from, to)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return counts, nil
}

// Stats assembles the aggregate stats query: configuration counts, live timer
// population and compliance over the range.
func (s *ReportService) Stats(ctx context.Context, from, to time.Time) (*domain.EngineStats, error) {
	policyCounts, err := s.policies.Counts(ctx)
	if err != nil {
		return nil, err
	}
	ruleCounts, err := s.rules.Counts(ctx)
	if err != nil {
		return nil, err
	}
	timerCounts, err := s.timers.CountByState(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	compliance, err := s.ComputeCompliance(ctx, from, to)
	if err != nil {
		return nil, err
	}

	return &domain.EngineStats{
		PoliciesTotal:      policyCounts.Total,
		PoliciesActive:     policyCounts.Active,
		WorkflowsDraft:     ruleCounts.Draft,
		WorkflowsPublished: ruleCounts.Published,
		Timers:             timerCounts,
		Compliance:         *compliance,
	}, nil
}

var exportColumns = []string{
	"ticket_id", "metric", "state", "priority", "policy_id",
	"started_at", "terminal_at", "target_minutes", "active_minutes",
	"paused_minutes", "breached",
}

// Export flattens terminal timers in range into a row/column table for
// downstream CSV or spreadsheet rendering. Formatting and encoding are the
// caller's concern.
func (s *ReportService) Export(ctx context.Context, from, to time.Time) (*domain.ExportTable, error) {
	timers, err := s.timers.ListTerminalInRange(ctx, from, to)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	table := &domain.ExportTable{
		Columns: exportColumns,
		Rows:    make([][]string, 0, len(timers)),
	}
	for _, timer := range timers {
		terminalAt := ""
		if timer.TerminalAt != nil {
			terminalAt = timer.TerminalAt.UTC().Format(time.RFC3339)
		}
		table.Rows = append(table.Rows, []string{
			timer.TicketID,
			string(timer.Metric),
			string(timer.State),
			string(timer.Priority),
			timer.PolicyID,
			timer.StartedAt.UTC().Format(time.RFC3339),
			terminalAt,
			formatMinutes(timer.Target),
			formatMinutes(timer.Accumulated),
			formatMinutes(timer.TotalPaused()),
			strconv.FormatBool(timer.State == domain.TimerStateBreached),
		})
	}
	return table, nil
}

func formatMinutes(d time.Duration) string {
	return strconv.FormatInt(int64(d.Round(time.Minute)/time.Minute), 10)
}

// FormatHoursMinutes renders a duration as the human-facing "Xh Ym" form used
// in stats responses.
func FormatHoursMinutes(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Round(time.Minute) / time.Minute)
	return fmt.Sprintf("%dh %dm", total/60, total%60)
}
