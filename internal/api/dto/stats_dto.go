package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/service"
)

// ComplianceResponse response.
type ComplianceResponse struct {
	From                   time.Time                 `json:"from"`
	To                     time.Time                 `json:"to"`
	TotalTickets           int                       `json:"total_tickets"`
	MetCount               int                       `json:"met_count"`
	BreachedCount          int                       `json:"breached_count"`
	ComplianceRatePercent  float64                   `json:"compliance_rate_percent"`
	AvgResponseMinutes     int                       `json:"avg_response_minutes"`
	AvgResponseHuman       string                    `json:"avg_response_human"`
	AvgResolutionMinutes   int                       `json:"avg_resolution_minutes"`
	AvgResolutionHuman     string                    `json:"avg_resolution_human"`
	BreachesByType         map[domain.BreachType]int `json:"breaches_by_type"`
}

// StatsResponse response for the aggregate stats query.
type StatsResponse struct {
	PoliciesTotal      int                     `json:"policies_total"`
	PoliciesActive     int                     `json:"policies_active"`
	WorkflowsDraft     int                     `json:"workflows_draft"`
	WorkflowsPublished int                     `json:"workflows_published"`
	Timers             domain.TimerStateCounts `json:"timers"`
	Compliance         ComplianceResponse      `json:"compliance"`
}

// ExportResponse is the flat table handed to downstream renderers.
type ExportResponse struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// FromCompliance maps a snapshot to its response form.
func FromCompliance(snapshot *domain.ComplianceSnapshot) ComplianceResponse {
	return ComplianceResponse{
		From:                  snapshot.From,
		To:                    snapshot.To,
		TotalTickets:          snapshot.TotalTickets,
		MetCount:              snapshot.MetCount,
		BreachedCount:         snapshot.BreachedCount,
		ComplianceRatePercent: snapshot.ComplianceRate * 100,
		AvgResponseMinutes:    int(snapshot.AvgResponseTime / time.Minute),
		AvgResponseHuman:      service.FormatHoursMinutes(snapshot.AvgResponseTime),
		AvgResolutionMinutes:  int(snapshot.AvgResolutionTime / time.Minute),
		AvgResolutionHuman:    service.FormatHoursMinutes(snapshot.AvgResolutionTime),
		BreachesByType:        snapshot.BreachesByType,
	}
}

// FromStats maps engine stats to the response form.
func FromStats(stats *domain.EngineStats) StatsResponse {
	return StatsResponse{
		PoliciesTotal:      stats.PoliciesTotal,
		PoliciesActive:     stats.PoliciesActive,
		WorkflowsDraft:     stats.WorkflowsDraft,
		WorkflowsPublished: stats.WorkflowsPublished,
		Timers:             stats.Timers,
		Compliance:         FromCompliance(&stats.Compliance),
	}
}
