package domain

import "time"

// ComplianceSnapshot is computed on demand over a date range; it is never
// persisted.
type ComplianceSnapshot struct {
	From              time.Time
	To                time.Time
	TotalTickets      int
	MetCount          int
	BreachedCount     int
	ComplianceRate    float64
	AvgResponseTime   time.Duration
	AvgResolutionTime time.Duration
	BreachesByType    map[BreachType]int
}

// TimerStateCounts breaks the live timer population down by state.
type TimerStateCounts struct {
	Running  int `json:"running"`
	AtRisk   int `json:"at_risk"`
	Paused   int `json:"paused"`
	Met      int `json:"met"`
	Breached int `json:"breached"`
}

// EngineStats is the aggregate returned by the stats query.
type EngineStats struct {
	PoliciesTotal      int
	PoliciesActive     int
	WorkflowsDraft     int
	WorkflowsPublished int
	Timers             TimerStateCounts
	Compliance         ComplianceSnapshot
}

// ExportTable is a flat row/column projection of compliance data for
// downstream CSV or spreadsheet rendering.
type ExportTable struct {
	Columns []string
	Rows    [][]string
}
