package domain

import "time"

// TimerMetric identifies which SLA target a timer tracks.
type TimerMetric string

const (
	TimerMetricResponse   TimerMetric = "response"
	TimerMetricResolution TimerMetric = "resolution"
)

// Valid reports whether m is a known metric.
func (m TimerMetric) Valid() bool {
	return m == TimerMetricResponse || m == TimerMetricResolution
}

// TimerState enumerates the timer state machine.
type TimerState string

const (
	TimerStateRunning  TimerState = "RUNNING"
	TimerStatePaused   TimerState = "PAUSED"
	TimerStateMet      TimerState = "MET"
	TimerStateBreached TimerState = "BREACHED"
)

// Terminal reports whether the state admits no further transitions.
func (s TimerState) Terminal() bool {
	return s == TimerStateMet || s == TimerStateBreached
}

// RiskLevel classifies a running timer relative to its target.
type RiskLevel string

const (
	RiskLevelNormal RiskLevel = "normal"
	RiskLevelAtRisk RiskLevel = "at_risk"
)

// PauseInterval is one entry in a timer's pause history. End is nil while the
// pause is still open.
type PauseInterval struct {
	Start  time.Time  `json:"start"`
	End    *time.Time `json:"end,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// Closed reports whether the interval has been resumed.
func (p PauseInterval) Closed() bool {
	return p.End != nil
}

// SLATimer tracks one metric for one ticket against a policy snapshot.
type SLATimer struct {
	ID          string
	TicketID    string
	Metric      TimerMetric
	PolicyID    string
	Priority    TicketPriority
	State       TimerState
	StartedAt   time.Time
	Target      time.Duration
	Accumulated time.Duration
	Pauses      []PauseInterval
	AtRiskAt    *time.Time
	TerminalAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OpenPause returns the currently open pause interval, if any.
func (t *SLATimer) OpenPause() *PauseInterval {
	if len(t.Pauses) == 0 {
		return nil
	}
	last := &t.Pauses[len(t.Pauses)-1]
	if last.End == nil {
		return last
	}
	return nil
}

// ClosedPauses returns only the completed pause intervals.
func (t *SLATimer) ClosedPauses() []PauseInterval {
	out := make([]PauseInterval, 0, len(t.Pauses))
	for _, p := range t.Pauses {
		if p.Closed() {
			out = append(out, p)
		}
	}
	return out
}

// TotalPaused sums the duration of all closed pause intervals.
func (t *SLATimer) TotalPaused() time.Duration {
	var total time.Duration
	for _, p := range t.Pauses {
		if p.End != nil {
			total += p.End.Sub(p.Start)
		}
	}
	return total
}

// Risk classifies accumulated time against the target using the given
// at-risk fraction (e.g. 0.8).
func (t *SLATimer) Risk(atRiskFraction float64) RiskLevel {
	if t.Target <= 0 {
		return RiskLevelNormal
	}
	threshold := time.Duration(float64(t.Target) * atRiskFraction)
	if t.Accumulated >= threshold {
		return RiskLevelAtRisk
	}
	return RiskLevelNormal
}
