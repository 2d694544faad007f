package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
)

// IngestEventRequest is the wire form of a ticket lifecycle event pushed by
// the external ticket system.
type IngestEventRequest struct {
	Type      events.EventType      `json:"type"`
	Ticket    domain.TicketSnapshot `json:"ticket"`
	Timestamp time.Time             `json:"timestamp"`

	// ticket_updated
	OldStatus   domain.TicketStatus   `json:"old_status,omitempty"`
	NewStatus   domain.TicketStatus   `json:"new_status,omitempty"`
	OldPriority domain.TicketPriority `json:"old_priority,omitempty"`
	NewPriority domain.TicketPriority `json:"new_priority,omitempty"`

	// ticket_assigned
	AssigneeID *string `json:"assignee_id,omitempty"`
	TeamID     *string `json:"team_id,omitempty"`

	// ticket_message_added
	MessageID  string            `json:"message_id,omitempty"`
	SenderType domain.SenderType `json:"sender_type,omitempty"`
	SentAt     *time.Time        `json:"sent_at,omitempty"`
}

// TimerResponse exposes a timer with both calendar and active elapsed time;
// only active time is compared against targets, calendar is display-only.
type TimerResponse struct {
	ID              string             `json:"id"`
	TicketID        string             `json:"ticket_id"`
	Metric          domain.TimerMetric `json:"metric"`
	PolicyID        string             `json:"policy_id"`
	Priority        domain.TicketPriority `json:"priority"`
	State           domain.TimerState  `json:"state"`
	StartedAt       time.Time          `json:"started_at"`
	TargetMinutes   int                `json:"target_minutes"`
	ActiveMinutes   int                `json:"active_minutes"`
	CalendarMinutes int                `json:"calendar_minutes"`
	PausedMinutes   int                `json:"paused_minutes"`
	AtRiskAt        *time.Time         `json:"at_risk_at,omitempty"`
	TerminalAt      *time.Time         `json:"terminal_at,omitempty"`
}

// FromTimer maps a domain timer to its response form; now anchors the
// calendar-time display for non-terminal timers.
func FromTimer(timer *domain.SLATimer, now time.Time) TimerResponse {
	calendarEnd := now
	if timer.TerminalAt != nil {
		calendarEnd = *timer.TerminalAt
	}
	calendar := calendarEnd.Sub(timer.StartedAt)
	if calendar < 0 {
		calendar = 0
	}
	return TimerResponse{
		ID:              timer.ID,
		TicketID:        timer.TicketID,
		Metric:          timer.Metric,
		PolicyID:        timer.PolicyID,
		Priority:        timer.Priority,
		State:           timer.State,
		StartedAt:       timer.StartedAt,
		TargetMinutes:   int(timer.Target / time.Minute),
		ActiveMinutes:   int(timer.Accumulated / time.Minute),
		CalendarMinutes: int(calendar / time.Minute),
		PausedMinutes:   int(timer.TotalPaused() / time.Minute),
		AtRiskAt:        timer.AtRiskAt,
		TerminalAt:      timer.TerminalAt,
	}
}
