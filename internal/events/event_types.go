package events

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketUpdated      EventType = "ticket_updated"
	EventTicketAssigned     EventType = "ticket_assigned"
	EventTicketMessageAdded EventType = "ticket_message_added"
	EventTicketResolved     EventType = "ticket_resolved"
	EventTimerAtRisk        EventType = "timer_at_risk"
	EventTimerBreached      EventType = "timer_breached"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTicketCreated, EventTicketUpdated, EventTicketAssigned,
		EventTicketMessageAdded, EventTicketResolved, EventTimerAtRisk, EventTimerBreached:
		return true
	}
	return false
}

// Event represents a lifecycle or timer event flowing through the engine.
// Ticket lifecycle events are published by the ingest adapter; timer events
// are published by the timer engine itself.
type Event struct {
	ID        string                `json:"id"`
	Type      EventType             `json:"type"`
	TicketID  string                `json:"ticket_id"`
	Ticket    domain.TicketSnapshot `json:"ticket"`
	Timestamp time.Time             `json:"timestamp"`
	Payload   any                   `json:"payload,omitempty"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	OldStatus   domain.TicketStatus   `json:"old_status,omitempty"`
	NewStatus   domain.TicketStatus   `json:"new_status,omitempty"`
	OldPriority domain.TicketPriority `json:"old_priority,omitempty"`
	NewPriority domain.TicketPriority `json:"new_priority,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID *string `json:"assignee_id,omitempty"`
	TeamID     *string `json:"team_id,omitempty"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID  string            `json:"message_id"`
	SenderType domain.SenderType `json:"sender_type"`
	SentAt     time.Time         `json:"sent_at"`
}

// TimerEventPayload accompanies timer_at_risk and timer_breached events.
type TimerEventPayload struct {
	TimerID     string             `json:"timer_id"`
	Metric      domain.TimerMetric `json:"metric"`
	Target      time.Duration      `json:"target"`
	Accumulated time.Duration      `json:"accumulated"`
}
