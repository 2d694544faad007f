package domain

import "time"

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Priorities lists every supported level, most urgent first.
var Priorities = []TicketPriority{
	TicketPriorityUrgent,
	TicketPriorityHigh,
	TicketPriorityMedium,
	TicketPriorityLow,
}

// Valid reports whether p is a known priority level.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// PriorityTarget holds the response/resolution targets for one priority level.
type PriorityTarget struct {
	Response   time.Duration `json:"response"`
	Resolution time.Duration `json:"resolution"`
}

// SLAPolicy defines per-priority response and resolution targets.
type SLAPolicy struct {
	ID           string
	Name         string
	IsDefault    bool
	IsActive     bool
	DepartmentID *string
	Targets      map[TicketPriority]PriorityTarget
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TargetFor returns the targets configured for the given priority.
func (p *SLAPolicy) TargetFor(priority TicketPriority) (PriorityTarget, bool) {
	target, ok := p.Targets[priority]
	return target, ok
}
