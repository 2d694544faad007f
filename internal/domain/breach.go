package domain

import "time"

// BreachType distinguishes which target was missed.
type BreachType string

const (
	BreachTypeResponse   BreachType = "response_breach"
	BreachTypeResolution BreachType = "resolution_breach"
)

// BreachRecord is the append-only audit entry written when a timer breaches.
// Exactly one record exists per breached timer; records are never mutated.
type BreachRecord struct {
	ID                string
	TimerID           string
	TicketID          string
	BreachType        BreachType
	DetectedAt        time.Time
	ThresholdAtBreach time.Duration
	ActualElapsed     time.Duration
	CreatedAt         time.Time
}
