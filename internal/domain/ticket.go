package domain

// TicketStatus mirrors the lifecycle states of the external ticket system.
type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "OPEN"
	TicketStatusInProgress  TicketStatus = "IN_PROGRESS"
	TicketStatusPendingUser TicketStatus = "PENDING_USER"
	TicketStatusResolved    TicketStatus = "RESOLVED"
	TicketStatusClosed      TicketStatus = "CLOSED"
)

// SenderType identifies who authored a ticket message.
type SenderType string

const (
	SenderTypeCustomer SenderType = "CUSTOMER"
	SenderTypeAgent    SenderType = "AGENT"
	SenderTypeAdmin    SenderType = "ADMIN"
)

// TicketSnapshot is the slice of ticket state attached to lifecycle events.
// Ticket storage belongs to the external ticket system; the engine only ever
// sees these snapshots.
type TicketSnapshot struct {
	TicketID     string         `json:"ticket_id"`
	Priority     TicketPriority `json:"priority"`
	DepartmentID string         `json:"department_id"`
	Status       TicketStatus   `json:"status"`
	AssigneeID   *string        `json:"assignee_id,omitempty"`
	PolicyID     *string        `json:"policy_id,omitempty"`
}
