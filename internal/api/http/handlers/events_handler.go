package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/events"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// EventsHandler is the ingest adapter: it turns lifecycle notifications from
// the external ticket system into dispatched engine events.
type EventsHandler struct {
	dispatcher events.Dispatcher
	clock      clock.Clock
}

// NewEventsHandler constructs handler.
func NewEventsHandler(dispatcher events.Dispatcher, clk clock.Clock) *EventsHandler {
	return &EventsHandler{dispatcher: dispatcher, clock: clk}
}

// Ingest POST /events. Dispatch is synchronous, so all timer effects of the
// event are applied before the response is written.
func (h *EventsHandler) Ingest(c *fiber.Ctx) error {
	var req dto.IngestEventRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	event, err := h.buildEvent(req)
	if err != nil {
		return err
	}
	if err := h.dispatcher.Publish(c.UserContext(), event); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{
		"event_id": event.ID,
		"type":     event.Type,
	}})
}

func (h *EventsHandler) buildEvent(req dto.IngestEventRequest) (events.Event, error) {
	if req.Ticket.TicketID == "" {
		return events.Event{}, apperrors.NewValidationError("ticket.ticket_id is required", nil)
	}
	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = h.clock.Now()
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      req.Type,
		TicketID:  req.Ticket.TicketID,
		Ticket:    req.Ticket,
		Timestamp: timestamp,
	}

	switch req.Type {
	case events.EventTicketCreated, events.EventTicketResolved:
		// no payload beyond the snapshot
	case events.EventTicketUpdated:
		event.Payload = events.TicketUpdatedPayload{
			OldStatus:   req.OldStatus,
			NewStatus:   req.NewStatus,
			OldPriority: req.OldPriority,
			NewPriority: req.NewPriority,
		}
	case events.EventTicketAssigned:
		event.Payload = events.TicketAssignedPayload{
			AssigneeID: req.AssigneeID,
			TeamID:     req.TeamID,
		}
	case events.EventTicketMessageAdded:
		if req.MessageID == "" || req.SenderType == "" {
			return events.Event{}, apperrors.NewValidationError(
				"message_id and sender_type are required for ticket_message_added", nil)
		}
		sentAt := timestamp
		if req.SentAt != nil {
			sentAt = *req.SentAt
		}
		event.Payload = events.TicketMessageAddedPayload{
			MessageID:  req.MessageID,
			SenderType: req.SenderType,
			SentAt:     sentAt,
		}
	default:
		// timer_at_risk and timer_breached are emitted by the engine itself
		// and cannot be ingested.
		return events.Event{}, apperrors.NewValidationError("unsupported event type",
			map[string]any{"type": string(req.Type)})
	}
	return event, nil
}
