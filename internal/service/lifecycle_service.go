package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// PauseReasonWaitingOnCustomer is recorded when a ticket moves to
// PENDING_USER and its timers stop accruing active time.
const PauseReasonWaitingOnCustomer = "waiting_on_customer"

// LifecycleService adapts ticket lifecycle events into timer operations. It
// is the only writer that starts, meets, pauses and resumes timers from
// events; every path ends with a synchronous evaluation of the affected
// ticket so caller-visible state is fresh.
type LifecycleService struct {
	policies *PolicyService
	engine   *TimerEngine
	logger   *zap.Logger
}

// NewLifecycleService constructs the service.
func NewLifecycleService(policies *PolicyService, engine *TimerEngine, logger *zap.Logger) *LifecycleService {
	return &LifecycleService{policies: policies, engine: engine, logger: logger}
}

// RegisterHandlers subscribes to ticket lifecycle events. Registration order
// matters: the dispatcher delivers synchronously, so timer state is updated
// before workflow rules see the same event.
func (s *LifecycleService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventTicketCreated, s.handleTicketCreated)
	dispatcher.Subscribe(events.EventTicketUpdated, s.handleTicketUpdated)
	dispatcher.Subscribe(events.EventTicketAssigned, s.handleTicketAssigned)
	dispatcher.Subscribe(events.EventTicketMessageAdded, s.handleMessageAdded)
	dispatcher.Subscribe(events.EventTicketResolved, s.handleTicketResolved)
}

func (s *LifecycleService) handleTicketCreated(ctx context.Context, event events.Event) error {
	policy, err := s.policies.Resolve(ctx, event.Ticket)
	if err != nil {
		if apperrors.IsCode(err, "NO_POLICY_AVAILABLE") {
			// Tracking is suspended for this ticket; the badge degrades to
			// "untracked" rather than failing the pipeline.
			s.logger.Warn("sla tracking suspended: no applicable policy",
				zap.String("ticket_id", event.TicketID))
			return nil
		}
		s.logger.Error("policy resolution failed",
			zap.String("ticket_id", event.TicketID), zap.Error(err))
		return err
	}

	for _, metric := range []domain.TimerMetric{domain.TimerMetricResponse, domain.TimerMetricResolution} {
		if _, err := s.engine.Start(ctx, event.Ticket, metric, policy, event.Timestamp); err != nil {
			s.logger.Error("timer start failed",
				zap.String("ticket_id", event.TicketID),
				zap.String("metric", string(metric)),
				zap.Error(err))
		}
	}
	return s.engine.EvaluateTicket(ctx, event.TicketID, event.Timestamp)
}

func (s *LifecycleService) handleTicketUpdated(ctx context.Context, event events.Event) error {
	if payload, ok := event.Payload.(events.TicketUpdatedPayload); ok {
		switch {
		case payload.NewStatus == domain.TicketStatusPendingUser && payload.OldStatus != domain.TicketStatusPendingUser:
			s.pauseTicketTimers(ctx, event)
		case payload.OldStatus == domain.TicketStatusPendingUser && payload.NewStatus != domain.TicketStatusPendingUser && payload.NewStatus != "":
			s.resumeTicketTimers(ctx, event)
		}
	}
	return s.engine.EvaluateTicket(ctx, event.TicketID, event.Timestamp)
}

func (s *LifecycleService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	return s.engine.EvaluateTicket(ctx, event.TicketID, event.Timestamp)
}

// handleMessageAdded marks the response timer met on the first agent or
// admin reply, using the message's own timestamp rather than processing time.
func (s *LifecycleService) handleMessageAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketMessageAddedPayload)
	if ok && (payload.SenderType == domain.SenderTypeAgent || payload.SenderType == domain.SenderTypeAdmin) {
		s.markMetricMet(ctx, event.TicketID, domain.TimerMetricResponse, payload.SentAt)
	}
	return s.engine.EvaluateTicket(ctx, event.TicketID, event.Timestamp)
}

// handleTicketResolved closes out both timers: resolution is met, and a
// response timer still running stops tracking with the resolution.
func (s *LifecycleService) handleTicketResolved(ctx context.Context, event events.Event) error {
	s.markMetricMet(ctx, event.TicketID, domain.TimerMetricResolution, event.Timestamp)
	s.markMetricMet(ctx, event.TicketID, domain.TimerMetricResponse, event.Timestamp)
	return s.engine.EvaluateTicket(ctx, event.TicketID, event.Timestamp)
}

func (s *LifecycleService) markMetricMet(ctx context.Context, ticketID string, metric domain.TimerMetric, at time.Time) {
	timers, err := s.engine.TimersForTicket(ctx, ticketID)
	if err != nil {
		s.logger.Error("load ticket timers failed",
			zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}
	for _, timer := range timers {
		if timer.Metric != metric || timer.State.Terminal() {
			continue
		}
		if timer.State == domain.TimerStatePaused {
			// A satisfied metric ends any outstanding pause first so the
			// interval arithmetic stays consistent.
			if _, err := s.engine.Resume(ctx, timer.ID, at); err != nil {
				s.logger.Error("resume before mark-met failed",
					zap.String("timer_id", timer.ID), zap.Error(err))
				continue
			}
		}
		if _, err := s.engine.MarkMet(ctx, timer.ID, at); err != nil {
			s.logger.Error("mark-met failed",
				zap.String("timer_id", timer.ID), zap.Error(err))
		}
	}
}

func (s *LifecycleService) pauseTicketTimers(ctx context.Context, event events.Event) {
	timers, err := s.engine.TimersForTicket(ctx, event.TicketID)
	if err != nil {
		s.logger.Error("load ticket timers failed",
			zap.String("ticket_id", event.TicketID), zap.Error(err))
		return
	}
	for _, timer := range timers {
		if timer.State != domain.TimerStateRunning {
			continue
		}
		if _, err := s.engine.Pause(ctx, timer.ID, PauseReasonWaitingOnCustomer, event.Timestamp); err != nil {
			s.logger.Error("pause failed",
				zap.String("timer_id", timer.ID), zap.Error(err))
		}
	}
}

func (s *LifecycleService) resumeTicketTimers(ctx context.Context, event events.Event) {
	timers, err := s.engine.TimersForTicket(ctx, event.TicketID)
	if err != nil {
		s.logger.Error("load ticket timers failed",
			zap.String("ticket_id", event.TicketID), zap.Error(err))
		return
	}
	for _, timer := range timers {
		if timer.State != domain.TimerStatePaused {
			continue
		}
		if _, err := s.engine.Resume(ctx, timer.ID, event.Timestamp); err != nil {
			s.logger.Error("resume failed",
				zap.String("timer_id", timer.ID), zap.Error(err))
		}
	}
}
