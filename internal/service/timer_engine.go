package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// TimerEngine owns the lifecycle of SLA timers: one response and one
// resolution timer per tracked ticket. All state transitions funnel through
// per-timer locks so a periodic sweep and an event-driven evaluation racing
// on the same timer cannot double-fire.
type TimerEngine struct {
	timers         repository.TimerRepository
	detector       *BreachDetector
	provider       clock.Provider
	dispatcher     events.Dispatcher
	metrics        *observability.Metrics
	logger         *zap.Logger
	atRiskFraction float64
	locks          *keyedLocks
}

// TimerEngineDependencies bundles collaborators for the engine.
type TimerEngineDependencies struct {
	TimerRepo      repository.TimerRepository
	Detector       *BreachDetector
	Provider       clock.Provider
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	AtRiskFraction float64
}

// NewTimerEngine constructs the engine.
func NewTimerEngine(deps TimerEngineDependencies) *TimerEngine {
	fraction := deps.AtRiskFraction
	if fraction <= 0 || fraction >= 1 {
		fraction = 0.8
	}
	return &TimerEngine{
		timers:         deps.TimerRepo,
		detector:       deps.Detector,
		provider:       deps.Provider,
		dispatcher:     deps.Dispatcher,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		atRiskFraction: fraction,
		locks:          newKeyedLocks(),
	}
}

// EvaluationResult is the outcome of one Evaluate call.
type EvaluationResult struct {
	Timer    *domain.SLATimer
	Risk     domain.RiskLevel
	Breached bool
}

// Start creates a Running timer with the target snapshotted from the policy.
// Starting an already-started ticket/metric pair is a no-op returning the
// existing timer.
func (e *TimerEngine) Start(ctx context.Context, ticket domain.TicketSnapshot, metric domain.TimerMetric, policy *domain.SLAPolicy, at time.Time) (*domain.SLATimer, error) {
	if !metric.Valid() {
		return nil, apperrors.NewValidationError("unknown timer metric", map[string]any{"metric": string(metric)})
	}
	target, ok := policy.TargetFor(ticket.Priority)
	if !ok {
		return nil, apperrors.NewValidationError("policy has no targets for priority",
			map[string]any{"policy_id": policy.ID, "priority": string(ticket.Priority)})
	}
	targetDuration := target.Response
	if metric == domain.TimerMetricResolution {
		targetDuration = target.Resolution
	}

	timer := &domain.SLATimer{
		TicketID:  ticket.TicketID,
		Metric:    metric,
		PolicyID:  policy.ID,
		Priority:  ticket.Priority,
		State:     domain.TimerStateRunning,
		StartedAt: at,
		Target:    targetDuration,
		Pauses:    []domain.PauseInterval{},
	}
	stored, created, err := e.timers.Create(ctx, timer)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if created {
		e.metrics.TimersStarted.Inc()
		e.logger.Info("timer started",
			zap.String("timer_id", stored.ID),
			zap.String("ticket_id", stored.TicketID),
			zap.String("metric", string(stored.Metric)),
			zap.Duration("target", stored.Target),
		)
	}
	return stored, nil
}

// Pause freezes a Running timer. Pause time is excluded from accumulated
// active duration until Resume closes the interval.
func (e *TimerEngine) Pause(ctx context.Context, timerID, reason string, at time.Time) (*domain.SLATimer, error) {
	unlock := e.locks.lock(timerID)
	defer unlock()

	timer, err := e.getTimer(ctx, timerID)
	if err != nil {
		return nil, err
	}
	if timer.State != domain.TimerStateRunning {
		return nil, apperrors.NewInvalidTimerTransition(timerID, string(timer.State), "pause")
	}

	timer.Accumulated = e.provider.ActiveBetween(timer.StartedAt, at, timer.ClosedPauses())
	timer.Pauses = append(timer.Pauses, domain.PauseInterval{Start: at, Reason: reason})
	timer.State = domain.TimerStatePaused
	if err := e.timers.Update(ctx, timer); err != nil {
		return nil, apperrors.MapError(err)
	}
	e.metrics.TimerTransitions.WithLabelValues(string(domain.TimerStatePaused)).Inc()
	e.logger.Info("timer paused",
		zap.String("timer_id", timerID), zap.String("reason", reason))
	return timer, nil
}

// Resume closes the open pause interval and returns the timer to Running.
func (e *TimerEngine) Resume(ctx context.Context, timerID string, at time.Time) (*domain.SLATimer, error) {
	unlock := e.locks.lock(timerID)
	defer unlock()

	timer, err := e.getTimer(ctx, timerID)
	if err != nil {
		return nil, err
	}
	if timer.State != domain.TimerStatePaused {
		return nil, apperrors.NewInvalidTimerTransition(timerID, string(timer.State), "resume")
	}
	open := timer.OpenPause()
	if open == nil {
		return nil, apperrors.NewInvalidTimerTransition(timerID, string(timer.State), "resume")
	}

	end := at
	open.End = &end
	timer.State = domain.TimerStateRunning
	if err := e.timers.Update(ctx, timer); err != nil {
		return nil, apperrors.MapError(err)
	}
	e.metrics.TimerTransitions.WithLabelValues(string(domain.TimerStateRunning)).Inc()
	e.logger.Info("timer resumed", zap.String("timer_id", timerID))
	return timer, nil
}

// MarkMet transitions a Running timer to Met, freezing accumulated duration
// at the moment the satisfying event occurred. Already-terminal timers are a
// silent no-op so duplicate event delivery is harmless.
func (e *TimerEngine) MarkMet(ctx context.Context, timerID string, at time.Time) (*domain.SLATimer, error) {
	unlock := e.locks.lock(timerID)

	timer, err := e.getTimer(ctx, timerID)
	if err != nil {
		unlock()
		return nil, err
	}
	if timer.State.Terminal() {
		unlock()
		return timer, nil
	}
	if timer.State != domain.TimerStateRunning {
		unlock()
		return nil, apperrors.NewInvalidTimerTransition(timerID, string(timer.State), "mark_met")
	}

	timer.Accumulated = e.provider.ActiveBetween(timer.StartedAt, at, timer.ClosedPauses())

	// The satisfying event arriving past the target is a breach the sweep
	// has not caught yet, never a met.
	record, err := e.detector.DetectAndRecord(ctx, timer, at)
	if err != nil {
		unlock()
		return nil, err
	}
	if timer.State == domain.TimerStateBreached {
		unlock()
		if record != nil {
			e.publishTimerEvent(ctx, events.EventTimerBreached, timer, at)
		}
		return timer, nil
	}

	timer.State = domain.TimerStateMet
	terminalAt := at
	timer.TerminalAt = &terminalAt
	if err := e.timers.Update(ctx, timer); err != nil {
		unlock()
		return nil, apperrors.MapError(err)
	}
	unlock()
	e.metrics.TimerTransitions.WithLabelValues(string(domain.TimerStateMet)).Inc()
	e.logger.Info("timer met",
		zap.String("timer_id", timerID),
		zap.Duration("active", timer.Accumulated),
		zap.Duration("target", timer.Target),
	)
	return timer, nil
}

// Evaluate recomputes a Running timer's accumulated active time and applies
// risk classification and breach detection. It is the single re-entry point
// shared by the periodic sweep and event-driven calls, so both produce
// identical results. Evaluation always uses the target snapshotted at start;
// later policy edits never retarget in-flight timers.
func (e *TimerEngine) Evaluate(ctx context.Context, timerID string, now time.Time) (*EvaluationResult, error) {
	unlock := e.locks.lock(timerID)

	timer, err := e.getTimer(ctx, timerID)
	if err != nil {
		unlock()
		return nil, err
	}
	if timer.State != domain.TimerStateRunning {
		unlock()
		return &EvaluationResult{Timer: timer, Risk: timer.Risk(e.atRiskFraction)}, nil
	}

	timer.Accumulated = e.provider.ActiveBetween(timer.StartedAt, now, timer.ClosedPauses())

	record, err := e.detector.DetectAndRecord(ctx, timer, now)
	if err != nil {
		unlock()
		return nil, err
	}
	if timer.State == domain.TimerStateBreached {
		unlock()
		if record != nil {
			e.publishTimerEvent(ctx, events.EventTimerBreached, timer, now)
		}
		return &EvaluationResult{Timer: timer, Risk: domain.RiskLevelAtRisk, Breached: true}, nil
	}

	risk := timer.Risk(e.atRiskFraction)
	atRiskEmitted := false
	if risk == domain.RiskLevelAtRisk && timer.AtRiskAt == nil {
		atRiskAt := now
		timer.AtRiskAt = &atRiskAt
		atRiskEmitted = true
	}
	if err := e.timers.Update(ctx, timer); err != nil {
		unlock()
		return nil, apperrors.MapError(err)
	}
	unlock()

	if atRiskEmitted {
		e.logger.Warn("timer at risk",
			zap.String("timer_id", timer.ID),
			zap.String("ticket_id", timer.TicketID),
			zap.Duration("accumulated", timer.Accumulated),
			zap.Duration("target", timer.Target),
		)
		e.publishTimerEvent(ctx, events.EventTimerAtRisk, timer, now)
	}
	return &EvaluationResult{Timer: timer, Risk: risk}, nil
}

// EvaluateTicket evaluates every timer belonging to the ticket. Lifecycle
// events call this synchronously so UI-visible state is never staler than the
// triggering action.
func (e *TimerEngine) EvaluateTicket(ctx context.Context, ticketID string, now time.Time) error {
	timers, err := e.timers.ListByTicket(ctx, ticketID)
	if err != nil {
		return apperrors.MapError(err)
	}
	for _, timer := range timers {
		if _, err := e.Evaluate(ctx, timer.ID, now); err != nil {
			e.logger.Error("timer evaluation failed",
				zap.String("timer_id", timer.ID), zap.Error(err))
		}
	}
	return nil
}

// Sweep evaluates every Running timer. Per-timer failures are logged and
// counted; one corrupt timer never halts the sweep.
func (e *TimerEngine) Sweep(ctx context.Context) {
	now := e.provider.Now()
	started := time.Now()

	ids, err := e.timers.ListRunningIDs(ctx)
	if err != nil {
		e.logger.Error("sweep: list running timers failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if _, err := e.Evaluate(ctx, id, now); err != nil {
			e.metrics.SweepTimerErrors.Inc()
			e.logger.Error("sweep: timer evaluation failed",
				zap.String("timer_id", id), zap.Error(err))
		}
	}

	e.metrics.SweepDuration.Observe(time.Since(started).Seconds())
	e.logger.Debug("sweep complete",
		zap.Int("timers", len(ids)), zap.Duration("took", time.Since(started)))
}

// TimersForTicket exposes a read-only view of a ticket's timers.
func (e *TimerEngine) TimersForTicket(ctx context.Context, ticketID string) ([]domain.SLATimer, error) {
	timers, err := e.timers.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return timers, nil
}

// GetTimer returns one timer by id.
func (e *TimerEngine) GetTimer(ctx context.Context, timerID string) (*domain.SLATimer, error) {
	return e.getTimer(ctx, timerID)
}

func (e *TimerEngine) getTimer(ctx context.Context, timerID string) (*domain.SLATimer, error) {
	timer, err := e.timers.GetByID(ctx, timerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("timer", map[string]any{"timer_id": timerID})
		}
		return nil, apperrors.MapError(err)
	}
	return timer, nil
}

func (e *TimerEngine) publishTimerEvent(ctx context.Context, eventType events.EventType, timer *domain.SLATimer, now time.Time) {
	if e.dispatcher == nil {
		return
	}
	_ = e.dispatcher.Publish(ctx, events.Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		TicketID: timer.TicketID,
		Ticket: domain.TicketSnapshot{
			TicketID: timer.TicketID,
			Priority: timer.Priority,
		},
		Timestamp: now,
		Payload: events.TimerEventPayload{
			TimerID:     timer.ID,
			Metric:      timer.Metric,
			Target:      timer.Target,
			Accumulated: timer.Accumulated,
		},
	})
}
