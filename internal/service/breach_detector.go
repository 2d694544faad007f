package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// BreachDetector transitions timers into the breached state and writes the
// audit record. Callers must hold the timer's lock; the unique timer_id index
// on breach records is the storage-level backstop for the one-record
// guarantee.
type BreachDetector struct {
	timers   repository.TimerRepository
	breaches repository.BreachRepository
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewBreachDetector constructs the detector.
func NewBreachDetector(timers repository.TimerRepository, breaches repository.BreachRepository, metrics *observability.Metrics, logger *zap.Logger) *BreachDetector {
	return &BreachDetector{timers: timers, breaches: breaches, metrics: metrics, logger: logger}
}

// Classify maps a timer's metric to the breach type recorded for it.
func (d *BreachDetector) Classify(timer *domain.SLATimer) domain.BreachType {
	if timer.Metric == domain.TimerMetricResolution {
		return domain.BreachTypeResolution
	}
	return domain.BreachTypeResponse
}

// DetectAndRecord checks the timer against its target and, when breached,
// atomically transitions it and writes exactly one BreachRecord. It returns
// nil when the timer has not breached, and also nil (without error) when a
// concurrent evaluation already recorded the breach.
func (d *BreachDetector) DetectAndRecord(ctx context.Context, timer *domain.SLATimer, now time.Time) (*domain.BreachRecord, error) {
	if timer.State != domain.TimerStateRunning || timer.Accumulated < timer.Target {
		return nil, nil
	}

	record := &domain.BreachRecord{
		TimerID:           timer.ID,
		TicketID:          timer.TicketID,
		BreachType:        d.Classify(timer),
		DetectedAt:        now,
		ThresholdAtBreach: timer.Target,
		ActualElapsed:     timer.Accumulated,
	}
	created, err := d.breaches.Create(ctx, record)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	timer.State = domain.TimerStateBreached
	terminalAt := now
	timer.TerminalAt = &terminalAt
	if err := d.timers.Update(ctx, timer); err != nil {
		return nil, apperrors.MapError(err)
	}

	if !created {
		// A concurrent evaluation won the record insert; nothing to publish.
		return nil, nil
	}

	d.metrics.TimerTransitions.WithLabelValues(string(domain.TimerStateBreached)).Inc()
	d.metrics.Breaches.WithLabelValues(string(record.BreachType)).Inc()
	d.logger.Warn("sla breach recorded",
		zap.String("timer_id", timer.ID),
		zap.String("ticket_id", timer.TicketID),
		zap.String("breach_type", string(record.BreachType)),
		zap.Duration("target", record.ThresholdAtBreach),
		zap.Duration("elapsed", record.ActualElapsed),
	)
	return record, nil
}
