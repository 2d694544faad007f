package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// TimerRepository encapsulates SLA timer persistence. The engine serializes
// writes per timer; the unique (ticket_id, metric_type) index makes Start
// idempotent at the storage layer.
type TimerRepository interface {
	// Create inserts the timer unless one already exists for the same
	// ticket/metric pair; it returns the stored timer and whether a new row
	// was created.
	Create(ctx context.Context, timer *domain.SLATimer) (*domain.SLATimer, bool, error)
	Update(ctx context.Context, timer *domain.SLATimer) error
	GetByID(ctx context.Context, id string) (*domain.SLATimer, error)
	GetByTicketMetric(ctx context.Context, ticketID string, metric domain.TimerMetric) (*domain.SLATimer, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.SLATimer, error)
	ListRunningIDs(ctx context.Context) ([]string, error)
	ListTerminalInRange(ctx context.Context, from, to time.Time) ([]domain.SLATimer, error)
	CountByState(ctx context.Context) (domain.TimerStateCounts, error)
}

type timerRepository struct {
	pool *pgxpool.Pool
}

// NewTimerRepository instantiates repository.
func NewTimerRepository(pool *pgxpool.Pool) TimerRepository {
	return &timerRepository{pool: pool}
}

const timerColumns = `id, ticket_id, metric_type, policy_id, priority, state, started_at,
       target_ms, accumulated_ms, pause_history, at_risk_at, terminal_at, created_at, updated_at`

func (r *timerRepository) Create(ctx context.Context, timer *domain.SLATimer) (*domain.SLATimer, bool, error) {
	pauses, err := json.Marshal(timer.Pauses)
	if err != nil {
		return nil, false, err
	}
	const query = `
        INSERT INTO sla_timers (ticket_id, metric_type, policy_id, priority, state, started_at, target_ms, accumulated_ms, pause_history)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (ticket_id, metric_type) DO NOTHING
        RETURNING id, created_at, updated_at`
	err = r.pool.QueryRow(ctx, query,
		timer.TicketID,
		timer.Metric,
		timer.PolicyID,
		timer.Priority,
		timer.State,
		timer.StartedAt,
		timer.Target.Milliseconds(),
		timer.Accumulated.Milliseconds(),
		pauses,
	).Scan(&timer.ID, &timer.CreatedAt, &timer.UpdatedAt)
	if err == nil {
		return timer, true, nil
	}
	if err != pgx.ErrNoRows {
		return nil, false, err
	}

	// Conflict: the timer was already started. Return the existing row.
	existing, err := r.GetByTicketMetric(ctx, timer.TicketID, timer.Metric)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *timerRepository) Update(ctx context.Context, timer *domain.SLATimer) error {
	pauses, err := json.Marshal(timer.Pauses)
	if err != nil {
		return err
	}
	const query = `
        UPDATE sla_timers SET state=$1, accumulated_ms=$2, pause_history=$3, at_risk_at=$4,
            terminal_at=$5, updated_at=NOW()
        WHERE id=$6`
	cmd, err := r.pool.Exec(ctx, query,
		timer.State,
		timer.Accumulated.Milliseconds(),
		pauses,
		timer.AtRiskAt,
		timer.TerminalAt,
		timer.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *timerRepository) GetByID(ctx context.Context, id string) (*domain.SLATimer, error) {
	query := fmt.Sprintf(`SELECT %s FROM sla_timers WHERE id=$1`, timerColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *timerRepository) GetByTicketMetric(ctx context.Context, ticketID string, metric domain.TimerMetric) (*domain.SLATimer, error) {
	query := fmt.Sprintf(`SELECT %s FROM sla_timers WHERE ticket_id=$1 AND metric_type=$2`, timerColumns)
	return r.fetchSingle(ctx, query, ticketID, metric)
}

func (r *timerRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.SLATimer, error) {
	row := r.pool.QueryRow(ctx, query, args...)
	return scanTimer(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimer(row rowScanner) (*domain.SLATimer, error) {
	var (
		timer         domain.SLATimer
		targetMs      int64
		accumulatedMs int64
		pauses        []byte
	)
	if err := row.Scan(
		&timer.ID,
		&timer.TicketID,
		&timer.Metric,
		&timer.PolicyID,
		&timer.Priority,
		&timer.State,
		&timer.StartedAt,
		&targetMs,
		&accumulatedMs,
		&pauses,
		&timer.AtRiskAt,
		&timer.TerminalAt,
		&timer.CreatedAt,
		&timer.UpdatedAt,
	); err != nil {
		return nil, err
	}
	timer.Target = time.Duration(targetMs) * time.Millisecond
	timer.Accumulated = time.Duration(accumulatedMs) * time.Millisecond
	if err := json.Unmarshal(pauses, &timer.Pauses); err != nil {
		return nil, fmt.Errorf("decode pause history: %w", err)
	}
	return &timer, nil
}

func (r *timerRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.SLATimer, error) {
	query := fmt.Sprintf(`SELECT %s FROM sla_timers WHERE ticket_id=$1 ORDER BY metric_type`, timerColumns)
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTimers(rows)
}

func (r *timerRepository) ListRunningIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM sla_timers WHERE state=$1`, domain.TimerStateRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *timerRepository) ListTerminalInRange(ctx context.Context, from, to time.Time) ([]domain.SLATimer, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM sla_timers
        WHERE terminal_at IS NOT NULL AND terminal_at >= $1 AND terminal_at <= $2
        ORDER BY terminal_at`, timerColumns)
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTimers(rows)
}

func scanTimers(rows pgx.Rows) ([]domain.SLATimer, error) {
	var result []domain.SLATimer
	for rows.Next() {
		timer, err := scanTimer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *timer)
	}
	return result, rows.Err()
}

func (r *timerRepository) CountByState(ctx context.Context) (domain.TimerStateCounts, error) {
	const query = `
        SELECT
            COUNT(*) FILTER (WHERE state='RUNNING' AND at_risk_at IS NULL),
            COUNT(*) FILTER (WHERE state='RUNNING' AND at_risk_at IS NOT NULL),
            COUNT(*) FILTER (WHERE state='PAUSED'),
            COUNT(*) FILTER (WHERE state='MET'),
            COUNT(*) FILTER (WHERE state='BREACHED')
        FROM sla_timers`
	var counts domain.TimerStateCounts
	err := r.pool.QueryRow(ctx, query).Scan(
		&counts.Running,
		&counts.AtRisk,
		&counts.Paused,
		&counts.Met,
		&counts.Breached,
	)
	return counts, err
}
