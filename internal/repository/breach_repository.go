package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// BreachRepository is the append-only audit trail of breach records. The
// unique timer_id index guarantees at most one record per timer even if two
// evaluations race.
type BreachRepository interface {
	// Create inserts the record; it reports false without error when a
	// record already exists for the timer.
	Create(ctx context.Context, record *domain.BreachRecord) (bool, error)
	ListInRange(ctx context.Context, from, to time.Time) ([]domain.BreachRecord, error)
	CountByTypeInRange(ctx context.Context, from, to time.Time) (map[domain.BreachType]int, error)
}

type breachRepository struct {
	pool *pgxpool.Pool
}

// NewBreachRepository instantiates repository.
func NewBreachRepository(pool *pgxpool.Pool) BreachRepository {
	return &breachRepository{pool: pool}
}

func (r *breachRepository) Create(ctx context.Context, record *domain.BreachRecord) (bool, error) {
	const query = `
        INSERT INTO breach_records (timer_id, ticket_id, breach_type, detected_at, threshold_ms, actual_elapsed_ms)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (timer_id) DO NOTHING
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		record.TimerID,
		record.TicketID,
		record.BreachType,
		record.DetectedAt,
		record.ThresholdAtBreach.Milliseconds(),
		record.ActualElapsed.Milliseconds(),
	).Scan(&record.ID, &record.CreatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *breachRepository) ListInRange(ctx context.Context, from, to time.Time) ([]domain.BreachRecord, error) {
	const query = `
        SELECT id, timer_id, ticket_id, breach_type, detected_at, threshold_ms, actual_elapsed_ms, created_at
        FROM breach_records
        WHERE detected_at >= $1 AND detected_at <= $2
        ORDER BY detected_at`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.BreachRecord
	for rows.Next() {
		var (
			record      domain.BreachRecord
			thresholdMs int64
			elapsedMs   int64
		)
		if err := rows.Scan(
			&record.ID,
			&record.TimerID,
			&record.TicketID,
			&record.BreachType,
			&record.DetectedAt,
			&thresholdMs,
			&elapsedMs,
			&record.CreatedAt,
		); err != nil {
			return nil, err
		}
		record.ThresholdAtBreach = time.Duration(thresholdMs) * time.Millisecond
		record.ActualElapsed = time.Duration(elapsedMs) * time.Millisecond
		result = append(result, record)
	}
	return result, rows.Err()
}

func (r *breachRepository) CountByTypeInRange(ctx context.Context, from, to time.Time) (map[domain.BreachType]int, error) {
	const query = `
        SELECT breach_type, COUNT(*) FROM breach_records
        WHERE detected_at >= $1 AND detected_at <= $2
        GROUP BY breach_type`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.BreachType]int)
	for rows.Next() {
		var (
			breachType domain.BreachType
			count      int
		)
		if err := rows.Scan(&breachType, &count); err != nil {
			return nil, err
		}
		counts[breachType] = count
	}
	return counts, rows.Err()
}
