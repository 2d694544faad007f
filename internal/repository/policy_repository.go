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

// PolicyCounts summarizes the policy population for the stats query.
type PolicyCounts struct {
	Total  int
	Active int
}

// PolicyRepository encapsulates SLA policy persistence.
type PolicyRepository interface {
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	Update(ctx context.Context, policy *domain.SLAPolicy) error
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	List(ctx context.Context, activeOnly bool) ([]domain.SLAPolicy, error)
	GetDefault(ctx context.Context) (*domain.SLAPolicy, error)
	FindByDepartment(ctx context.Context, departmentID string) (*domain.SLAPolicy, error)
	// SetDefault marks the given policy as default and clears any previous
	// default in the same transaction.
	SetDefault(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
	Counts(ctx context.Context) (PolicyCounts, error)
}

type policyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository instantiates repository.
func NewPolicyRepository(pool *pgxpool.Pool) PolicyRepository {
	return &policyRepository{pool: pool}
}

// jsonTarget is the JSONB wire form of one priority's targets.
type jsonTarget struct {
	ResponseMs   int64 `json:"response_ms"`
	ResolutionMs int64 `json:"resolution_ms"`
}

func encodeTargets(targets map[domain.TicketPriority]domain.PriorityTarget) ([]byte, error) {
	out := make(map[domain.TicketPriority]jsonTarget, len(targets))
	for priority, target := range targets {
		out[priority] = jsonTarget{
			ResponseMs:   target.Response.Milliseconds(),
			ResolutionMs: target.Resolution.Milliseconds(),
		}
	}
	return json.Marshal(out)
}

func decodeTargets(raw []byte) (map[domain.TicketPriority]domain.PriorityTarget, error) {
	var stored map[domain.TicketPriority]jsonTarget
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode policy targets: %w", err)
	}
	out := make(map[domain.TicketPriority]domain.PriorityTarget, len(stored))
	for priority, target := range stored {
		out[priority] = domain.PriorityTarget{
			Response:   time.Duration(target.ResponseMs) * time.Millisecond,
			Resolution: time.Duration(target.ResolutionMs) * time.Millisecond,
		}
	}
	return out, nil
}

func (r *policyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	targets, err := encodeTargets(policy.Targets)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO sla_policies (name, is_default, is_active, department_id, targets)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.Name,
		policy.IsDefault,
		policy.IsActive,
		policy.DepartmentID,
		targets,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
}

func (r *policyRepository) Update(ctx context.Context, policy *domain.SLAPolicy) error {
	targets, err := encodeTargets(policy.Targets)
	if err != nil {
		return err
	}
	const query = `
        UPDATE sla_policies SET name=$1, is_active=$2, department_id=$3, targets=$4, updated_at=NOW()
        WHERE id=$5`
	cmd, err := r.pool.Exec(ctx, query,
		policy.Name,
		policy.IsActive,
		policy.DepartmentID,
		targets,
		policy.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

const policyColumns = `id, name, is_default, is_active, department_id, targets, created_at, updated_at`

func (r *policyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM sla_policies WHERE id=$1`, policyColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *policyRepository) GetDefault(ctx context.Context) (*domain.SLAPolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM sla_policies WHERE is_default AND is_active`, policyColumns)
	return r.fetchSingle(ctx, query)
}

func (r *policyRepository) FindByDepartment(ctx context.Context, departmentID string) (*domain.SLAPolicy, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM sla_policies
        WHERE is_active AND department_id=$1
        ORDER BY updated_at DESC LIMIT 1`, policyColumns)
	return r.fetchSingle(ctx, query, departmentID)
}

func (r *policyRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.SLAPolicy, error) {
	var (
		policy domain.SLAPolicy
		raw    []byte
	)
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&policy.ID,
		&policy.Name,
		&policy.IsDefault,
		&policy.IsActive,
		&policy.DepartmentID,
		&raw,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	targets, err := decodeTargets(raw)
	if err != nil {
		return nil, err
	}
	policy.Targets = targets
	return &policy, nil
}

func (r *policyRepository) List(ctx context.Context, activeOnly bool) ([]domain.SLAPolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM sla_policies`, policyColumns)
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		var (
			policy domain.SLAPolicy
			raw    []byte
		)
		if err := rows.Scan(
			&policy.ID,
			&policy.Name,
			&policy.IsDefault,
			&policy.IsActive,
			&policy.DepartmentID,
			&raw,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		); err != nil {
			return nil, err
		}
		targets, err := decodeTargets(raw)
		if err != nil {
			return nil, err
		}
		policy.Targets = targets
		result = append(result, policy)
	}
	return result, rows.Err()
}

func (r *policyRepository) SetDefault(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `UPDATE sla_policies SET is_default=FALSE, updated_at=NOW() WHERE is_default`); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `UPDATE sla_policies SET is_default=TRUE, updated_at=NOW() WHERE id=$1 AND is_active`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

func (r *policyRepository) Deactivate(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE sla_policies SET is_active=FALSE, is_default=FALSE, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *policyRepository) Counts(ctx context.Context) (PolicyCounts, error) {
	var counts PolicyCounts
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM sla_policies`,
	).Scan(&counts.Total, &counts.Active)
	return counts, err
}
