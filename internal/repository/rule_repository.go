package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// RuleCounts summarizes the workflow rule population for the stats query.
type RuleCounts struct {
	Draft     int
	Published int
}

// RuleRepository encapsulates workflow rule persistence.
type RuleRepository interface {
	Create(ctx context.Context, rule *domain.WorkflowRule) error
	Update(ctx context.Context, rule *domain.WorkflowRule) error
	GetByID(ctx context.Context, id string) (*domain.WorkflowRule, error)
	List(ctx context.Context, status *domain.RuleStatus) ([]domain.WorkflowRule, error)
	ListPublishedByTrigger(ctx context.Context, trigger domain.RuleTrigger) ([]domain.WorkflowRule, error)
	Counts(ctx context.Context) (RuleCounts, error)
}

type ruleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository instantiates repository.
func NewRuleRepository(pool *pgxpool.Pool) RuleRepository {
	return &ruleRepository{pool: pool}
}

const ruleColumns = `id, name, status, trigger_type, conditions, actions, published_at, created_at, updated_at`

func (r *ruleRepository) Create(ctx context.Context, rule *domain.WorkflowRule) error {
	conditions, actions, err := encodeRuleParts(rule)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO workflow_rules (name, status, trigger_type, conditions, actions, published_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.Name,
		rule.Status,
		rule.Trigger,
		conditions,
		actions,
		rule.PublishedAt,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

func (r *ruleRepository) Update(ctx context.Context, rule *domain.WorkflowRule) error {
	conditions, actions, err := encodeRuleParts(rule)
	if err != nil {
		return err
	}
	const query = `
        UPDATE workflow_rules SET name=$1, status=$2, trigger_type=$3, conditions=$4, actions=$5,
            published_at=$6, updated_at=NOW()
        WHERE id=$7`
	cmd, err := r.pool.Exec(ctx, query,
		rule.Name,
		rule.Status,
		rule.Trigger,
		conditions,
		actions,
		rule.PublishedAt,
		rule.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func encodeRuleParts(rule *domain.WorkflowRule) ([]byte, []byte, error) {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, err
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, err
	}
	return conditions, actions, nil
}

func (r *ruleRepository) GetByID(ctx context.Context, id string) (*domain.WorkflowRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_rules WHERE id=$1`, ruleColumns)
	row := r.pool.QueryRow(ctx, query, id)
	return scanRule(row)
}

func (r *ruleRepository) List(ctx context.Context, status *domain.RuleStatus) ([]domain.WorkflowRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_rules`, ruleColumns)
	args := []any{}
	if status != nil {
		args = append(args, *status)
		query += ` WHERE status=$1`
	}
	query += ` ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *ruleRepository) ListPublishedByTrigger(ctx context.Context, trigger domain.RuleTrigger) ([]domain.WorkflowRule, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM workflow_rules
        WHERE status=$1 AND trigger_type=$2
        ORDER BY created_at`, ruleColumns)
	rows, err := r.pool.Query(ctx, query, domain.RuleStatusPublished, trigger)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func scanRule(row rowScanner) (*domain.WorkflowRule, error) {
	var (
		rule       domain.WorkflowRule
		conditions []byte
		actions    []byte
	)
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Status,
		&rule.Trigger,
		&conditions,
		&actions,
		&rule.PublishedAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("decode rule conditions: %w", err)
	}
	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return nil, fmt.Errorf("decode rule actions: %w", err)
	}
	return &rule, nil
}

func scanRules(rows pgx.Rows) ([]domain.WorkflowRule, error) {
	var result []domain.WorkflowRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

func (r *ruleRepository) Counts(ctx context.Context) (RuleCounts, error) {
	var counts RuleCounts
	err := r.pool.QueryRow(ctx, `
        SELECT
            COUNT(*) FILTER (WHERE status='draft'),
            COUNT(*) FILTER (WHERE status='published')
        FROM workflow_rules`,
	).Scan(&counts.Draft, &counts.Published)
	return counts, err
}
