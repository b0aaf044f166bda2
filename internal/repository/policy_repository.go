package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

const policyColumns = `id, tenant_id, category, priority, response_time_minutes,
        resolution_time_minutes, is_active, created_at, updated_at`

// PolicyFilter captures listing parameters for the admin surface.
type PolicyFilter struct {
	ActiveOnly bool
	Category   *domain.TicketCategory
	Priority   *domain.TicketPriority
}

// PolicyRepository encapsulates SLA policy persistence.
type PolicyRepository interface {
	// FindActive returns the active policy exactly matching category and
	// priority, or nil when none exists.
	FindActive(ctx context.Context, tenantID string, category domain.TicketCategory, priority domain.TicketPriority) (*domain.SlaPolicy, error)
	// FindActiveByPriority returns the earliest-created active policy for
	// the priority across all categories, or nil when none exists.
	FindActiveByPriority(ctx context.Context, tenantID string, priority domain.TicketPriority) (*domain.SlaPolicy, error)
	GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error)
	List(ctx context.Context, tenantID string, filter PolicyFilter) ([]domain.SlaPolicy, error)
	Create(ctx context.Context, policy *domain.SlaPolicy) error
	Update(ctx context.Context, policy *domain.SlaPolicy) error
}

type policyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository instantiates the repository.
func NewPolicyRepository(pool *pgxpool.Pool) PolicyRepository {
	return &policyRepository{pool: pool}
}

func (r *policyRepository) FindActive(ctx context.Context, tenantID string, category domain.TicketCategory, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	query := `SELECT ` + policyColumns + `
        FROM sla_policies
        WHERE tenant_id=$1 AND category=$2 AND priority=$3 AND is_active
        ORDER BY created_at ASC
        LIMIT 1`
	return r.fetchOptional(ctx, query, tenantID, category, priority)
}

func (r *policyRepository) FindActiveByPriority(ctx context.Context, tenantID string, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	query := `SELECT ` + policyColumns + `
        FROM sla_policies
        WHERE tenant_id=$1 AND priority=$2 AND is_active
        ORDER BY created_at ASC
        LIMIT 1`
	return r.fetchOptional(ctx, query, tenantID, priority)
}

func (r *policyRepository) GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies WHERE id=$1`
	var policy domain.SlaPolicy
	if err := r.pool.QueryRow(ctx, query, id).Scan(policyFields(&policy)...); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *policyRepository) List(ctx context.Context, tenantID string, filter PolicyFilter) ([]domain.SlaPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies WHERE tenant_id=$1`
	args := []any{tenantID}

	if filter.ActiveOnly {
		query += ` AND is_active`
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		query += ` AND category=$2`
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		if filter.Category != nil {
			query += ` AND priority=$3`
		} else {
			query += ` AND priority=$2`
		}
	}
	query += ` ORDER BY priority, category`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SlaPolicy
	for rows.Next() {
		var policy domain.SlaPolicy
		if err := rows.Scan(policyFields(&policy)...); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}

func (r *policyRepository) Create(ctx context.Context, policy *domain.SlaPolicy) error {
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO sla_policies (id, tenant_id, category, priority, response_time_minutes, resolution_time_minutes, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.ID,
		policy.TenantID,
		policy.Category,
		policy.Priority,
		policy.ResponseTimeMinutes,
		policy.ResolutionTimeMinutes,
		policy.IsActive,
	).Scan(&policy.CreatedAt, &policy.UpdatedAt)
}

func (r *policyRepository) Update(ctx context.Context, policy *domain.SlaPolicy) error {
	const query = `
        UPDATE sla_policies
        SET response_time_minutes=$1, resolution_time_minutes=$2, is_active=$3, updated_at=NOW()
        WHERE id=$4`
	cmd, err := r.pool.Exec(ctx, query,
		policy.ResponseTimeMinutes,
		policy.ResolutionTimeMinutes,
		policy.IsActive,
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

func (r *policyRepository) fetchOptional(ctx context.Context, query string, args ...any) (*domain.SlaPolicy, error) {
	var policy domain.SlaPolicy
	err := r.pool.QueryRow(ctx, query, args...).Scan(policyFields(&policy)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

func policyFields(p *domain.SlaPolicy) []any {
	return []any{
		&p.ID,
		&p.TenantID,
		&p.Category,
		&p.Priority,
		&p.ResponseTimeMinutes,
		&p.ResolutionTimeMinutes,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
}
