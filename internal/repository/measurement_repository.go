package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

const measurementColumns = `id, ticket_id, policy_id, status, response_target_at, first_response_at,
        response_breached, resolution_target_at, resolved_at, resolution_breached,
        started_at, breached_at, created_at, updated_at`

// MeasurementFilter captures listing parameters.
type MeasurementFilter struct {
	Status             *domain.SlaStatus
	ResponseBreached   *bool
	ResolutionBreached *bool
	Limit              int
	Offset             int
}

// MeasurementRepository persists SLA measurements. Save commits the
// measurement row and the ticket's denormalized sla_breached flag in one
// transaction; the two writes must never be split.
type MeasurementRepository interface {
	GetByTicket(ctx context.Context, ticketID string) (*domain.SlaMeasurement, error)
	List(ctx context.Context, tenantID string, filter MeasurementFilter) ([]domain.SlaMeasurement, error)
	Save(ctx context.Context, measurement *domain.SlaMeasurement, slaBreached bool) error
}

type measurementRepository struct {
	pool *pgxpool.Pool
}

// NewMeasurementRepository instantiates the repository.
func NewMeasurementRepository(pool *pgxpool.Pool) MeasurementRepository {
	return &measurementRepository{pool: pool}
}

func (r *measurementRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.SlaMeasurement, error) {
	query := `SELECT ` + measurementColumns + ` FROM sla_measurements WHERE ticket_id=$1`

	var m domain.SlaMeasurement
	err := r.pool.QueryRow(ctx, query, ticketID).Scan(measurementFields(&m)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *measurementRepository) List(ctx context.Context, tenantID string, filter MeasurementFilter) ([]domain.SlaMeasurement, error) {
	query := `SELECT m.id, m.ticket_id, m.policy_id, m.status, m.response_target_at, m.first_response_at,
            m.response_breached, m.resolution_target_at, m.resolved_at, m.resolution_breached,
            m.started_at, m.breached_at, m.created_at, m.updated_at
        FROM sla_measurements m
        JOIN tickets t ON t.id = m.ticket_id
        WHERE t.tenant_id=$1`
	args := []any{tenantID}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND m.status=$%d", len(args))
	}
	if filter.ResponseBreached != nil {
		args = append(args, *filter.ResponseBreached)
		query += fmt.Sprintf(" AND m.response_breached=$%d", len(args))
	}
	if filter.ResolutionBreached != nil {
		args = append(args, *filter.ResolutionBreached)
		query += fmt.Sprintf(" AND m.resolution_breached=$%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" ORDER BY m.started_at DESC LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SlaMeasurement
	for rows.Next() {
		var m domain.SlaMeasurement
		if err := rows.Scan(measurementFields(&m)...); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *measurementRepository) Save(ctx context.Context, measurement *domain.SlaMeasurement, slaBreached bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if measurement.ID == "" {
		measurement.ID = uuid.NewString()
	}

	const upsert = `
        INSERT INTO sla_measurements (id, ticket_id, policy_id, status, response_target_at, first_response_at,
            response_breached, resolution_target_at, resolved_at, resolution_breached, started_at, breached_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (ticket_id) DO UPDATE SET
            status=EXCLUDED.status,
            first_response_at=EXCLUDED.first_response_at,
            response_breached=EXCLUDED.response_breached,
            resolved_at=EXCLUDED.resolved_at,
            resolution_breached=EXCLUDED.resolution_breached,
            breached_at=COALESCE(sla_measurements.breached_at, EXCLUDED.breached_at),
            updated_at=NOW()
        RETURNING id, created_at, updated_at`

	if err := tx.QueryRow(ctx, upsert,
		measurement.ID,
		measurement.TicketID,
		measurement.PolicyID,
		measurement.Status,
		measurement.ResponseTargetAt,
		measurement.FirstResponseAt,
		measurement.ResponseBreached,
		measurement.ResolutionTargetAt,
		measurement.ResolvedAt,
		measurement.ResolutionBreached,
		measurement.StartedAt,
		measurement.BreachedAt,
	).Scan(&measurement.ID, &measurement.CreatedAt, &measurement.UpdatedAt); err != nil {
		return err
	}

	cmd, err := tx.Exec(ctx,
		`UPDATE tickets SET sla_breached=$1, updated_at=NOW() WHERE id=$2`,
		slaBreached, measurement.TicketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return tx.Commit(ctx)
}

func measurementFields(m *domain.SlaMeasurement) []any {
	return []any{
		&m.ID,
		&m.TicketID,
		&m.PolicyID,
		&m.Status,
		&m.ResponseTargetAt,
		&m.FirstResponseAt,
		&m.ResponseBreached,
		&m.ResolutionTargetAt,
		&m.ResolvedAt,
		&m.ResolutionBreached,
		&m.StartedAt,
		&m.BreachedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	}
}
