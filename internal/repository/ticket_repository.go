package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

const ticketColumns = `id, tenant_id, ticket_number, title, category, priority,
        current_status, opened_at, resolved_at, closed_at, sla_breached, created_at, updated_at`

// TicketRepository is the read-mostly view of the ticket store this engine
// consumes. The single write path, the denormalized sla_breached flag, is
// owned by the measurement repository so it commits in the same transaction
// as the measurement row.
type TicketRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListOpen(ctx context.Context, tenantID *string) ([]domain.Ticket, error)
	ListStatusHistory(ctx context.Context, ticketID string) ([]domain.StatusTransition, error)
	ListWorklogs(ctx context.Context, ticketID string) ([]domain.Worklog, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`

	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.TenantID,
		&ticket.TicketNumber,
		&ticket.Title,
		&ticket.Category,
		&ticket.Priority,
		&ticket.CurrentStatus,
		&ticket.OpenedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.SlaBreached,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListOpen(ctx context.Context, tenantID *string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE current_status NOT IN ('RESOLVED','CLOSED','CANCELLED')`
	args := []any{}
	if tenantID != nil {
		query += ` AND tenant_id=$1`
		args = append(args, *tenantID)
	}
	query += ` ORDER BY opened_at ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListStatusHistory(ctx context.Context, ticketID string) ([]domain.StatusTransition, error) {
	const query = `
        SELECT id, ticket_id, from_status, to_status, reason, changed_by, changed_at
        FROM ticket_status_history
        WHERE ticket_id=$1
        ORDER BY changed_at ASC`

	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StatusTransition
	for rows.Next() {
		var entry domain.StatusTransition
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.FromStatus,
			&entry.ToStatus,
			&entry.Reason,
			&entry.ChangedBy,
			&entry.ChangedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *ticketRepository) ListWorklogs(ctx context.Context, ticketID string) ([]domain.Worklog, error) {
	const query = `
        SELECT id, ticket_id, body, work_type, time_spent_minutes, is_internal, author_id, created_at, updated_at
        FROM worklogs
        WHERE ticket_id=$1
        ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Worklog
	for rows.Next() {
		var entry domain.Worklog
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Body,
			&entry.WorkType,
			&entry.TimeSpentMinutes,
			&entry.IsInternal,
			&entry.AuthorID,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.TenantID,
			&ticket.TicketNumber,
			&ticket.Title,
			&ticket.Category,
			&ticket.Priority,
			&ticket.CurrentStatus,
			&ticket.OpenedAt,
			&ticket.ResolvedAt,
			&ticket.ClosedAt,
			&ticket.SlaBreached,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
