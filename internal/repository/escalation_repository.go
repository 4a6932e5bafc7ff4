package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-kit/grievance-service/internal/domain"
)

// EscalationRepository stores the append-only escalation audit trail.
// ComplaintRepository.Escalate is the path that also moves the complaint;
// Create appends a record on its own, for example when importing history.
type EscalationRepository interface {
	Create(ctx context.Context, esc *domain.Escalation) error
	ListByComplaint(ctx context.Context, complaintID string) ([]domain.Escalation, error)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type escalationRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationRepository instantiates repository.
func NewEscalationRepository(pool *pgxpool.Pool) EscalationRepository {
	return &escalationRepository{pool: pool}
}

func (r *escalationRepository) Create(ctx context.Context, esc *domain.Escalation) error {
	if esc.Level.Rank() < 1 {
		return fmt.Errorf("escalation level %q cannot be recorded", esc.Level)
	}
	return insertEscalation(ctx, r.pool, esc)
}

// insertEscalation appends esc unless the complaint already holds a record at
// the same or a higher level.
func insertEscalation(ctx context.Context, q rowQuerier, esc *domain.Escalation) error {
	const query = `
        INSERT INTO escalations (id, complaint_id, escalation_level, reason, escalated_to, hours_overdue)
        SELECT $1::text, $2::uuid, $3::text, $4::text, $5::text, $6::double precision
        WHERE NOT EXISTS (
            SELECT 1 FROM escalations WHERE complaint_id=$2::uuid AND escalation_level = ANY($7::text[])
        )
        RETURNING created_at`
	err := q.QueryRow(ctx, query,
		esc.ID, esc.ComplaintID, esc.Level, esc.Reason, esc.EscalatedTo, esc.HoursOverdue,
		levelsAtOrAbove(esc.Level),
	).Scan(&esc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrEscalationConflict
	}
	return err
}

func levelsAtOrAbove(level domain.EscalationLevel) []string {
	var out []string
	for rank := max(level.Rank(), 1); rank <= domain.EscalationLevel4.Rank(); rank++ {
		out = append(out, string(domain.EscalationLevelFromRank(rank)))
	}
	return out
}

func (r *escalationRepository) ListByComplaint(ctx context.Context, complaintID string) ([]domain.Escalation, error) {
	const query = `
        SELECT id, complaint_id, escalation_level, reason, escalated_to, hours_overdue, created_at
        FROM escalations WHERE complaint_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, complaintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Escalation
	for rows.Next() {
		var esc domain.Escalation
		if err := rows.Scan(
			&esc.ID,
			&esc.ComplaintID,
			&esc.Level,
			&esc.Reason,
			&esc.EscalatedTo,
			&esc.HoursOverdue,
			&esc.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, esc)
	}
	return result, rows.Err()
}
