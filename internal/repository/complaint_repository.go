package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-kit/grievance-service/internal/domain"
)

// ErrEscalationConflict means the complaint's level moved since it was read.
var ErrEscalationConflict = errors.New("escalation level changed concurrently")

// ComplaintFilter captures listing and scanning parameters.
type ComplaintFilter struct {
	Statuses       []domain.ComplaintStatus
	Departments    []string
	Urgencies      []domain.Urgency
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	UpdatedFrom    *time.Time
	UpdatedTo      *time.Time
	DeadlineBefore *time.Time
	SortByDeadline bool
	Limit          int
	Offset         int
}

// ComplaintPatch lists the mutable fields; nil fields are left untouched.
// UrgencyAtLeast raises urgency to a floor in the same write and is ignored
// when Urgency is set.
type ComplaintPatch struct {
	Status           *domain.ComplaintStatus
	Urgency          *domain.Urgency
	UrgencyAtLeast   *domain.Urgency
	UpvoteDelta      int
	FollowUpAt       *time.Time
	BreachNotifiedAt *time.Time
	Metadata         map[string]any
}

// ComplaintRepository encapsulates complaint persistence.
type ComplaintRepository interface {
	Create(ctx context.Context, complaint *domain.Complaint) error
	GetByID(ctx context.Context, id string) (*domain.Complaint, error)
	Update(ctx context.Context, id string, patch ComplaintPatch) (*domain.Complaint, error)
	ListWithFilter(ctx context.Context, filter ComplaintFilter) ([]domain.Complaint, error)
	// Escalate moves the complaint from level `from` to esc.Level and appends
	// esc, atomically. ErrEscalationConflict is returned if `from` is stale.
	Escalate(ctx context.Context, esc *domain.Escalation, from domain.EscalationLevel) (*domain.Complaint, error)
}

const complaintColumns = `id, description, citizen_name, citizen_email, citizen_phone, attachments,
        location_hint, location, category, urgency, department, department_name, jurisdiction,
        sla_hours, sla_deadline, sentiment, policy, status, escalation_level, followup_count,
        last_followup_at, breach_notified_at, upvotes, metadata, created_at, updated_at`

type complaintRepository struct {
	pool *pgxpool.Pool
}

// NewComplaintRepository instantiates repository.
func NewComplaintRepository(pool *pgxpool.Pool) ComplaintRepository {
	return &complaintRepository{pool: pool}
}

func (r *complaintRepository) Create(ctx context.Context, c *domain.Complaint) error {
	const query = `
        INSERT INTO complaints (id, description, citizen_name, citizen_email, citizen_phone, attachments,
            location_hint, location, category, urgency, department, department_name, jurisdiction,
            sla_hours, sla_deadline, sentiment, policy, status, escalation_level, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
        RETURNING created_at, updated_at`
	attachments := c.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	metadata := c.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return r.pool.QueryRow(ctx, query,
		c.ID,
		c.Description,
		c.Contact.Name,
		c.Contact.Email,
		c.Contact.Phone,
		attachments,
		c.LocationHint,
		c.Location,
		c.Category,
		c.Urgency,
		c.Department,
		c.DepartmentName,
		c.Jurisdiction,
		c.SLAHours,
		c.SLADeadline,
		c.Sentiment,
		c.Policy,
		c.Status,
		c.EscalationLevel,
		metadata,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *complaintRepository) GetByID(ctx context.Context, id string) (*domain.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id=$1`
	return scanComplaint(r.pool.QueryRow(ctx, query, id))
}

func (r *complaintRepository) Update(ctx context.Context, id string, patch ComplaintPatch) (*domain.Complaint, error) {
	sets := []string{"updated_at=NOW()"}
	args := []any{}

	if patch.Status != nil {
		args = append(args, *patch.Status)
		sets = append(sets, fmt.Sprintf("status=$%d", len(args)))
	}
	if patch.Urgency != nil {
		args = append(args, *patch.Urgency)
		sets = append(sets, fmt.Sprintf("urgency=$%d", len(args)))
	} else if patch.UrgencyAtLeast != nil {
		below := make([]string, 0, 3)
		for _, u := range domain.UrgenciesBelow(*patch.UrgencyAtLeast) {
			below = append(below, string(u))
		}
		args = append(args, string(*patch.UrgencyAtLeast), below)
		sets = append(sets, fmt.Sprintf("urgency=CASE WHEN urgency = ANY($%d::text[]) THEN $%d ELSE urgency END",
			len(args), len(args)-1))
	}
	if patch.UpvoteDelta != 0 {
		args = append(args, patch.UpvoteDelta)
		sets = append(sets, fmt.Sprintf("upvotes=upvotes+$%d", len(args)))
	}
	if patch.FollowUpAt != nil {
		args = append(args, *patch.FollowUpAt)
		sets = append(sets, fmt.Sprintf("last_followup_at=$%d", len(args)), "followup_count=followup_count+1")
	}
	if patch.BreachNotifiedAt != nil {
		args = append(args, *patch.BreachNotifiedAt)
		sets = append(sets, fmt.Sprintf("breach_notified_at=$%d", len(args)))
	}
	if len(patch.Metadata) > 0 {
		args = append(args, patch.Metadata)
		sets = append(sets, fmt.Sprintf("metadata=metadata || $%d::jsonb", len(args)))
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE complaints SET %s WHERE id=$%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), complaintColumns)
	return scanComplaint(r.pool.QueryRow(ctx, query, args...))
}

func (r *complaintRepository) ListWithFilter(ctx context.Context, filter ComplaintFilter) ([]domain.Complaint, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Departments) > 0 {
		args = append(args, filter.Departments)
		clauses = append(clauses, fmt.Sprintf("department = ANY($%d)", len(args)))
	}
	if len(filter.Urgencies) > 0 {
		placeholders := make([]string, len(filter.Urgencies))
		for i, u := range filter.Urgencies {
			args = append(args, u)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("urgency IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.UpdatedFrom != nil {
		args = append(args, *filter.UpdatedFrom)
		clauses = append(clauses, fmt.Sprintf("updated_at >= $%d", len(args)))
	}
	if filter.UpdatedTo != nil {
		args = append(args, *filter.UpdatedTo)
		clauses = append(clauses, fmt.Sprintf("updated_at <= $%d", len(args)))
	}
	if filter.DeadlineBefore != nil {
		args = append(args, *filter.DeadlineBefore)
		clauses = append(clauses, fmt.Sprintf("sla_deadline < $%d", len(args)))
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	order := "updated_at DESC"
	if filter.SortByDeadline {
		order = "sla_deadline ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM complaints WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		complaintColumns, strings.Join(clauses, " AND "), order, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (r *complaintRepository) Escalate(ctx context.Context, esc *domain.Escalation, from domain.EscalationLevel) (*domain.Complaint, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	update := `UPDATE complaints SET status=$2, escalation_level=$3, updated_at=NOW()
        WHERE id=$1 AND escalation_level=$4 AND status NOT IN ('resolved','closed')
        RETURNING ` + complaintColumns
	complaint, err := scanComplaint(tx.QueryRow(ctx, update,
		esc.ComplaintID, domain.ComplaintStatusEscalated, esc.Level, from))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEscalationConflict
		}
		return nil, err
	}

	if err := insertEscalation(ctx, tx, esc); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return complaint, nil
}

func scanComplaint(row pgx.Row) (*domain.Complaint, error) {
	var c domain.Complaint
	if err := row.Scan(
		&c.ID,
		&c.Description,
		&c.Contact.Name,
		&c.Contact.Email,
		&c.Contact.Phone,
		&c.Attachments,
		&c.LocationHint,
		&c.Location,
		&c.Category,
		&c.Urgency,
		&c.Department,
		&c.DepartmentName,
		&c.Jurisdiction,
		&c.SLAHours,
		&c.SLADeadline,
		&c.Sentiment,
		&c.Policy,
		&c.Status,
		&c.EscalationLevel,
		&c.FollowUpCount,
		&c.LastFollowUpAt,
		&c.BreachNotifiedAt,
		&c.Upvotes,
		&c.Metadata,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
