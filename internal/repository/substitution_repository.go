package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/classtrack/classtrack-api/internal/models"
)

const substitutionColumns = "id, original_teacher_id, substitute_teacher_id, subject_id, batch_id, date, start_time, end_time, room, reason, status, created_at, updated_at"

// SubstitutionRepository persists date-scoped teacher substitutions.
type SubstitutionRepository struct {
	db *sqlx.DB
}

// NewSubstitutionRepository creates a new substitution repository.
func NewSubstitutionRepository(db *sqlx.DB) *SubstitutionRepository {
	return &SubstitutionRepository{db: db}
}

// FindByID loads a substitution by id.
func (r *SubstitutionRepository) FindByID(ctx context.Context, id string) (*models.Substitution, error) {
	query := fmt.Sprintf("SELECT %s FROM substitutions WHERE id = $1", substitutionColumns)
	var sub models.Substitution
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		return nil, err
	}
	return &sub, nil
}

// List returns substitutions matching the filter, newest date first.
func (r *SubstitutionRepository) List(ctx context.Context, filter models.SubstitutionFilter) ([]models.Substitution, int, error) {
	base := "FROM substitutions WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("(original_teacher_id = $%d OR substitute_teacher_id = $%d)", len(args)+1, len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.BatchID != "" {
		conditions = append(conditions, fmt.Sprintf("batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY date DESC, start_time ASC LIMIT %d OFFSET %d", substitutionColumns, base, size, offset)
	var subs []models.Substitution
	if err := r.db.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list substitutions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count substitutions: %w", err)
	}

	return subs, total, nil
}

// ListForTeacherOnDate returns every substitution touching the teacher on the
// given date, in either direction, regardless of status.
func (r *SubstitutionRepository) ListForTeacherOnDate(ctx context.Context, teacherID string, date time.Time) ([]models.Substitution, error) {
	query := fmt.Sprintf("SELECT %s FROM substitutions WHERE date = $1 AND (original_teacher_id = $2 OR substitute_teacher_id = $2) ORDER BY start_time ASC", substitutionColumns)
	var subs []models.Substitution
	if err := r.db.SelectContext(ctx, &subs, query, date, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher substitutions: %w", err)
	}
	return subs, nil
}

// ListCoveringOnDate returns approved and completed substitutions for a date.
func (r *SubstitutionRepository) ListCoveringOnDate(ctx context.Context, date time.Time) ([]models.Substitution, error) {
	query := fmt.Sprintf("SELECT %s FROM substitutions WHERE date = $1 AND status IN ($2, $3) ORDER BY start_time ASC", substitutionColumns)
	var subs []models.Substitution
	if err := r.db.SelectContext(ctx, &subs, query, date, models.SubstitutionApproved, models.SubstitutionCompleted); err != nil {
		return nil, fmt.Errorf("list covering substitutions: %w", err)
	}
	return subs, nil
}

// FindCoveringForSlot returns the in-force substitution for an exact
// (date, subject, batch, start, end) slot, or sql.ErrNoRows.
func (r *SubstitutionRepository) FindCoveringForSlot(ctx context.Context, date time.Time, subjectID, batchID, startTime, endTime string) (*models.Substitution, error) {
	query := fmt.Sprintf("SELECT %s FROM substitutions WHERE date = $1 AND subject_id = $2 AND batch_id = $3 AND start_time = $4 AND end_time = $5 AND status IN ($6, $7) LIMIT 1", substitutionColumns)
	var sub models.Substitution
	if err := r.db.GetContext(ctx, &sub, query, date, subjectID, batchID, startTime, endTime, models.SubstitutionApproved, models.SubstitutionCompleted); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateChecked inserts a pending substitution after re-validating, inside
// one transaction, that no non-cancelled substitution exists for the same
// original teacher and slot and that the substitute has no overlapping
// non-cancelled substitution that date. Matching rows are locked FOR UPDATE
// so a concurrent cancel cannot slip between check and insert. When both
// checks see zero rows there is nothing to lock, so the partial unique index
// on (original_teacher_id, date, start_time, end_time) WHERE status <>
// 'CANCELLED' is the authoritative gate: a losing concurrent insert surfaces
// as a 23505 and reports the slot as taken.
func (r *SubstitutionRepository) CreateChecked(ctx context.Context, sub *models.Substitution) (slotTaken, substituteBusy bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, false, fmt.Errorf("begin create substitution: %w", err)
	}
	defer func() {
		if err != nil || slotTaken || substituteBusy {
			_ = tx.Rollback()
		}
	}()

	var ids []string
	err = tx.SelectContext(ctx, &ids,
		`SELECT id FROM substitutions WHERE original_teacher_id = $1 AND date = $2 AND start_time = $3 AND end_time = $4 AND status <> $5 FOR UPDATE`,
		sub.OriginalTeacherID, sub.Date, sub.StartTime, sub.EndTime, models.SubstitutionCancelled)
	if err != nil {
		return false, false, fmt.Errorf("check slot substitution: %w", err)
	}
	if len(ids) > 0 {
		return true, false, nil
	}

	ids = ids[:0]
	err = tx.SelectContext(ctx, &ids,
		`SELECT id FROM substitutions WHERE substitute_teacher_id = $1 AND date = $2 AND start_time < $4 AND end_time > $3 AND status <> $5 FOR UPDATE`,
		sub.SubstituteTeacherID, sub.Date, sub.StartTime, sub.EndTime, models.SubstitutionCancelled)
	if err != nil {
		return false, false, fmt.Errorf("check substitute availability: %w", err)
	}
	if len(ids) > 0 {
		return false, true, nil
	}

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	sub.Status = models.SubstitutionPending

	if _, err = tx.NamedExecContext(ctx, `INSERT INTO substitutions (id, original_teacher_id, substitute_teacher_id, subject_id, batch_id, date, start_time, end_time, room, reason, status, created_at, updated_at) VALUES (:id, :original_teacher_id, :substitute_teacher_id, :subject_id, :batch_id, :date, :start_time, :end_time, :room, :reason, :status, :created_at, :updated_at)`, sub); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return true, false, nil
		}
		return false, false, fmt.Errorf("insert substitution: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, false, fmt.Errorf("commit create substitution: %w", err)
	}
	return false, false, nil
}

// UpdateStatus persists a status transition.
func (r *SubstitutionRepository) UpdateStatus(ctx context.Context, id string, status models.SubstitutionStatus) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE substitutions SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update substitution status: %w", err)
	}
	return nil
}
