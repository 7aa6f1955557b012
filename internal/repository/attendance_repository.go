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

// ErrDuplicateAttendance signals the unique (date, subject, batch) index
// rejected the insert.
var ErrDuplicateAttendance = errors.New("attendance record already exists")

const attendanceColumns = "id, date, subject_id, batch_id, taken_by_id, class_time, duration_minutes, is_substitution, original_teacher_id, created_at"

// AttendanceRepository persists the append-only attendance ledger.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository creates a new attendance repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// CreateWithEntries inserts the record and its student entries in one
// transaction. The unique index on (date, subject_id, batch_id) is the
// authoritative duplicate gate; a violation surfaces as
// ErrDuplicateAttendance so concurrent submissions cannot both succeed.
func (r *AttendanceRepository) CreateWithEntries(ctx context.Context, record *models.AttendanceRecord, entries []models.AttendanceEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark attendance: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = time.Now().UTC()

	_, err = tx.NamedExecContext(ctx, `INSERT INTO attendance_records (id, date, subject_id, batch_id, taken_by_id, class_time, duration_minutes, is_substitution, original_teacher_id, created_at) VALUES (:id, :date, :subject_id, :batch_id, :taken_by_id, :class_time, :duration_minutes, :is_substitution, :original_teacher_id, :created_at)`, record)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			err = ErrDuplicateAttendance
			return err
		}
		return fmt.Errorf("insert attendance record: %w", err)
	}

	for i := range entries {
		entry := entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		entry.RecordID = record.ID
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO attendance_entries (id, record_id, student_id, roll_number, status) VALUES (:id, :record_id, :student_id, :roll_number, :status)`, &entry); err != nil {
			return fmt.Errorf("insert attendance entry: %w", err)
		}
		entries[i] = entry
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit mark attendance: %w", err)
	}
	return nil
}

// FindByID loads a record with its entries.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecordDetail, error) {
	query := fmt.Sprintf(`SELECT r.%s, s.name AS subject_name, b.name AS batch_name FROM attendance_records r JOIN subjects s ON s.id = r.subject_id JOIN batches b ON b.id = r.batch_id WHERE r.id = $1`, strings.ReplaceAll(attendanceColumns, ", ", ", r."))
	var detail models.AttendanceRecordDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	entries, err := r.listEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Entries = entries
	return &detail, nil
}

func (r *AttendanceRepository) listEntries(ctx context.Context, recordID string) ([]models.AttendanceEntry, error) {
	var entries []models.AttendanceEntry
	if err := r.db.SelectContext(ctx, &entries, `SELECT id, record_id, student_id, roll_number, status FROM attendance_entries WHERE record_id = $1 ORDER BY roll_number ASC`, recordID); err != nil {
		return nil, fmt.Errorf("list attendance entries: %w", err)
	}
	return entries, nil
}

// List returns ledger records matching the filter, newest date first.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	base := `FROM attendance_records r JOIN subjects s ON s.id = r.subject_id JOIN batches b ON b.id = r.batch_id WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("r.taken_by_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM attendance_entries e WHERE e.record_id = r.id AND e.student_id = $%d)", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.BatchID != "" {
		conditions = append(conditions, fmt.Sprintf("r.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("r.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("r.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("r.date <= $%d", len(args)+1))
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

	cols := "r." + strings.ReplaceAll(attendanceColumns, ", ", ", r.")
	query := fmt.Sprintf("SELECT %s, s.name AS subject_name, b.name AS batch_name %s ORDER BY r.date DESC, r.class_time ASC LIMIT %d OFFSET %d", cols, base, size, offset)
	var records []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}

	return records, total, nil
}

// StudentRows returns one (date, subject, status) observation per class the
// student was marked in, ordered by date. This is the aggregation layer's
// input.
func (r *AttendanceRepository) StudentRows(ctx context.Context, studentID string, from, to *time.Time) ([]models.StudentAttendanceRow, error) {
	query := `SELECT r.date, r.subject_id, s.name AS subject_name, e.status FROM attendance_entries e JOIN attendance_records r ON r.id = e.record_id JOIN subjects s ON s.id = r.subject_id WHERE e.student_id = $1`
	args := []interface{}{studentID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND r.date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND r.date <= $%d", len(args))
	}
	query += " ORDER BY r.date ASC"

	var rows []models.StudentAttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list student attendance rows: %w", err)
	}
	return rows, nil
}

// BatchRows returns per-student observations for a whole batch, for the
// cross-tab matrix.
func (r *AttendanceRepository) BatchRows(ctx context.Context, batchID string, from, to *time.Time) (map[string][]models.StudentAttendanceRow, error) {
	type batchRow struct {
		StudentID string `db:"student_id"`
		models.StudentAttendanceRow
	}
	query := `SELECT e.student_id, r.date, r.subject_id, s.name AS subject_name, e.status FROM attendance_entries e JOIN attendance_records r ON r.id = e.record_id JOIN subjects s ON s.id = r.subject_id WHERE r.batch_id = $1`
	args := []interface{}{batchID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND r.date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND r.date <= $%d", len(args))
	}
	query += " ORDER BY r.date ASC"

	var rows []batchRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list batch attendance rows: %w", err)
	}

	out := make(map[string][]models.StudentAttendanceRow)
	for _, row := range rows {
		out[row.StudentID] = append(out[row.StudentID], row.StudentAttendanceRow)
	}
	return out, nil
}

// EntryCounts returns present/absent tallies per record for the teacher's
// class history.
func (r *AttendanceRepository) EntryCounts(ctx context.Context, recordIDs []string) (map[string][2]int, error) {
	if len(recordIDs) == 0 {
		return map[string][2]int{}, nil
	}
	query, args, err := sqlx.In(`SELECT record_id, status, COUNT(*) AS n FROM attendance_entries WHERE record_id IN (?) GROUP BY record_id, status`, recordIDs)
	if err != nil {
		return nil, fmt.Errorf("build entry counts query: %w", err)
	}
	query = r.db.Rebind(query)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entry counts: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[string][2]int, len(recordIDs))
	for rows.Next() {
		var recordID string
		var status models.AttendanceStatus
		var n int
		if err := rows.Scan(&recordID, &status, &n); err != nil {
			return nil, fmt.Errorf("scan entry counts: %w", err)
		}
		pair := counts[recordID]
		if status == models.AttendancePresent {
			pair[0] = n
		} else {
			pair[1] = n
		}
		counts[recordID] = pair
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entry counts: %w", err)
	}
	return counts, nil
}
