package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classtrack/classtrack-api/internal/models"
)

// RosterRepository persists student and teacher placement data and the
// teacher-subject authorization table.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository creates a new roster repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// ListStudents returns students matching the filter ordered by roll number.
func (r *RosterRepository) ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := `FROM students st JOIN users u ON u.id = st.user_id WHERE u.active = TRUE`
	var conditions []string
	var args []interface{}

	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("st.department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.BatchID != "" {
		conditions = append(conditions, fmt.Sprintf("st.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.Semester > 0 {
		conditions = append(conditions, fmt.Sprintf("st.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(u.full_name ILIKE $%d OR st.roll_number ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT st.user_id, st.roll_number, st.department_id, st.batch_id, st.semester, st.created_at, st.updated_at, u.full_name, u.email %s ORDER BY st.roll_number ASC LIMIT %d OFFSET %d`, base, size, offset)
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	return students, total, nil
}

// BatchRoster returns the active students of a batch ordered by roll number.
func (r *RosterRepository) BatchRoster(ctx context.Context, batchID string) ([]models.StudentDetail, error) {
	const query = `SELECT st.user_id, st.roll_number, st.department_id, st.batch_id, st.semester, st.created_at, st.updated_at, u.full_name, u.email FROM students st JOIN users u ON u.id = st.user_id WHERE st.batch_id = $1 AND u.active = TRUE ORDER BY st.roll_number ASC`
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch roster: %w", err)
	}
	return students, nil
}

// FindStudent loads a student by user id.
func (r *RosterRepository) FindStudent(ctx context.Context, userID string) (*models.StudentDetail, error) {
	const query = `SELECT st.user_id, st.roll_number, st.department_id, st.batch_id, st.semester, st.created_at, st.updated_at, u.full_name, u.email FROM students st JOIN users u ON u.id = st.user_id WHERE st.user_id = $1`
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, query, userID); err != nil {
		return nil, err
	}
	return &student, nil
}

// CreateStudent stores placement data for a student account.
func (r *RosterRepository) CreateStudent(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, `INSERT INTO students (user_id, roll_number, department_id, batch_id, semester, created_at, updated_at) VALUES (:user_id, :roll_number, :department_id, :batch_id, :semester, :created_at, :updated_at)`, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// ListTeachers returns teachers, optionally restricted to those authorized
// for a subject.
func (r *RosterRepository) ListTeachers(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherDetail, int, error) {
	base := `FROM teachers t JOIN users u ON u.id = t.user_id WHERE u.active = TRUE`
	var conditions []string
	var args []interface{}

	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM teacher_subjects ts WHERE ts.teacher_id = t.user_id AND ts.subject_id = $%d)", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("u.full_name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
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

	query := fmt.Sprintf(`SELECT t.user_id, t.employee_code, t.created_at, t.updated_at, u.full_name, u.email %s ORDER BY u.full_name ASC LIMIT %d OFFSET %d`, base, size, offset)
	var teachers []models.TeacherDetail
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}

	return teachers, total, nil
}

// FindTeacher loads a teacher by user id.
func (r *RosterRepository) FindTeacher(ctx context.Context, userID string) (*models.TeacherDetail, error) {
	const query = `SELECT t.user_id, t.employee_code, t.created_at, t.updated_at, u.full_name, u.email FROM teachers t JOIN users u ON u.id = t.user_id WHERE t.user_id = $1`
	var teacher models.TeacherDetail
	if err := r.db.GetContext(ctx, &teacher, query, userID); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// CreateTeacher stores a teaching profile for a user account.
func (r *RosterRepository) CreateTeacher(ctx context.Context, teacher *models.Teacher) error {
	now := time.Now().UTC()
	teacher.CreatedAt = now
	teacher.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, `INSERT INTO teachers (user_id, employee_code, created_at, updated_at) VALUES (:user_id, :employee_code, :created_at, :updated_at)`, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// AssignSubject authorizes a teacher for a subject, optionally per batch.
func (r *RosterRepository) AssignSubject(ctx context.Context, assignment *models.TeacherSubject) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	assignment.CreatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, `INSERT INTO teacher_subjects (id, teacher_id, subject_id, batch_id, created_at) VALUES (:id, :teacher_id, :subject_id, :batch_id, :created_at)`, assignment); err != nil {
		return fmt.Errorf("assign subject: %w", err)
	}
	return nil
}

// UnassignSubject removes an authorization row.
func (r *RosterRepository) UnassignSubject(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM teacher_subjects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("unassign subject: %w", err)
	}
	return nil
}

// ListAssignments returns a teacher's subject authorizations with names.
func (r *RosterRepository) ListAssignments(ctx context.Context, teacherID string) ([]models.TeacherSubjectDetail, error) {
	const query = `SELECT ts.id, ts.teacher_id, ts.subject_id, ts.batch_id, ts.created_at, s.name AS subject_name, s.code AS subject_code, b.name AS batch_name FROM teacher_subjects ts JOIN subjects s ON s.id = ts.subject_id LEFT JOIN batches b ON b.id = ts.batch_id WHERE ts.teacher_id = $1 ORDER BY s.name ASC`
	var assignments []models.TeacherSubjectDetail
	if err := r.db.SelectContext(ctx, &assignments, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher assignments: %w", err)
	}
	return assignments, nil
}

// IsAuthorized reports whether a teacher may teach the subject to the batch.
// A NULL batch on the assignment row authorizes every batch.
func (r *RosterRepository) IsAuthorized(ctx context.Context, teacherID, subjectID, batchID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM teacher_subjects WHERE teacher_id = $1 AND subject_id = $2 AND (batch_id IS NULL OR batch_id = $3) LIMIT 1`, teacherID, subjectID, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check teacher authorization: %w", err)
	}
	return exists == 1, nil
}

// AuthorizedTeacherIDs returns teachers allowed to teach subject to batch.
func (r *RosterRepository) AuthorizedTeacherIDs(ctx context.Context, subjectID, batchID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT teacher_id FROM teacher_subjects WHERE subject_id = $1 AND (batch_id IS NULL OR batch_id = $2)`, subjectID, batchID); err != nil {
		return nil, fmt.Errorf("list authorized teachers: %w", err)
	}
	return ids, nil
}
