package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classtrack/classtrack-api/internal/models"
)

// CatalogRepository persists the academic catalog: departments, batches and
// subjects.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListDepartments returns all departments ordered by name.
func (r *CatalogRepository) ListDepartments(ctx context.Context) ([]models.Department, error) {
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, `SELECT id, name, code, created_at, updated_at FROM departments ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// FindDepartment loads a department by id.
func (r *CatalogRepository) FindDepartment(ctx context.Context, id string) (*models.Department, error) {
	var dept models.Department
	if err := r.db.GetContext(ctx, &dept, `SELECT id, name, code, created_at, updated_at FROM departments WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &dept, nil
}

// CreateDepartment stores a new department.
func (r *CatalogRepository) CreateDepartment(ctx context.Context, dept *models.Department) error {
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	dept.CreatedAt = now
	dept.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, `INSERT INTO departments (id, name, code, created_at, updated_at) VALUES (:id, :name, :code, :created_at, :updated_at)`, dept); err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// ListBatches returns batches with optional filtering and pagination.
func (r *CatalogRepository) ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	base := "FROM batches WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)+1))
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

	query := fmt.Sprintf("SELECT id, name, department_id, academic_year, active, created_at, updated_at %s ORDER BY name ASC LIMIT %d OFFSET %d", base, size, offset)
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}

	return batches, total, nil
}

// FindBatch loads a batch by id.
func (r *CatalogRepository) FindBatch(ctx context.Context, id string) (*models.Batch, error) {
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, `SELECT id, name, department_id, academic_year, active, created_at, updated_at FROM batches WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// FindBatchByName loads a batch by its display name. Names are trimmed and
// matched case-insensitively.
func (r *CatalogRepository) FindBatchByName(ctx context.Context, name string) (*models.Batch, error) {
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, `SELECT id, name, department_id, academic_year, active, created_at, updated_at FROM batches WHERE LOWER(name) = LOWER($1) LIMIT 1`, strings.TrimSpace(name)); err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListActiveBatches returns all active batches.
func (r *CatalogRepository) ListActiveBatches(ctx context.Context) ([]models.Batch, error) {
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, `SELECT id, name, department_id, academic_year, active, created_at, updated_at FROM batches WHERE active = TRUE ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("list active batches: %w", err)
	}
	return batches, nil
}

// CreateBatch stores a new batch.
func (r *CatalogRepository) CreateBatch(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	batch.CreatedAt = now
	batch.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, `INSERT INTO batches (id, name, department_id, academic_year, active, created_at, updated_at) VALUES (:id, :name, :department_id, :academic_year, :active, :created_at, :updated_at)`, batch); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// UpdateBatch modifies a batch record.
func (r *CatalogRepository) UpdateBatch(ctx context.Context, batch *models.Batch) error {
	batch.UpdatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, `UPDATE batches SET name = :name, department_id = :department_id, academic_year = :academic_year, active = :active, updated_at = :updated_at WHERE id = :id`, batch); err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	return nil
}

// ListSubjects returns subjects with optional filtering and pagination.
func (r *CatalogRepository) ListSubjects(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	base := "FROM subjects WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.Semester > 0 {
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args)+1, len(args)+1))
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

	query := fmt.Sprintf("SELECT id, name, code, department_id, semester, created_at, updated_at %s ORDER BY name ASC LIMIT %d OFFSET %d", base, size, offset)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}

	return subjects, total, nil
}

// FindSubject loads a subject by id.
func (r *CatalogRepository) FindSubject(ctx context.Context, id string) (*models.Subject, error) {
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, `SELECT id, name, code, department_id, semester, created_at, updated_at FROM subjects WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// FindSubjectByName resolves a subject within a department by display name.
// Names are trimmed and matched case-insensitively so weekly imports are not
// defeated by stray whitespace or casing.
func (r *CatalogRepository) FindSubjectByName(ctx context.Context, departmentID, name string) (*models.Subject, error) {
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, `SELECT id, name, code, department_id, semester, created_at, updated_at FROM subjects WHERE department_id = $1 AND LOWER(name) = LOWER($2) LIMIT 1`, departmentID, strings.TrimSpace(name)); err != nil {
		return nil, err
	}
	return &subject, nil
}

// CreateSubject stores a new subject.
func (r *CatalogRepository) CreateSubject(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	subject.CreatedAt = now
	subject.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, `INSERT INTO subjects (id, name, code, department_id, semester, created_at, updated_at) VALUES (:id, :name, :code, :department_id, :semester, :created_at, :updated_at)`, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}
