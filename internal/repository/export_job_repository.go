package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classtrack/classtrack-api/internal/models"
)

// ExportJobRepository persists asynchronous export job rows.
type ExportJobRepository struct {
	db *sqlx.DB
}

// NewExportJobRepository creates a new export job repository.
func NewExportJobRepository(db *sqlx.DB) *ExportJobRepository {
	return &ExportJobRepository{db: db}
}

// Create stores a queued job.
func (r *ExportJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	job.CreatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, `INSERT INTO export_jobs (id, type, format, batch_id, teacher_id, status, created_by, created_at) VALUES (:id, :type, :format, :batch_id, :teacher_id, :status, :created_by, :created_at)`, job); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

// FindByID loads a job by id.
func (r *ExportJobRepository) FindByID(ctx context.Context, id string) (*models.ExportJob, error) {
	var job models.ExportJob
	if err := r.db.GetContext(ctx, &job, `SELECT id, type, format, batch_id, teacher_id, status, file_path, error_message, created_by, created_at, finished_at FROM export_jobs WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkProcessing transitions a queued job to processing.
func (r *ExportJobRepository) MarkProcessing(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE export_jobs SET status = $2 WHERE id = $1`, id, models.ExportStatusProcessing); err != nil {
		return fmt.Errorf("mark export job processing: %w", err)
	}
	return nil
}

// MarkDone records the generated file path.
func (r *ExportJobRepository) MarkDone(ctx context.Context, id, filePath string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE export_jobs SET status = $2, file_path = $3, finished_at = $4 WHERE id = $1`, id, models.ExportStatusDone, filePath, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark export job done: %w", err)
	}
	return nil
}

// MarkFailed records the failure reason.
func (r *ExportJobRepository) MarkFailed(ctx context.Context, id, message string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE export_jobs SET status = $2, error_message = $3, finished_at = $4 WHERE id = $1`, id, models.ExportStatusFailed, message, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark export job failed: %w", err)
	}
	return nil
}
