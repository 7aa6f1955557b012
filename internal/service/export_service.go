package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classtrack/classtrack-api/internal/models"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
	"github.com/classtrack/classtrack-api/pkg/export"
	"github.com/classtrack/classtrack-api/pkg/jobs"
	"github.com/classtrack/classtrack-api/pkg/storage"
)

type exportJobRepository interface {
	Create(ctx context.Context, job *models.ExportJob) error
	FindByID(ctx context.Context, id string) (*models.ExportJob, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id, filePath string) error
	MarkFailed(ctx context.Context, id, message string) error
}

type exportReports interface {
	Matrix(ctx context.Context, batchID string, from, to *time.Time) (*models.AttendanceMatrix, error)
	ClassHistory(ctx context.Context, teacherID string, filter models.AttendanceFilter) ([]models.ClassHistoryEntry, int, error)
}

// CreateExportRequest queues one report export.
type CreateExportRequest struct {
	Type      models.ExportType   `json:"type" validate:"required"`
	Format    models.ExportFormat `json:"format" validate:"required"`
	BatchID   string              `json:"batch_id"`
	TeacherID string              `json:"teacher_id"`
	DateFrom  *time.Time          `json:"date_from"`
	DateTo    *time.Time          `json:"date_to"`
}

// ExportDownload is a resolved signed download.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
}

type exportPayload struct {
	jobID     string
	jobType   models.ExportType
	format    models.ExportFormat
	batchID   string
	teacherID string
	from      *time.Time
	to        *time.Time
}

// ExportService renders reports to CSV or PDF in background workers. Files
// land in local storage and are fetched through short-lived signed tokens,
// so the download endpoint needs no session.
type ExportService struct {
	repo      exportJobRepository
	reports   exportReports
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	queue     *jobs.Queue
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExportService instantiates ExportService and its worker queue. Call
// Start before enqueuing and Stop on shutdown. metrics may be nil.
func NewExportService(repo exportJobRepository, reports exportReports, store *storage.LocalStorage, signer *storage.SignedURLSigner, workers, retries int, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExportService{
		repo:      repo,
		reports:   reports,
		store:     store,
		signer:    signer,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
	s.queue = jobs.NewQueue("report-exports", s.process, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		Logger:     logger,
	})
	return s
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains and stops the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// Create persists a QUEUED job and hands it to the worker pool.
func (s *ExportService) Create(ctx context.Context, actorID string, req CreateExportRequest) (*models.ExportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown export type")
	}
	if !req.Format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown export format")
	}

	job := &models.ExportJob{
		Type:      req.Type,
		Format:    req.Format,
		Status:    models.ExportStatusQueued,
		CreatedBy: actorID,
	}
	switch req.Type {
	case models.ExportTypeBatchMatrix:
		if req.BatchID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "batch_id is required for a batch matrix export")
		}
		job.BatchID = &req.BatchID
	case models.ExportTypeClassHistory:
		if req.TeacherID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "teacher_id is required for a class history export")
		}
		job.TeacherID = &req.TeacherID
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	payload := exportPayload{
		jobID:     job.ID,
		jobType:   req.Type,
		format:    req.Format,
		batchID:   req.BatchID,
		teacherID: req.TeacherID,
		from:      req.DateFrom,
		to:        req.DateTo,
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(req.Type), Payload: payload}); err != nil {
		if markErr := s.repo.MarkFailed(ctx, job.ID, "export queue is full"); markErr != nil {
			s.logger.Error("failed to mark export job failed", zap.String("job", job.ID), zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "export queue is full")
	}
	return job, nil
}

// Status returns a job and, when it is done, a signed download token.
func (s *ExportService) Status(ctx context.Context, id string) (*models.ExportJob, string, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.Status != models.ExportStatusDone || job.FilePath == nil {
		return job, "", nil
	}
	token, _, err := s.signer.Generate(job.ID, *job.FilePath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return job, token, nil
}

// Download resolves a signed token to the stored file. Expired or tampered
// tokens are rejected without touching the database.
func (s *ExportService) Download(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.Status != models.ExportStatusDone || job.FilePath == nil || *job.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export file is not available")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	contentType := "text/csv"
	if job.Format == models.ExportFormatPDF {
		contentType = "application/pdf"
	}
	return &ExportDownload{File: file, Filename: relPath, ContentType: contentType}, nil
}

func (s *ExportService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(exportPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	started := time.Now()
	outcome := "failed"
	defer func() {
		s.metrics.ObserveExport(string(payload.jobType), string(payload.format), outcome, time.Since(started))
	}()
	if err := s.repo.MarkProcessing(ctx, payload.jobID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	dataset, title, err := s.buildDataset(ctx, payload)
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, payload.jobID, err.Error()); markErr != nil {
			s.logger.Error("failed to mark export job failed", zap.String("job", payload.jobID), zap.Error(markErr))
		}
		return err
	}

	var data []byte
	switch payload.format {
	case models.ExportFormatPDF:
		data, err = s.pdf.Render(dataset, title)
	default:
		data, err = s.csv.Render(dataset)
	}
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, payload.jobID, "failed to render export"); markErr != nil {
			s.logger.Error("failed to mark export job failed", zap.String("job", payload.jobID), zap.Error(markErr))
		}
		return err
	}

	filename := fmt.Sprintf("%s-%s.%s", payload.jobType, payload.jobID, payload.format)
	relPath, err := s.store.Save(filename, data)
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, payload.jobID, "failed to store export"); markErr != nil {
			s.logger.Error("failed to mark export job failed", zap.String("job", payload.jobID), zap.Error(markErr))
		}
		return err
	}

	if err := s.repo.MarkDone(ctx, payload.jobID, relPath); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	outcome = "done"
	s.logger.Info("export rendered", zap.String("job", payload.jobID), zap.String("file", relPath))
	return nil
}

func (s *ExportService) buildDataset(ctx context.Context, payload exportPayload) (export.Dataset, string, error) {
	switch payload.jobType {
	case models.ExportTypeBatchMatrix:
		matrix, err := s.reports.Matrix(ctx, payload.batchID, payload.from, payload.to)
		if err != nil {
			return export.Dataset{}, "", fmt.Errorf("build matrix: %w", err)
		}
		return matrixDataset(matrix), "Batch Attendance Matrix", nil
	case models.ExportTypeClassHistory:
		var entries []models.ClassHistoryEntry
		for page := 1; ; page++ {
			filter := models.AttendanceFilter{DateFrom: payload.from, DateTo: payload.to, Page: page, PageSize: 100}
			batch, total, err := s.reports.ClassHistory(ctx, payload.teacherID, filter)
			if err != nil {
				return export.Dataset{}, "", fmt.Errorf("build class history: %w", err)
			}
			entries = append(entries, batch...)
			if len(batch) == 0 || len(entries) >= total {
				break
			}
		}
		return classHistoryDataset(entries), "Class History", nil
	default:
		return export.Dataset{}, "", fmt.Errorf("unknown export type %q", payload.jobType)
	}
}

func matrixDataset(matrix *models.AttendanceMatrix) export.Dataset {
	headers := []string{"Roll No", "Name"}
	for _, subject := range matrix.Subjects {
		headers = append(headers, subject.SubjectName)
	}
	headers = append(headers, "Overall %")

	rows := make([]map[string]string, 0, len(matrix.Rows))
	for _, row := range matrix.Rows {
		out := map[string]string{
			"Roll No":   row.RollNumber,
			"Name":      row.FullName,
			"Overall %": fmt.Sprintf("%d%%", row.Overall.Percentage),
		}
		for i, cell := range row.Cells {
			if i >= len(matrix.Subjects) {
				break
			}
			out[matrix.Subjects[i].SubjectName] = fmt.Sprintf("%d/%d (%d%%)", cell.Present, cell.TotalClasses, cell.Percentage)
		}
		rows = append(rows, out)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func classHistoryDataset(entries []models.ClassHistoryEntry) export.Dataset {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Date.After(entries[j].Date) })
	headers := []string{"Date", "Time", "Subject", "Batch", "Present", "Absent", "Percentage"}
	rows := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, map[string]string{
			"Date":       entry.Date.Format("2006-01-02"),
			"Time":       entry.ClassTime,
			"Subject":    entry.SubjectName,
			"Batch":      entry.BatchName,
			"Present":    fmt.Sprintf("%d", entry.Present),
			"Absent":     fmt.Sprintf("%d", entry.Absent),
			"Percentage": fmt.Sprintf("%d%%", entry.Percentage),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
