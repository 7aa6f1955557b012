package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/classtrack-api/internal/models"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
	"github.com/classtrack/classtrack-api/pkg/jobs"
	"github.com/classtrack/classtrack-api/pkg/storage"
)

type mockExportJobRepo struct {
	jobs   map[string]*models.ExportJob
	nextID int
}

func (m *mockExportJobRepo) Create(ctx context.Context, job *models.ExportJob) error {
	if m.jobs == nil {
		m.jobs = make(map[string]*models.ExportJob)
	}
	m.nextID++
	job.ID = fmt.Sprintf("job%d", m.nextID)
	m.jobs[job.ID] = job
	return nil
}

func (m *mockExportJobRepo) FindByID(ctx context.Context, id string) (*models.ExportJob, error) {
	if job, ok := m.jobs[id]; ok {
		copied := *job
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockExportJobRepo) MarkProcessing(ctx context.Context, id string) error {
	m.jobs[id].Status = models.ExportStatusProcessing
	return nil
}

func (m *mockExportJobRepo) MarkDone(ctx context.Context, id, filePath string) error {
	m.jobs[id].Status = models.ExportStatusDone
	m.jobs[id].FilePath = &filePath
	return nil
}

func (m *mockExportJobRepo) MarkFailed(ctx context.Context, id, message string) error {
	m.jobs[id].Status = models.ExportStatusFailed
	m.jobs[id].ErrorMessage = &message
	return nil
}

type mockExportReports struct {
	matrix  *models.AttendanceMatrix
	history []models.ClassHistoryEntry
}

func (m *mockExportReports) Matrix(ctx context.Context, batchID string, from, to *time.Time) (*models.AttendanceMatrix, error) {
	return m.matrix, nil
}

func (m *mockExportReports) ClassHistory(ctx context.Context, teacherID string, filter models.AttendanceFilter) ([]models.ClassHistoryEntry, int, error) {
	if filter.Page > 1 {
		return nil, len(m.history), nil
	}
	return m.history, len(m.history), nil
}

func newExportFixture(t *testing.T) (*ExportService, *mockExportJobRepo) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("export-secret", time.Minute)
	repo := &mockExportJobRepo{}
	reports := &mockExportReports{
		matrix: &models.AttendanceMatrix{
			BatchID: "b1",
			Subjects: []models.SubjectSummary{
				{SubjectID: "s1", SubjectName: "Mathematics", TotalClasses: 2, Present: 1, Percentage: 50},
			},
			Rows: []models.MatrixRow{
				{
					StudentID:  "stu1",
					RollNumber: "01",
					FullName:   "A Student",
					Cells:      []models.MatrixCell{{SubjectID: "s1", TotalClasses: 2, Present: 1, Percentage: 50}},
					Overall:    models.OverallSummary{TotalClasses: 2, Present: 1, Percentage: 50},
				},
			},
		},
		history: []models.ClassHistoryEntry{
			{RecordID: "rec1", Date: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), SubjectName: "Mathematics", BatchName: "CS-3A", ClassTime: "09:00", Present: 18, Absent: 2, Percentage: 90},
		},
	}
	svc := NewExportService(repo, reports, store, signer, 1, 0, nil, nil, nil)
	return svc, repo
}

func TestCreateExportRequiresBatchForMatrix(t *testing.T) {
	svc, _ := newExportFixture(t)

	_, err := svc.Create(context.Background(), "admin", CreateExportRequest{
		Type:   models.ExportTypeBatchMatrix,
		Format: models.ExportFormatCSV,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestCreateExportRejectsUnknownType(t *testing.T) {
	svc, _ := newExportFixture(t)

	_, err := svc.Create(context.Background(), "admin", CreateExportRequest{
		Type:   "quarterly_digest",
		Format: models.ExportFormatCSV,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestExportMatrixRoundTrip(t *testing.T) {
	svc, repo := newExportFixture(t)
	batchID := "b1"
	repo.jobs = map[string]*models.ExportJob{"job1": {
		ID:      "job1",
		Type:    models.ExportTypeBatchMatrix,
		Format:  models.ExportFormatCSV,
		BatchID: &batchID,
		Status:  models.ExportStatusQueued,
	}}

	err := svc.process(context.Background(), jobs.Job{ID: "job1", Payload: exportPayload{
		jobID:   "job1",
		jobType: models.ExportTypeBatchMatrix,
		format:  models.ExportFormatCSV,
		batchID: batchID,
	}})
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusDone, repo.jobs["job1"].Status)
	require.NotNil(t, repo.jobs["job1"].FilePath)

	job, token, err := svc.Status(context.Background(), "job1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusDone, job.Status)
	require.NotEmpty(t, token)

	download, err := svc.Download(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "text/csv", download.ContentType)

	data, err := io.ReadAll(download.File)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Roll No")
	assert.Contains(t, content, "1/2 (50%)")
	assert.Contains(t, content, "A Student")
}

func TestExportClassHistoryPDF(t *testing.T) {
	svc, repo := newExportFixture(t)
	teacherID := "t1"
	repo.jobs = map[string]*models.ExportJob{"job1": {
		ID:        "job1",
		Type:      models.ExportTypeClassHistory,
		Format:    models.ExportFormatPDF,
		TeacherID: &teacherID,
		Status:    models.ExportStatusQueued,
	}}

	err := svc.process(context.Background(), jobs.Job{ID: "job1", Payload: exportPayload{
		jobID:     "job1",
		jobType:   models.ExportTypeClassHistory,
		format:    models.ExportFormatPDF,
		teacherID: teacherID,
	}})
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusDone, repo.jobs["job1"].Status)

	_, token, err := svc.Status(context.Background(), "job1")
	require.NoError(t, err)
	download, err := svc.Download(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "application/pdf", download.ContentType)
}

func TestDownloadRejectsTamperedToken(t *testing.T) {
	svc, repo := newExportFixture(t)
	filePath := "batch_matrix-job1.csv"
	repo.jobs = map[string]*models.ExportJob{"job1": {
		ID:       "job1",
		Type:     models.ExportTypeBatchMatrix,
		Format:   models.ExportFormatCSV,
		Status:   models.ExportStatusDone,
		FilePath: &filePath,
	}}

	_, token, err := svc.Status(context.Background(), "job1")
	require.NoError(t, err)

	_, err = svc.Download(context.Background(), token+"x")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestStatusPendingJobHasNoToken(t *testing.T) {
	svc, repo := newExportFixture(t)
	repo.jobs = map[string]*models.ExportJob{"job1": {
		ID:     "job1",
		Type:   models.ExportTypeBatchMatrix,
		Format: models.ExportFormatCSV,
		Status: models.ExportStatusProcessing,
	}}

	job, token, err := svc.Status(context.Background(), "job1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusProcessing, job.Status)
	assert.Empty(t, token)
}
