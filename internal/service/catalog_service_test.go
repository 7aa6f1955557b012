package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/classtrack-api/internal/models"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
)

type mockCatalogRepo struct {
	departments  map[string]*models.Department
	batches      map[string]*models.Batch
	subjects     map[string]*models.Subject
	updatedBatch *models.Batch
}

func (m *mockCatalogRepo) ListDepartments(ctx context.Context) ([]models.Department, error) {
	var out []models.Department
	for _, dept := range m.departments {
		out = append(out, *dept)
	}
	return out, nil
}

func (m *mockCatalogRepo) FindDepartment(ctx context.Context, id string) (*models.Department, error) {
	if dept, ok := m.departments[id]; ok {
		return dept, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalogRepo) CreateDepartment(ctx context.Context, dept *models.Department) error {
	dept.ID = "new-dept"
	return nil
}

func (m *mockCatalogRepo) ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	var out []models.Batch
	for _, batch := range m.batches {
		out = append(out, *batch)
	}
	return out, len(out), nil
}

func (m *mockCatalogRepo) FindBatch(ctx context.Context, id string) (*models.Batch, error) {
	if batch, ok := m.batches[id]; ok {
		copied := *batch
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalogRepo) CreateBatch(ctx context.Context, batch *models.Batch) error {
	batch.ID = "new-batch"
	return nil
}

func (m *mockCatalogRepo) UpdateBatch(ctx context.Context, batch *models.Batch) error {
	m.updatedBatch = batch
	return nil
}

func (m *mockCatalogRepo) ListSubjects(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	var out []models.Subject
	for _, subject := range m.subjects {
		out = append(out, *subject)
	}
	return out, len(out), nil
}

func (m *mockCatalogRepo) FindSubject(ctx context.Context, id string) (*models.Subject, error) {
	if subject, ok := m.subjects[id]; ok {
		return subject, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalogRepo) CreateSubject(ctx context.Context, subject *models.Subject) error {
	subject.ID = "new-subject"
	return nil
}

func newCatalogFixture() (*CatalogService, *mockCatalogRepo) {
	repo := &mockCatalogRepo{
		departments: map[string]*models.Department{"d1": {ID: "d1", Name: "Computer Science", Code: "CS"}},
		batches:     map[string]*models.Batch{"b1": {ID: "b1", Name: "CS-3A", DepartmentID: "d1", Active: true}},
		subjects:    map[string]*models.Subject{},
	}
	return NewCatalogService(repo, nil, nil), repo
}

func TestCreateBatchDefaultsActive(t *testing.T) {
	svc, _ := newCatalogFixture()

	batch, err := svc.CreateBatch(context.Background(), CreateBatchRequest{
		Name:         "CS-3B",
		DepartmentID: "d1",
		AcademicYear: "2026-2027",
	})
	require.NoError(t, err)
	assert.Equal(t, "new-batch", batch.ID)
	assert.True(t, batch.Active)
}

func TestCreateBatchUnknownDepartment(t *testing.T) {
	svc, _ := newCatalogFixture()

	_, err := svc.CreateBatch(context.Background(), CreateBatchRequest{
		Name:         "CS-3B",
		DepartmentID: "d9",
		AcademicYear: "2026-2027",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestSetBatchActiveRetires(t *testing.T) {
	svc, repo := newCatalogFixture()

	batch, err := svc.SetBatchActive(context.Background(), "b1", false)
	require.NoError(t, err)
	assert.False(t, batch.Active)
	require.NotNil(t, repo.updatedBatch)
	assert.False(t, repo.updatedBatch.Active)
}

func TestCreateSubjectRequiresSemester(t *testing.T) {
	svc, _ := newCatalogFixture()

	_, err := svc.CreateSubject(context.Background(), CreateSubjectRequest{
		Name:         "Mathematics",
		Code:         "MATH301",
		DepartmentID: "d1",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	subject, err := svc.CreateSubject(context.Background(), CreateSubjectRequest{
		Name:         "Mathematics",
		Code:         "MATH301",
		DepartmentID: "d1",
		Semester:     3,
	})
	require.NoError(t, err)
	assert.Equal(t, "new-subject", subject.ID)
}
