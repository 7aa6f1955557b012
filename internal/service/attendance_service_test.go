package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/classtrack-api/internal/models"
	"github.com/classtrack/classtrack-api/internal/repository"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
)

type mockAttendanceRepo struct {
	record    *models.AttendanceRecord
	entries   []models.AttendanceEntry
	duplicate bool
}

func (m *mockAttendanceRepo) CreateWithEntries(ctx context.Context, record *models.AttendanceRecord, entries []models.AttendanceEntry) error {
	if m.duplicate {
		return repository.ErrDuplicateAttendance
	}
	record.ID = "rec1"
	m.record = record
	m.entries = entries
	return nil
}

func (m *mockAttendanceRepo) FindByID(ctx context.Context, id string) (*models.AttendanceRecordDetail, error) {
	if m.record == nil || m.record.ID != id {
		return nil, sql.ErrNoRows
	}
	return &models.AttendanceRecordDetail{AttendanceRecord: *m.record, Entries: m.entries}, nil
}

func (m *mockAttendanceRepo) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	return nil, 0, nil
}

func (m *mockAttendanceRepo) StudentRows(ctx context.Context, studentID string, from, to *time.Time) ([]models.StudentAttendanceRow, error) {
	return nil, nil
}

type mockCoverLookup struct {
	cover *models.Substitution
}

func (m *mockCoverLookup) FindCoveringForSlot(ctx context.Context, date time.Time, subjectID, batchID, startTime, endTime string) (*models.Substitution, error) {
	if m.cover == nil {
		return nil, sql.ErrNoRows
	}
	return m.cover, nil
}

type mockBatchRoster struct {
	students []models.StudentDetail
}

func (m *mockBatchRoster) BatchRoster(ctx context.Context, batchID string) ([]models.StudentDetail, error) {
	return m.students, nil
}

type mockPatternCache struct {
	patterns []string
}

func (m *mockPatternCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

type attendanceFixture struct {
	svc    *AttendanceService
	repo   *mockAttendanceRepo
	cover  *mockCoverLookup
	cache  *mockPatternCache
	roster *mockBatchRoster
}

func newAttendanceFixture() *attendanceFixture {
	repo := &mockAttendanceRepo{}
	cover := &mockCoverLookup{}
	cache := &mockPatternCache{}
	roster := &mockBatchRoster{students: []models.StudentDetail{
		{Student: models.Student{UserID: "stu1", RollNumber: "01", BatchID: "b1"}},
		{Student: models.Student{UserID: "stu2", RollNumber: "02", BatchID: "b1"}},
	}}
	timetable := &mockTimetableRepo{days: map[string][]models.TimeSlot{
		"b1|MONDAY": {mondayMathSlot()},
	}}
	svc := NewAttendanceService(repo, timetable, cover, roster, cache, nil, nil, nil, time.UTC)
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC) }
	return &attendanceFixture{svc: svc, repo: repo, cover: cover, cache: cache, roster: roster}
}

func markRequest() MarkAttendanceRequest {
	return MarkAttendanceRequest{
		Date:            "2026-09-07",
		SubjectID:       "s1",
		BatchID:         "b1",
		ClassTime:       "09:00",
		DurationMinutes: 60,
		Entries: []MarkEntryInput{
			{StudentID: "stu1", Status: models.AttendancePresent},
			{StudentID: "stu2", Status: models.AttendanceAbsent},
		},
	}
}

func TestMarkByCanonicalTeacher(t *testing.T) {
	f := newAttendanceFixture()

	detail, err := f.svc.Mark(context.Background(), "t1", models.RoleTeacher, markRequest())
	require.NoError(t, err)
	assert.False(t, detail.IsSubstitution)
	assert.Equal(t, "t1", detail.TakenByID)
	require.Len(t, detail.Entries, 2)
	assert.Equal(t, "01", detail.Entries[0].RollNumber)
	assert.Contains(t, f.cache.patterns, "reports:batch:b1:*")
	assert.Contains(t, f.cache.patterns, "reports:student:stu1:*")
}

func TestMarkByWrongTeacherForbidden(t *testing.T) {
	f := newAttendanceFixture()

	_, err := f.svc.Mark(context.Background(), "t9", models.RoleTeacher, markRequest())
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestMarkCoveredSlotRequiresSubstitute(t *testing.T) {
	f := newAttendanceFixture()
	f.cover.cover = &models.Substitution{
		ID:                  "sub1",
		OriginalTeacherID:   "t1",
		SubstituteTeacherID: "t2",
		Status:              models.SubstitutionApproved,
	}

	// The canonical teacher is locked out while the cover is in force.
	_, err := f.svc.Mark(context.Background(), "t1", models.RoleTeacher, markRequest())
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))

	detail, err := f.svc.Mark(context.Background(), "t2", models.RoleTeacher, markRequest())
	require.NoError(t, err)
	assert.True(t, detail.IsSubstitution)
	require.NotNil(t, detail.OriginalTeacherID)
	assert.Equal(t, "t1", *detail.OriginalTeacherID)
}

func TestMarkAdminBypassesTeacherCheck(t *testing.T) {
	f := newAttendanceFixture()

	detail, err := f.svc.Mark(context.Background(), "admin", models.RoleAdmin, markRequest())
	require.NoError(t, err)
	assert.False(t, detail.IsSubstitution)
}

func TestMarkRejectsPastDate(t *testing.T) {
	f := newAttendanceFixture()
	req := markRequest()
	req.Date = "2026-08-31"

	_, err := f.svc.Mark(context.Background(), "t1", models.RoleTeacher, req)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrPastDateRejected))
}

func TestMarkRejectsSunday(t *testing.T) {
	f := newAttendanceFixture()
	req := markRequest()
	req.Date = "2026-09-06"

	_, err := f.svc.Mark(context.Background(), "t1", models.RoleTeacher, req)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestMarkRejectsUnknownSlot(t *testing.T) {
	f := newAttendanceFixture()
	req := markRequest()
	req.ClassTime = "13:00"

	_, err := f.svc.Mark(context.Background(), "t1", models.RoleTeacher, req)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestMarkRejectsStudentOutsideBatch(t *testing.T) {
	f := newAttendanceFixture()
	req := markRequest()
	req.Entries = append(req.Entries, MarkEntryInput{StudentID: "stranger", Status: models.AttendancePresent})

	_, err := f.svc.Mark(context.Background(), "t1", models.RoleTeacher, req)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestMarkRejectsDuplicateStudentEntry(t *testing.T) {
	f := newAttendanceFixture()
	req := markRequest()
	req.Entries = append(req.Entries, MarkEntryInput{StudentID: "stu1", Status: models.AttendanceAbsent})

	_, err := f.svc.Mark(context.Background(), "t1", models.RoleTeacher, req)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestMarkRejectsUnknownStatus(t *testing.T) {
	f := newAttendanceFixture()
	req := markRequest()
	req.Entries[0].Status = "LATE"

	_, err := f.svc.Mark(context.Background(), "t1", models.RoleTeacher, req)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestMarkDuplicateRecordConflict(t *testing.T) {
	f := newAttendanceFixture()
	f.repo.duplicate = true

	_, err := f.svc.Mark(context.Background(), "t1", models.RoleTeacher, markRequest())
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrDuplicateRecord))
}

func TestMarkRejectsUnpaddedClassTime(t *testing.T) {
	f := newAttendanceFixture()
	req := markRequest()
	req.ClassTime = "9:00"

	_, err := f.svc.Mark(context.Background(), "t1", models.RoleTeacher, req)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}
