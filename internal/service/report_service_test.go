package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/classtrack-api/internal/models"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
)

type mockReportAttendance struct {
	studentRows map[string][]models.StudentAttendanceRow
	batchRows   map[string][]models.StudentAttendanceRow
	records     []models.AttendanceRecordDetail
	counts      map[string][2]int
}

func (m *mockReportAttendance) StudentRows(ctx context.Context, studentID string, from, to *time.Time) ([]models.StudentAttendanceRow, error) {
	return m.studentRows[studentID], nil
}

func (m *mockReportAttendance) BatchRows(ctx context.Context, batchID string, from, to *time.Time) (map[string][]models.StudentAttendanceRow, error) {
	return m.batchRows, nil
}

func (m *mockReportAttendance) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	return m.records, len(m.records), nil
}

func (m *mockReportAttendance) EntryCounts(ctx context.Context, recordIDs []string) (map[string][2]int, error) {
	return m.counts, nil
}

type mockReportCache struct {
	store map[string][]byte
	sets  int
}

func (m *mockReportCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockReportCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.store == nil {
		m.store = map[string][]byte{}
	}
	m.store[key] = raw
	m.sets++
	return nil
}

func day(offset int) time.Time {
	return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func row(offset int, subjectID, subjectName string, status models.AttendanceStatus) models.StudentAttendanceRow {
	return models.StudentAttendanceRow{Date: day(offset), SubjectID: subjectID, SubjectName: subjectName, Status: status}
}

func TestRoundPct(t *testing.T) {
	assert.Equal(t, 0, roundPct(0, 0))
	assert.Equal(t, 0, roundPct(5, 0))
	assert.Equal(t, 50, roundPct(1, 2))
	assert.Equal(t, 67, roundPct(2, 3))
	assert.Equal(t, 33, roundPct(1, 3))
	assert.Equal(t, 63, roundPct(5, 8)) // 62.5 rounds up
	assert.Equal(t, 100, roundPct(7, 7))
}

func TestSubjectSummariesSortedByName(t *testing.T) {
	attendance := &mockReportAttendance{studentRows: map[string][]models.StudentAttendanceRow{
		"stu1": {
			row(0, "s2", "Physics", models.AttendancePresent),
			row(0, "s1", "Mathematics", models.AttendanceAbsent),
			row(1, "s1", "Mathematics", models.AttendancePresent),
		},
	}}
	svc := NewReportService(attendance, &mockBatchRoster{}, nil, 0, nil, nil)

	summaries, err := svc.SubjectSummaries(context.Background(), "stu1", nil, nil)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "Mathematics", summaries[0].SubjectName)
	assert.Equal(t, 2, summaries[0].TotalClasses)
	assert.Equal(t, 1, summaries[0].Present)
	assert.Equal(t, 50, summaries[0].Percentage)
	assert.Equal(t, "Physics", summaries[1].SubjectName)
	assert.Equal(t, 100, summaries[1].Percentage)
}

func TestOverallSummaryCombinesNotAverages(t *testing.T) {
	// 9/10 in one subject plus 0/2 in another is 9/12, not (90+0)/2.
	rows := make([]models.StudentAttendanceRow, 0, 12)
	for i := 0; i < 9; i++ {
		rows = append(rows, row(i, "s1", "Mathematics", models.AttendancePresent))
	}
	rows = append(rows, row(9, "s1", "Mathematics", models.AttendanceAbsent))
	rows = append(rows, row(0, "s2", "Physics", models.AttendanceAbsent))
	rows = append(rows, row(1, "s2", "Physics", models.AttendanceAbsent))
	attendance := &mockReportAttendance{studentRows: map[string][]models.StudentAttendanceRow{"stu1": rows}}
	svc := NewReportService(attendance, &mockBatchRoster{}, nil, 0, nil, nil)

	overall, err := svc.OverallSummary(context.Background(), "stu1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 12, overall.TotalClasses)
	assert.Equal(t, 9, overall.Present)
	assert.Equal(t, 75, overall.Percentage)
}

func TestStreaksCurrentAnchoredAtToday(t *testing.T) {
	attendance := &mockReportAttendance{studentRows: map[string][]models.StudentAttendanceRow{
		"stu1": {
			row(4, "s1", "Mathematics", models.AttendancePresent),
			row(5, "s1", "Mathematics", models.AttendancePresent),
			row(6, "s1", "Mathematics", models.AttendancePresent),
		},
	}}
	svc := NewReportService(attendance, &mockBatchRoster{}, nil, 0, nil, nil)
	svc.now = func() time.Time { return day(6) }

	streaks, err := svc.Streaks(context.Background(), "stu1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, streaks.Current)
	assert.Equal(t, 3, streaks.Longest)
}

func TestStreaksAbsentTodayFallsBackToYesterday(t *testing.T) {
	attendance := &mockReportAttendance{studentRows: map[string][]models.StudentAttendanceRow{
		"stu1": {
			row(4, "s1", "Mathematics", models.AttendancePresent),
			row(5, "s1", "Mathematics", models.AttendancePresent),
			row(6, "s1", "Mathematics", models.AttendanceAbsent),
		},
	}}
	svc := NewReportService(attendance, &mockBatchRoster{}, nil, 0, nil, nil)
	svc.now = func() time.Time { return day(6) }

	streaks, err := svc.Streaks(context.Background(), "stu1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, streaks.Current)
	assert.Equal(t, 2, streaks.Longest)
}

func TestStreaksStaleRunDoesNotCountAsCurrent(t *testing.T) {
	// Three consecutive present days long before today leave the longest
	// streak intact but the current one at zero.
	attendance := &mockReportAttendance{studentRows: map[string][]models.StudentAttendanceRow{
		"stu1": {
			row(0, "s1", "Mathematics", models.AttendancePresent),
			row(1, "s1", "Mathematics", models.AttendancePresent),
			row(2, "s1", "Mathematics", models.AttendancePresent),
		},
	}}
	svc := NewReportService(attendance, &mockBatchRoster{}, nil, 0, nil, nil)
	svc.now = func() time.Time { return day(10) }

	streaks, err := svc.Streaks(context.Background(), "stu1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, streaks.Current)
	assert.Equal(t, 3, streaks.Longest)
}

func TestStreaksUnmarkedDayBreaksRun(t *testing.T) {
	attendance := &mockReportAttendance{studentRows: map[string][]models.StudentAttendanceRow{
		"stu1": {
			row(1, "s1", "Mathematics", models.AttendancePresent),
			row(2, "s1", "Mathematics", models.AttendancePresent),
			row(3, "s1", "Mathematics", models.AttendancePresent),
			// Day 4 has no record at all.
			row(5, "s1", "Mathematics", models.AttendancePresent),
			row(6, "s1", "Mathematics", models.AttendancePresent),
		},
	}}
	svc := NewReportService(attendance, &mockBatchRoster{}, nil, 0, nil, nil)
	svc.now = func() time.Time { return day(6) }

	streaks, err := svc.Streaks(context.Background(), "stu1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, streaks.Current)
	assert.Equal(t, 3, streaks.Longest)
}

func TestStreaksOnePresentEntryCountsTheDay(t *testing.T) {
	attendance := &mockReportAttendance{studentRows: map[string][]models.StudentAttendanceRow{
		"stu1": {
			row(0, "s1", "Mathematics", models.AttendanceAbsent),
			row(0, "s2", "Physics", models.AttendancePresent),
		},
	}}
	svc := NewReportService(attendance, &mockBatchRoster{}, nil, 0, nil, nil)
	svc.now = func() time.Time { return day(0) }

	streaks, err := svc.Streaks(context.Background(), "stu1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, streaks.Current)
	assert.Equal(t, 1, streaks.Longest)
}

func TestMatrixIncludesUnmarkedStudentsWithZeroCells(t *testing.T) {
	attendance := &mockReportAttendance{batchRows: map[string][]models.StudentAttendanceRow{
		"stu1": {
			row(0, "s1", "Mathematics", models.AttendancePresent),
			row(1, "s1", "Mathematics", models.AttendanceAbsent),
			row(0, "s2", "Physics", models.AttendancePresent),
		},
	}}
	roster := &mockBatchRoster{students: []models.StudentDetail{
		{Student: models.Student{UserID: "stu1", RollNumber: "01", BatchID: "b1"}, FullName: "Marked Student"},
		{Student: models.Student{UserID: "stu2", RollNumber: "02", BatchID: "b1"}, FullName: "Unmarked Student"},
	}}
	svc := NewReportService(attendance, roster, nil, 0, nil, nil)

	matrix, err := svc.Matrix(context.Background(), "b1", nil, nil)
	require.NoError(t, err)
	require.Len(t, matrix.Subjects, 2)
	assert.Equal(t, "Mathematics", matrix.Subjects[0].SubjectName)
	assert.Equal(t, "Physics", matrix.Subjects[1].SubjectName)

	require.Len(t, matrix.Rows, 2)
	marked := matrix.Rows[0]
	assert.Equal(t, "stu1", marked.StudentID)
	require.Len(t, marked.Cells, 2)
	assert.Equal(t, 50, marked.Cells[0].Percentage)
	assert.Equal(t, 100, marked.Cells[1].Percentage)
	assert.Equal(t, 67, marked.Overall.Percentage)

	unmarked := matrix.Rows[1]
	require.Len(t, unmarked.Cells, 2)
	assert.Equal(t, 0, unmarked.Cells[0].TotalClasses)
	assert.Equal(t, 0, unmarked.Overall.Percentage)
}

func TestMatrixServedFromCache(t *testing.T) {
	attendance := &mockReportAttendance{batchRows: map[string][]models.StudentAttendanceRow{
		"stu1": {row(0, "s1", "Mathematics", models.AttendancePresent)},
	}}
	roster := &mockBatchRoster{students: []models.StudentDetail{
		{Student: models.Student{UserID: "stu1", RollNumber: "01", BatchID: "b1"}},
	}}
	cache := &mockReportCache{}
	svc := NewReportService(attendance, roster, cache, time.Minute, nil, nil)

	first, err := svc.Matrix(context.Background(), "b1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	// Later writes would be invisible until the cache entry is invalidated.
	attendance.batchRows = nil
	second, err := svc.Matrix(context.Background(), "b1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, first.Rows, second.Rows)
}

func TestMatrixCacheKeyIncludesWindow(t *testing.T) {
	from := day(0)
	to := day(5)
	assert.Equal(t, "reports:batch:b1:matrix:2026-09-01:2026-09-06", matrixCacheKey("b1", &from, &to))
	assert.Equal(t, "reports:batch:b1:matrix::", matrixCacheKey("b1", nil, nil))
}

func TestClassHistoryCounts(t *testing.T) {
	attendance := &mockReportAttendance{
		records: []models.AttendanceRecordDetail{
			{
				AttendanceRecord: models.AttendanceRecord{ID: "rec1", Date: day(1), SubjectID: "s1", BatchID: "b1", ClassTime: "09:00"},
				SubjectName:      "Mathematics",
				BatchName:        "CS-3A",
			},
			{
				AttendanceRecord: models.AttendanceRecord{ID: "rec2", Date: day(0), SubjectID: "s2", BatchID: "b1", ClassTime: "10:00"},
				SubjectName:      "Physics",
				BatchName:        "CS-3A",
			},
		},
		counts: map[string][2]int{
			"rec1": {18, 2},
			"rec2": {0, 0},
		},
	}
	svc := NewReportService(attendance, &mockBatchRoster{}, nil, 0, nil, nil)

	entries, total, err := svc.ClassHistory(context.Background(), "t1", models.AttendanceFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, entries, 2)
	assert.Equal(t, 18, entries[0].Present)
	assert.Equal(t, 2, entries[0].Absent)
	assert.Equal(t, 90, entries[0].Percentage)
	assert.Equal(t, 0, entries[1].Percentage)
}
