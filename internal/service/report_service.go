package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/classtrack/classtrack-api/internal/models"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
)

type reportAttendance interface {
	StudentRows(ctx context.Context, studentID string, from, to *time.Time) ([]models.StudentAttendanceRow, error)
	BatchRows(ctx context.Context, batchID string, from, to *time.Time) (map[string][]models.StudentAttendanceRow, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error)
	EntryCounts(ctx context.Context, recordIDs []string) (map[string][2]int, error)
}

type reportRoster interface {
	BatchRoster(ctx context.Context, batchID string) ([]models.StudentDetail, error)
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ReportService computes attendance summaries from ledger rows. All
// percentages are integers rounded half up, and a zero denominator always
// yields zero rather than an error.
type ReportService struct {
	attendance reportAttendance
	roster     reportRoster
	cache      reportCache
	cacheTTL   time.Duration
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewReportService instantiates ReportService. cache and metrics may be nil;
// without a cache every read recomputes.
func NewReportService(attendance reportAttendance, roster reportRoster, cache reportCache, cacheTTL time.Duration, metrics *MetricsService, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{attendance: attendance, roster: roster, cache: cache, cacheTTL: cacheTTL, metrics: metrics, logger: logger, now: time.Now}
}

// roundPct is present-over-total as an integer percentage, rounded half up.
func roundPct(present, total int) int {
	if total <= 0 {
		return 0
	}
	return (present*200 + total) / (total * 2)
}

// SubjectSummaries returns one student's standing per subject, ordered by
// subject name.
func (s *ReportService) SubjectSummaries(ctx context.Context, studentID string, from, to *time.Time) ([]models.SubjectSummary, error) {
	rows, err := s.attendance.StudentRows(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance rows")
	}
	return summariseBySubject(rows), nil
}

// OverallSummary combines every subject's counts into one figure. The
// percentage is computed over summed counts, never averaged across subjects,
// so subjects with more classes weigh more.
func (s *ReportService) OverallSummary(ctx context.Context, studentID string, from, to *time.Time) (*models.OverallSummary, error) {
	rows, err := s.attendance.StudentRows(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance rows")
	}
	overall := combineRows(rows)
	return &overall, nil
}

// Streaks reports the student's current and longest daily streaks. A day
// counts when the student has at least one PRESENT entry; any day without
// one, whether marked all-absent or not marked at all, breaks the run. The
// current streak is anchored at today, falling back to yesterday when today
// has no present mark yet.
func (s *ReportService) Streaks(ctx context.Context, studentID string, from, to *time.Time) (*models.StreakSummary, error) {
	rows, err := s.attendance.StudentRows(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance rows")
	}
	streaks := computeStreaks(rows, s.now())
	return &streaks, nil
}

// Matrix builds the batch-wide cross-tab of students against subjects and
// caches the result; any attendance write for the batch invalidates it.
func (s *ReportService) Matrix(ctx context.Context, batchID string, from, to *time.Time) (*models.AttendanceMatrix, error) {
	key := matrixCacheKey(batchID, from, to)
	if s.cache != nil {
		var cached models.AttendanceMatrix
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.ObserveCacheHit(true)
			return &cached, nil
		} else if !appErrors.HasCode(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("matrix cache read failed", zap.String("key", key), zap.Error(err))
		}
		s.metrics.ObserveCacheHit(false)
	}

	roster, err := s.roster.BatchRoster(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch roster")
	}
	rowsByStudent, err := s.attendance.BatchRows(ctx, batchID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance rows")
	}

	// Header: union of subjects seen in the window, with batch-wide counts.
	type subjectAgg struct {
		name    string
		total   int
		present int
	}
	aggs := map[string]*subjectAgg{}
	for _, rows := range rowsByStudent {
		for _, row := range rows {
			agg, ok := aggs[row.SubjectID]
			if !ok {
				agg = &subjectAgg{name: row.SubjectName}
				aggs[row.SubjectID] = agg
			}
			agg.total++
			if row.Status == models.AttendancePresent {
				agg.present++
			}
		}
	}
	subjects := make([]models.SubjectSummary, 0, len(aggs))
	for id, agg := range aggs {
		subjects = append(subjects, models.SubjectSummary{
			SubjectID:    id,
			SubjectName:  agg.name,
			TotalClasses: agg.total,
			Present:      agg.present,
			Percentage:   roundPct(agg.present, agg.total),
		})
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].SubjectName < subjects[j].SubjectName })

	matrix := &models.AttendanceMatrix{BatchID: batchID, Subjects: subjects, Rows: make([]models.MatrixRow, 0, len(roster))}
	for _, student := range roster {
		rows := rowsByStudent[student.UserID]
		perSubject := summariseBySubject(rows)
		bySubjectID := make(map[string]models.SubjectSummary, len(perSubject))
		for _, summary := range perSubject {
			bySubjectID[summary.SubjectID] = summary
		}
		cells := make([]models.MatrixCell, 0, len(subjects))
		for _, subject := range subjects {
			summary := bySubjectID[subject.SubjectID]
			cells = append(cells, models.MatrixCell{
				SubjectID:    subject.SubjectID,
				TotalClasses: summary.TotalClasses,
				Present:      summary.Present,
				Percentage:   summary.Percentage,
			})
		}
		matrix.Rows = append(matrix.Rows, models.MatrixRow{
			StudentID:  student.UserID,
			RollNumber: student.RollNumber,
			FullName:   student.FullName,
			Cells:      cells,
			Overall:    combineRows(rows),
		})
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, matrix, s.cacheTTL); err != nil {
			s.logger.Warn("matrix cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return matrix, nil
}

// ClassHistory lists classes a teacher has held, newest first, with per-class
// present and absent counts.
func (s *ReportService) ClassHistory(ctx context.Context, teacherID string, filter models.AttendanceFilter) ([]models.ClassHistoryEntry, int, error) {
	filter.TeacherID = teacherID
	records, total, err := s.attendance.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	if len(records) == 0 {
		return []models.ClassHistoryEntry{}, total, nil
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	counts, err := s.attendance.EntryCounts(ctx, ids)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count entries")
	}

	entries := make([]models.ClassHistoryEntry, 0, len(records))
	for _, record := range records {
		count := counts[record.ID]
		present, absent := count[0], count[1]
		entries = append(entries, models.ClassHistoryEntry{
			RecordID:    record.ID,
			Date:        record.Date,
			SubjectID:   record.SubjectID,
			SubjectName: record.SubjectName,
			BatchID:     record.BatchID,
			BatchName:   record.BatchName,
			ClassTime:   record.ClassTime,
			Present:     present,
			Absent:      absent,
			Percentage:  roundPct(present, present+absent),
		})
	}
	return entries, total, nil
}

func matrixCacheKey(batchID string, from, to *time.Time) string {
	f, t := "", ""
	if from != nil {
		f = from.Format("2006-01-02")
	}
	if to != nil {
		t = to.Format("2006-01-02")
	}
	return fmt.Sprintf("reports:batch:%s:matrix:%s:%s", batchID, f, t)
}

func summariseBySubject(rows []models.StudentAttendanceRow) []models.SubjectSummary {
	byID := map[string]*models.SubjectSummary{}
	for _, row := range rows {
		summary, ok := byID[row.SubjectID]
		if !ok {
			summary = &models.SubjectSummary{SubjectID: row.SubjectID, SubjectName: row.SubjectName}
			byID[row.SubjectID] = summary
		}
		summary.TotalClasses++
		if row.Status == models.AttendancePresent {
			summary.Present++
		}
	}
	summaries := make([]models.SubjectSummary, 0, len(byID))
	for _, summary := range byID {
		summary.Percentage = roundPct(summary.Present, summary.TotalClasses)
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].SubjectName < summaries[j].SubjectName })
	return summaries
}

func combineRows(rows []models.StudentAttendanceRow) models.OverallSummary {
	overall := models.OverallSummary{}
	for _, row := range rows {
		overall.TotalClasses++
		if row.Status == models.AttendancePresent {
			overall.Present++
		}
	}
	overall.Percentage = roundPct(overall.Present, overall.TotalClasses)
	return overall
}

// computeStreaks measures runs over consecutive calendar days that each have
// at least one present mark. The longest run is a forward pass over the
// distinct present days; the current run walks back from today, or from
// yesterday when today has no present mark yet.
func computeStreaks(rows []models.StudentAttendanceRow, today time.Time) models.StreakSummary {
	present := map[string]bool{}
	var days []time.Time
	for _, row := range rows {
		key := row.Date.Format("2006-01-02")
		if row.Status == models.AttendancePresent && !present[key] {
			present[key] = true
			days = append(days, time.Date(row.Date.Year(), row.Date.Month(), row.Date.Day(), 0, 0, 0, 0, time.UTC))
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	streaks := models.StreakSummary{}
	run := 0
	for i, day := range days {
		if i > 0 && days[i-1].AddDate(0, 0, 1).Equal(day) {
			run++
		} else {
			run = 1
		}
		if run > streaks.Longest {
			streaks.Longest = run
		}
	}

	cursor := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if !present[cursor.Format("2006-01-02")] {
		cursor = cursor.AddDate(0, 0, -1)
	}
	for present[cursor.Format("2006-01-02")] {
		streaks.Current++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streaks
}
