package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classtrack/classtrack-api/internal/models"
	"github.com/classtrack/classtrack-api/internal/repository"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
)

type attendanceRepository interface {
	CreateWithEntries(ctx context.Context, record *models.AttendanceRecord, entries []models.AttendanceEntry) error
	FindByID(ctx context.Context, id string) (*models.AttendanceRecordDetail, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error)
	StudentRows(ctx context.Context, studentID string, from, to *time.Time) ([]models.StudentAttendanceRow, error)
}

type attendanceTimetable interface {
	ListDay(ctx context.Context, batchID string, day models.DayOfWeek) ([]models.TimeSlot, error)
}

type attendanceSubstitutions interface {
	FindCoveringForSlot(ctx context.Context, date time.Time, subjectID, batchID, startTime, endTime string) (*models.Substitution, error)
}

type attendanceRoster interface {
	BatchRoster(ctx context.Context, batchID string) ([]models.StudentDetail, error)
}

type reportCacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// MarkEntryInput is one student's status in a marking payload.
type MarkEntryInput struct {
	StudentID string                  `json:"student_id" validate:"required"`
	Status    models.AttendanceStatus `json:"status" validate:"required"`
}

// MarkAttendanceRequest records one class session. Students absent from the
// entry list are simply unmarked; they count toward no total.
type MarkAttendanceRequest struct {
	Date            string           `json:"date" validate:"required"`
	SubjectID       string           `json:"subject_id" validate:"required"`
	BatchID         string           `json:"batch_id" validate:"required"`
	ClassTime       string           `json:"class_time" validate:"required"`
	DurationMinutes int              `json:"duration_minutes" validate:"gte=0"`
	Entries         []MarkEntryInput `json:"entries" validate:"required,min=1,dive"`
}

// AttendanceService owns the append-only ledger of marked classes. A record
// is written once per (date, subject, batch) and never edited.
type AttendanceService struct {
	repo      attendanceRepository
	timetable attendanceTimetable
	subs      attendanceSubstitutions
	roster    attendanceRoster
	cache     reportCacheInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	location  *time.Location
	now       func() time.Time
}

// NewAttendanceService instantiates AttendanceService. metrics may be nil.
func NewAttendanceService(repo attendanceRepository, timetable attendanceTimetable, subs attendanceSubstitutions, roster attendanceRoster, cache reportCacheInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, loc *time.Location) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceService{repo: repo, timetable: timetable, subs: subs, roster: roster, cache: cache, metrics: metrics, validator: validate, logger: logger, location: loc, now: time.Now}
}

// Mark writes one attendance record with its per-student entries. The taker
// must be the slot's canonical teacher, unless an in-force substitution
// reassigns the slot, in which case only the substitute may mark and the
// record carries the substitution provenance. Admins may mark any class.
func (s *AttendanceService) Mark(ctx context.Context, actorID string, actorRole models.UserRole, req MarkAttendanceRequest) (*models.AttendanceRecordDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	for _, entry := range req.Entries {
		if !entry.Status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", entry.Status))
		}
	}
	if !models.ValidClockTime(req.ClassTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_time must be zero-padded HH:MM")
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	day, ok := models.DayOfDate(date)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no classes are scheduled on Sunday")
	}
	today := s.now().In(s.location)
	if date.Before(time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)) {
		return nil, appErrors.Clone(appErrors.ErrPastDateRejected, "attendance cannot be marked for a past date")
	}

	slot, err := s.findSlot(ctx, req.BatchID, day, req.SubjectID, req.ClassTime)
	if err != nil {
		return nil, err
	}

	record := &models.AttendanceRecord{
		Date:            date,
		SubjectID:       req.SubjectID,
		BatchID:         req.BatchID,
		TakenByID:       actorID,
		ClassTime:       req.ClassTime,
		DurationMinutes: req.DurationMinutes,
	}

	cover, err := s.subs.FindCoveringForSlot(ctx, date, req.SubjectID, req.BatchID, slot.StartTime, slot.EndTime)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check substitutions")
	}

	if actorRole != models.RoleAdmin {
		switch {
		case cover != nil:
			if actorID != cover.SubstituteTeacherID {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "this class is covered by a substitution")
			}
		case slot.TeacherID != nil && *slot.TeacherID == actorID:
			// canonical teacher, nothing reassigned
		default:
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not the teacher of this class")
		}
	}
	if cover != nil && actorID == cover.SubstituteTeacherID {
		record.IsSubstitution = true
		record.OriginalTeacherID = &cover.OriginalTeacherID
	}

	roster, err := s.roster.BatchRoster(ctx, req.BatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch roster")
	}
	rolls := make(map[string]string, len(roster))
	for _, student := range roster {
		rolls[student.UserID] = student.RollNumber
	}

	entries := make([]models.AttendanceEntry, 0, len(req.Entries))
	seen := make(map[string]bool, len(req.Entries))
	for _, in := range req.Entries {
		if seen[in.StudentID] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate student in entries")
		}
		seen[in.StudentID] = true
		roll, ok := rolls[in.StudentID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student is not in this batch")
		}
		entries = append(entries, models.AttendanceEntry{
			StudentID:  in.StudentID,
			RollNumber: roll,
			Status:     in.Status,
		})
	}

	if err := s.repo.CreateWithEntries(ctx, record, entries); err != nil {
		if errors.Is(err, repository.ErrDuplicateAttendance) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateRecord, "attendance already marked for this class today")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
	}

	s.invalidateReportCaches(ctx, req.BatchID, entries)
	s.metrics.ObserveMark(record.IsSubstitution)
	s.logger.Info("attendance marked",
		zap.String("record", record.ID),
		zap.String("batch", req.BatchID),
		zap.String("subject", req.SubjectID),
		zap.Int("entries", len(entries)),
		zap.Bool("substitution", record.IsSubstitution))

	return s.GetByID(ctx, record.ID)
}

func (s *AttendanceService) findSlot(ctx context.Context, batchID string, day models.DayOfWeek, subjectID, classTime string) (*models.TimeSlot, error) {
	slots, err := s.timetable.ListDay(ctx, batchID, day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	for i, slot := range slots {
		if slot.IsBreak || slot.SubjectID == nil {
			continue
		}
		if slot.StartTime == classTime && *slot.SubjectID == subjectID {
			return &slots[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "no scheduled class matches that subject and time")
}

// invalidateReportCaches drops cached summaries touched by a new record.
// Cache misses recompute; a failed invalidation only logs.
func (s *AttendanceService) invalidateReportCaches(ctx context.Context, batchID string, entries []models.AttendanceEntry) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "reports:batch:"+batchID+":*"); err != nil {
		s.logger.Warn("failed to invalidate batch report cache", zap.String("batch", batchID), zap.Error(err))
	}
	for _, entry := range entries {
		if err := s.cache.DeleteByPattern(ctx, "reports:student:"+entry.StudentID+":*"); err != nil {
			s.logger.Warn("failed to invalidate student report cache", zap.String("student", entry.StudentID), zap.Error(err))
		}
	}
}

// GetByID returns one record with its entries.
func (s *AttendanceService) GetByID(ctx context.Context, id string) (*models.AttendanceRecordDetail, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	return record, nil
}

// List returns records matching the filter with a total count.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance records")
	}
	return records, total, nil
}

// StudentHistory returns one student's per-class rows in date order.
func (s *AttendanceService) StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.StudentAttendanceRow, error) {
	rows, err := s.repo.StudentRows(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	return rows, nil
}
