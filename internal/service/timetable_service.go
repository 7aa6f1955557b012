package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classtrack/classtrack-api/internal/models"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
)

type timetableRepository interface {
	ListDay(ctx context.Context, batchID string, day models.DayOfWeek) ([]models.TimeSlot, error)
	ReplaceDay(ctx context.Context, batchID string, day models.DayOfWeek, slots []models.TimeSlot) error
	ReplaceDays(ctx context.Context, batchID string, days map[models.DayOfWeek][]models.TimeSlot) error
	DeleteDay(ctx context.Context, batchID string, day models.DayOfWeek) error
	FindSlot(ctx context.Context, batchID string, day models.DayOfWeek, startTime, endTime string) (*models.TimeSlot, error)
	ListByTeacherDay(ctx context.Context, teacherID string, day models.DayOfWeek) ([]models.TimeSlot, error)
}

type timetableCatalog interface {
	FindBatch(ctx context.Context, id string) (*models.Batch, error)
	FindBatchByName(ctx context.Context, name string) (*models.Batch, error)
	FindSubject(ctx context.Context, id string) (*models.Subject, error)
	FindSubjectByName(ctx context.Context, departmentID, name string) (*models.Subject, error)
}

type timetableSubstitutions interface {
	ListForTeacherOnDate(ctx context.Context, teacherID string, date time.Time) ([]models.Substitution, error)
}

// SlotInput describes one slot of a day being saved.
type SlotInput struct {
	StartTime string  `json:"start_time" validate:"required"`
	EndTime   string  `json:"end_time" validate:"required"`
	IsBreak   bool    `json:"is_break"`
	SubjectID *string `json:"subject_id"`
	TeacherID *string `json:"teacher_id"`
	Room      string  `json:"room"`
}

// ImportSlotInput carries a slot of a weekly bulk import; subjects are named,
// not referenced by id, because imports originate from spreadsheets.
type ImportSlotInput struct {
	StartTime   string  `json:"start_time" validate:"required"`
	EndTime     string  `json:"end_time" validate:"required"`
	IsBreak     bool    `json:"is_break"`
	SubjectName string  `json:"subject_name"`
	TeacherID   *string `json:"teacher_id"`
	Room        string  `json:"room"`
}

// ImportWeeklyRequest is the weekly bulk import payload.
type ImportWeeklyRequest struct {
	BatchName string                                `json:"batch_name" validate:"required"`
	Week      map[models.DayOfWeek][]ImportSlotInput `json:"week" validate:"required,min=1"`
	Mode      models.ImportMode                     `json:"mode"`
}

// DayImportResult reports the outcome of one day of a partial import.
type DayImportResult struct {
	Day   models.DayOfWeek `json:"day"`
	Saved bool             `json:"saved"`
	Slots int              `json:"slots"`
	Error string           `json:"error,omitempty"`
}

// ImportWeeklyResult summarises a weekly import.
type ImportWeeklyResult struct {
	BatchID string            `json:"batch_id"`
	Mode    models.ImportMode `json:"mode"`
	Days    []DayImportResult `json:"days"`
}

// EditSlotRequest carries a keyed single-slot update. The slot is addressed
// by its (start, end) pair; positional indexes are not part of the API.
type EditSlotRequest struct {
	NewStartTime *string `json:"new_start_time"`
	NewEndTime   *string `json:"new_end_time"`
	SubjectID    *string `json:"subject_id"`
	TeacherID    *string `json:"teacher_id"`
	Room         *string `json:"room"`
}

// TimetableService answers schedule queries and guards every write with full
// day validation, so a stored day is always ordered and overlap free.
type TimetableService struct {
	repo              timetableRepository
	catalog           timetableCatalog
	subs              timetableSubstitutions
	defaultImportMode models.ImportMode
	validator         *validator.Validate
	logger            *zap.Logger
}

// NewTimetableService instantiates TimetableService. defaultImportMode is
// used when an import names no mode; empty falls back to atomic.
func NewTimetableService(repo timetableRepository, catalog timetableCatalog, subs timetableSubstitutions, defaultImportMode models.ImportMode, validate *validator.Validate, logger *zap.Logger) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !defaultImportMode.Valid() {
		defaultImportMode = models.ImportModeAtomic
	}
	return &TimetableService{repo: repo, catalog: catalog, subs: subs, defaultImportMode: defaultImportMode, validator: validate, logger: logger}
}

// GetTimetable returns one batch/day ordered by start time. A day with no
// stored slots is NotFound; callers render it as "no classes".
func (s *TimetableService) GetTimetable(ctx context.Context, batchID string, day models.DayOfWeek) ([]models.TimeSlot, error) {
	if !day.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown day of week")
	}
	if _, err := s.catalog.FindBatch(ctx, batchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	slots, err := s.repo.ListDay(ctx, batchID, day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if len(slots) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no timetable for this day")
	}
	return slots, nil
}

// SaveTimetable atomically replaces the whole day. Nothing is written when
// any slot fails validation.
func (s *TimetableService) SaveTimetable(ctx context.Context, batchID string, day models.DayOfWeek, inputs []SlotInput) ([]models.TimeSlot, error) {
	if !day.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown day of week")
	}
	if _, err := s.catalog.FindBatch(ctx, batchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	slots := make([]models.TimeSlot, 0, len(inputs))
	for _, in := range inputs {
		if err := s.validator.Struct(in); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
		}
		slots = append(slots, models.TimeSlot{
			BatchID:   batchID,
			DayOfWeek: day,
			StartTime: in.StartTime,
			EndTime:   in.EndTime,
			IsBreak:   in.IsBreak,
			SubjectID: in.SubjectID,
			TeacherID: in.TeacherID,
			Room:      in.Room,
		})
	}

	if err := validateDaySlots(slots); err != nil {
		return nil, err
	}

	if err := s.repo.ReplaceDay(ctx, batchID, day, slots); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save timetable")
	}
	return slots, nil
}

// DeleteTimetable removes a batch's schedule for one day.
func (s *TimetableService) DeleteTimetable(ctx context.Context, batchID string, day models.DayOfWeek) error {
	if !day.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown day of week")
	}
	if err := s.repo.DeleteDay(ctx, batchID, day); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}
	return nil
}

// ImportWeekly resolves subject names and replaces each named day. Atomic
// mode writes all days in one transaction or none; partialOnError saves each
// valid day independently and reports per-day outcomes.
func (s *TimetableService) ImportWeekly(ctx context.Context, req ImportWeeklyRequest) (*ImportWeeklyResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import payload")
	}
	mode := req.Mode
	if mode == "" {
		mode = s.defaultImportMode
	}
	if !mode.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown import mode")
	}

	batch, err := s.catalog.FindBatchByName(ctx, req.BatchName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	result := &ImportWeeklyResult{BatchID: batch.ID, Mode: mode}
	prepared := make(map[models.DayOfWeek][]models.TimeSlot, len(req.Week))

	for _, day := range models.TeachingDays {
		inputs, ok := req.Week[day]
		if !ok {
			continue
		}
		slots, dayErr := s.resolveImportDay(ctx, batch, day, inputs)
		if dayErr != nil {
			if mode == models.ImportModeAtomic {
				return nil, dayErr
			}
			result.Days = append(result.Days, DayImportResult{Day: day, Saved: false, Error: dayErr.Error()})
			continue
		}
		prepared[day] = slots
	}

	if mode == models.ImportModeAtomic {
		if err := s.repo.ReplaceDays(ctx, batch.ID, prepared); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import timetable")
		}
		for _, day := range models.TeachingDays {
			if slots, ok := prepared[day]; ok {
				result.Days = append(result.Days, DayImportResult{Day: day, Saved: true, Slots: len(slots)})
			}
		}
		return result, nil
	}

	for _, day := range models.TeachingDays {
		slots, ok := prepared[day]
		if !ok {
			continue
		}
		if err := s.repo.ReplaceDay(ctx, batch.ID, day, slots); err != nil {
			s.logger.Warn("weekly import day failed", zap.String("batch", batch.ID), zap.String("day", string(day)), zap.Error(err))
			result.Days = append(result.Days, DayImportResult{Day: day, Saved: false, Error: "failed to save day"})
			continue
		}
		result.Days = append(result.Days, DayImportResult{Day: day, Saved: true, Slots: len(slots)})
	}
	return result, nil
}

func (s *TimetableService) resolveImportDay(ctx context.Context, batch *models.Batch, day models.DayOfWeek, inputs []ImportSlotInput) ([]models.TimeSlot, error) {
	if !day.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown day %q", day))
	}
	slots := make([]models.TimeSlot, 0, len(inputs))
	for _, in := range inputs {
		if err := s.validator.Struct(in); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import slot")
		}
		slot := models.TimeSlot{
			BatchID:   batch.ID,
			DayOfWeek: day,
			StartTime: in.StartTime,
			EndTime:   in.EndTime,
			IsBreak:   in.IsBreak,
			TeacherID: in.TeacherID,
			Room:      in.Room,
		}
		if !in.IsBreak {
			subject, err := s.catalog.FindSubjectByName(ctx, batch.DepartmentID, in.SubjectName)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("subject %q not found in department", in.SubjectName))
				}
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject")
			}
			slot.SubjectID = &subject.ID
		}
		slots = append(slots, slot)
	}
	if err := validateDaySlots(slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// EditSlot updates a single slot addressed by its (start, end) key and
// re-validates the whole day before persisting.
func (s *TimetableService) EditSlot(ctx context.Context, batchID string, day models.DayOfWeek, startTime, endTime string, req EditSlotRequest) ([]models.TimeSlot, error) {
	if !day.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown day of week")
	}
	slots, err := s.repo.ListDay(ctx, batchID, day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}

	idx := -1
	for i, slot := range slots {
		if slot.StartTime == startTime && slot.EndTime == endTime {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no slot with that time range")
	}

	slot := slots[idx]
	if req.NewStartTime != nil {
		slot.StartTime = *req.NewStartTime
	}
	if req.NewEndTime != nil {
		slot.EndTime = *req.NewEndTime
	}
	if req.SubjectID != nil {
		slot.SubjectID = req.SubjectID
	}
	if req.TeacherID != nil {
		slot.TeacherID = req.TeacherID
	}
	if req.Room != nil {
		slot.Room = *req.Room
	}
	slots[idx] = slot

	sort.Slice(slots, func(i, j int) bool { return slots[i].StartTime < slots[j].StartTime })
	if err := validateDaySlots(slots); err != nil {
		return nil, err
	}

	if err := s.repo.ReplaceDay(ctx, batchID, day, slots); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save timetable")
	}
	return slots, nil
}

// GetTeacherDailySchedule merges the teacher's canonical slots for
// weekday-of(date) with approved and completed substitutions for that exact
// date, in both directions, ordered by start time.
func (s *TimetableService) GetTeacherDailySchedule(ctx context.Context, teacherID string, date time.Time) ([]models.TeacherScheduleEntry, error) {
	day, ok := models.DayOfDate(date)
	if !ok {
		return []models.TeacherScheduleEntry{}, nil
	}

	canonical, err := s.repo.ListByTeacherDay(ctx, teacherID, day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher slots")
	}
	subs, err := s.subs.ListForTeacherOnDate(ctx, teacherID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitutions")
	}

	covering := make([]models.Substitution, 0, len(subs))
	for _, sub := range subs {
		if sub.Covers() {
			covering = append(covering, sub)
		}
	}

	entries := make([]models.TeacherScheduleEntry, 0, len(canonical)+len(covering))
	for _, slot := range canonical {
		if slot.IsBreak || slot.SubjectID == nil {
			continue
		}
		entry := models.TeacherScheduleEntry{
			BatchID:   slot.BatchID,
			SubjectID: *slot.SubjectID,
			StartTime: slot.StartTime,
			EndTime:   slot.EndTime,
			Room:      slot.Room,
			Kind:      models.ScheduleEntryRegular,
		}
		for _, sub := range covering {
			if sub.OriginalTeacherID == teacherID && sub.BatchID == slot.BatchID && sub.StartTime == slot.StartTime && sub.EndTime == slot.EndTime {
				entry.Kind = models.ScheduleEntrySubstitutedOut
				entry.SubstitutionID = sub.ID
				entry.CoveredBy = sub.SubstituteTeacherID
				break
			}
		}
		entries = append(entries, entry)
	}

	for _, sub := range covering {
		if sub.SubstituteTeacherID != teacherID {
			continue
		}
		entries = append(entries, models.TeacherScheduleEntry{
			BatchID:        sub.BatchID,
			SubjectID:      sub.SubjectID,
			StartTime:      sub.StartTime,
			EndTime:        sub.EndTime,
			Room:           sub.Room,
			Kind:           models.ScheduleEntrySubstitution,
			SubstitutionID: sub.ID,
			CoveringFor:    sub.OriginalTeacherID,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].StartTime < entries[j].StartTime })

	s.decorateEntries(ctx, entries)
	return entries, nil
}

// decorateEntries fills display names best-effort; schedule reads never fail
// on a missing name.
func (s *TimetableService) decorateEntries(ctx context.Context, entries []models.TeacherScheduleEntry) {
	batchNames := map[string]string{}
	subjectNames := map[string]string{}
	for i := range entries {
		if name, ok := batchNames[entries[i].BatchID]; ok {
			entries[i].BatchName = name
		} else if batch, err := s.catalog.FindBatch(ctx, entries[i].BatchID); err == nil {
			batchNames[batch.ID] = batch.Name
			entries[i].BatchName = batch.Name
		}
		if name, ok := subjectNames[entries[i].SubjectID]; ok {
			entries[i].SubjectName = name
		} else if subject, err := s.catalog.FindSubject(ctx, entries[i].SubjectID); err == nil {
			subjectNames[subject.ID] = subject.Name
			entries[i].SubjectName = subject.Name
		}
	}
}

// validateDaySlots enforces the day invariants: well-formed zero-padded
// times, start < end, slots already ordered by start time, subject and
// teacher present on every non-break slot, and no two non-break slots
// overlapping.
func validateDaySlots(slots []models.TimeSlot) error {
	for i, slot := range slots {
		if !models.ValidClockTime(slot.StartTime) || !models.ValidClockTime(slot.EndTime) {
			return appErrors.Clone(appErrors.ErrInvalidSlot, fmt.Sprintf("slot %s-%s: times must be zero-padded HH:MM", slot.StartTime, slot.EndTime))
		}
		if slot.StartTime >= slot.EndTime {
			return appErrors.Clone(appErrors.ErrInvalidSlot, fmt.Sprintf("slot %s-%s: start must precede end", slot.StartTime, slot.EndTime))
		}
		if !slot.IsBreak {
			if slot.SubjectID == nil || *slot.SubjectID == "" {
				return appErrors.Clone(appErrors.ErrInvalidSlot, fmt.Sprintf("slot %s-%s: subject required", slot.StartTime, slot.EndTime))
			}
			if slot.TeacherID == nil || *slot.TeacherID == "" {
				return appErrors.Clone(appErrors.ErrInvalidSlot, fmt.Sprintf("slot %s-%s: teacher required", slot.StartTime, slot.EndTime))
			}
		}
		if i > 0 && slots[i-1].StartTime > slot.StartTime {
			return appErrors.Clone(appErrors.ErrInvalidSlot, "slots must be ordered by start time")
		}
	}
	for i := range slots {
		if slots[i].IsBreak {
			continue
		}
		for j := i + 1; j < len(slots); j++ {
			if slots[j].IsBreak {
				continue
			}
			if slots[i].Overlaps(slots[j]) {
				return appErrors.Clone(appErrors.ErrInvalidSlot, fmt.Sprintf("slots %s-%s and %s-%s overlap", slots[i].StartTime, slots[i].EndTime, slots[j].StartTime, slots[j].EndTime))
			}
		}
	}
	return nil
}
