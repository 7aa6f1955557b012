package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classtrack/classtrack-api/internal/models"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
)

type substitutionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Substitution, error)
	List(ctx context.Context, filter models.SubstitutionFilter) ([]models.Substitution, int, error)
	ListForTeacherOnDate(ctx context.Context, teacherID string, date time.Time) ([]models.Substitution, error)
	CreateChecked(ctx context.Context, sub *models.Substitution) (slotTaken, substituteBusy bool, err error)
	UpdateStatus(ctx context.Context, id string, status models.SubstitutionStatus) error
}

type substitutionTimetable interface {
	FindSlot(ctx context.Context, batchID string, day models.DayOfWeek, startTime, endTime string) (*models.TimeSlot, error)
	ListByTeacherDay(ctx context.Context, teacherID string, day models.DayOfWeek) ([]models.TimeSlot, error)
}

type substitutionRoster interface {
	FindTeacher(ctx context.Context, userID string) (*models.TeacherDetail, error)
	IsAuthorized(ctx context.Context, teacherID, subjectID, batchID string) (bool, error)
	AuthorizedTeacherIDs(ctx context.Context, subjectID, batchID string) ([]string, error)
}

// CreateSubstitutionRequest asks a named substitute to cover one dated slot.
type CreateSubstitutionRequest struct {
	OriginalTeacherID   string `json:"original_teacher_id"`
	SubstituteTeacherID string `json:"substitute_teacher_id" validate:"required"`
	SubjectID           string `json:"subject_id" validate:"required"`
	BatchID             string `json:"batch_id" validate:"required"`
	Date                string `json:"date" validate:"required"`
	StartTime           string `json:"start_time" validate:"required"`
	EndTime             string `json:"end_time" validate:"required"`
	Reason              string `json:"reason"`
}

// FindAvailableRequest scopes the candidate substitute search.
type FindAvailableRequest struct {
	SubjectID string `json:"subject_id" validate:"required"`
	BatchID   string `json:"batch_id" validate:"required"`
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// SubstitutionService runs the request lifecycle. Every status change is
// checked against the state machine and against who the actor is; the weekly
// timetable itself is never touched.
type SubstitutionService struct {
	repo      substitutionRepository
	timetable substitutionTimetable
	roster    substitutionRoster
	validator *validator.Validate
	logger    *zap.Logger
	location  *time.Location
	now       func() time.Time
}

// NewSubstitutionService instantiates SubstitutionService. Dates are judged
// past or future against loc, the school's configured timezone.
func NewSubstitutionService(repo substitutionRepository, timetable substitutionTimetable, roster substitutionRoster, validate *validator.Validate, logger *zap.Logger, loc *time.Location) *SubstitutionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &SubstitutionService{repo: repo, timetable: timetable, roster: roster, validator: validate, logger: logger, location: loc, now: time.Now}
}

// GetByID returns one substitution.
func (s *SubstitutionService) GetByID(ctx context.Context, id string) (*models.Substitution, error) {
	sub, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "substitution not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitution")
	}
	return sub, nil
}

// List returns substitutions matching the filter with a total count.
func (s *SubstitutionService) List(ctx context.Context, filter models.SubstitutionFilter) ([]models.Substitution, int, error) {
	subs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list substitutions")
	}
	return subs, total, nil
}

// FindAvailableTeachers returns teachers qualified for the subject and batch
// who are free in the requested window on that date. A teacher is busy when
// a canonical slot of theirs overlaps the window, unless an in-force
// substitution hands that slot off, or when they are themselves covering an
// overlapping substitution.
func (s *SubstitutionService) FindAvailableTeachers(ctx context.Context, req FindAvailableRequest, excludeTeacherID string) ([]models.TeacherDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability query")
	}
	date, day, err := s.parseTeachingDate(req.Date)
	if err != nil {
		return nil, err
	}
	if !models.ValidClockTime(req.StartTime) || !models.ValidClockTime(req.EndTime) || req.StartTime >= req.EndTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid time window")
	}

	candidateIDs, err := s.roster.AuthorizedTeacherIDs(ctx, req.SubjectID, req.BatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load qualified teachers")
	}

	available := make([]models.TeacherDetail, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		if id == excludeTeacherID {
			continue
		}
		busy, err := s.teacherBusy(ctx, id, date, day, req.StartTime, req.EndTime)
		if err != nil {
			return nil, err
		}
		if busy {
			continue
		}
		teacher, err := s.roster.FindTeacher(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
		}
		available = append(available, *teacher)
	}
	return available, nil
}

func (s *SubstitutionService) teacherBusy(ctx context.Context, teacherID string, date time.Time, day models.DayOfWeek, startTime, endTime string) (bool, error) {
	subs, err := s.repo.ListForTeacherOnDate(ctx, teacherID, date)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitutions")
	}
	covering := make([]models.Substitution, 0, len(subs))
	for _, sub := range subs {
		if sub.Covers() {
			covering = append(covering, sub)
		}
	}

	for _, sub := range covering {
		if sub.SubstituteTeacherID == teacherID && sub.StartTime < endTime && startTime < sub.EndTime {
			return true, nil
		}
	}

	slots, err := s.timetable.ListByTeacherDay(ctx, teacherID, day)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher slots")
	}
	for _, slot := range slots {
		if !(slot.StartTime < endTime && startTime < slot.EndTime) {
			continue
		}
		handedOff := false
		for _, sub := range covering {
			if sub.OriginalTeacherID == teacherID && sub.BatchID == slot.BatchID && sub.StartTime == slot.StartTime && sub.EndTime == slot.EndTime {
				handedOff = true
				break
			}
		}
		if !handedOff {
			return true, nil
		}
	}
	return false, nil
}

// Create records a PENDING substitution request by actor. A teacher may only
// hand off slots they teach; an admin may act for any original teacher. The
// slot-taken and substitute-busy checks run inside the insert transaction so
// two racing requests cannot both succeed.
func (s *SubstitutionService) Create(ctx context.Context, actorID string, actorRole models.UserRole, req CreateSubstitutionRequest) (*models.Substitution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid substitution payload")
	}

	originalID := req.OriginalTeacherID
	switch actorRole {
	case models.RoleAdmin:
		if originalID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "original_teacher_id is required")
		}
	case models.RoleTeacher:
		if originalID == "" {
			originalID = actorID
		}
		if originalID != actorID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "teachers may only request cover for their own classes")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not permitted to create substitutions")
	}
	if req.SubstituteTeacherID == originalID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "substitute must differ from the original teacher")
	}

	date, day, err := s.parseTeachingDate(req.Date)
	if err != nil {
		return nil, err
	}
	today := s.now().In(s.location)
	if date.Before(time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)) {
		return nil, appErrors.Clone(appErrors.ErrPastDateRejected, "cannot request cover for a past date")
	}

	slot, err := s.timetable.FindSlot(ctx, req.BatchID, day, req.StartTime, req.EndTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no timetable slot matches that time range")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	if slot.IsBreak || slot.SubjectID == nil || slot.TeacherID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "breaks cannot be substituted")
	}
	if *slot.TeacherID != originalID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot is not taught by the original teacher")
	}
	if *slot.SubjectID != req.SubjectID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot subject does not match")
	}

	qualified, err := s.roster.IsAuthorized(ctx, req.SubstituteTeacherID, req.SubjectID, req.BatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check substitute qualification")
	}
	if !qualified {
		return nil, appErrors.Clone(appErrors.ErrValidation, "substitute is not qualified for this subject")
	}

	sub := &models.Substitution{
		OriginalTeacherID:   originalID,
		SubstituteTeacherID: req.SubstituteTeacherID,
		SubjectID:           req.SubjectID,
		BatchID:             req.BatchID,
		Date:                date,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		Room:                slot.Room,
		Reason:              req.Reason,
		Status:              models.SubstitutionPending,
	}
	slotTaken, substituteBusy, err := s.repo.CreateChecked(ctx, sub)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create substitution")
	}
	if slotTaken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an active substitution already exists for this slot")
	}
	if substituteBusy {
		return nil, appErrors.Clone(appErrors.ErrConflict, "substitute already covers an overlapping slot on this date")
	}

	s.logger.Info("substitution requested",
		zap.String("id", sub.ID),
		zap.String("original", originalID),
		zap.String("substitute", req.SubstituteTeacherID))
	return sub, nil
}

// UpdateStatus moves a substitution through its lifecycle. Only the
// substitute may approve. A pending request may be cancelled by either
// party; once approved only the original teacher may cancel. Either party
// may mark an approved substitution completed. Admins may do any of these.
func (s *SubstitutionService) UpdateStatus(ctx context.Context, actorID string, actorRole models.UserRole, id string, next models.SubstitutionStatus) (*models.Substitution, error) {
	if !next.Valid() || next == models.SubstitutionPending {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown target status")
	}

	sub, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "substitution not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitution")
	}
	if !sub.Status.CanTransition(next) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "cannot move from "+string(sub.Status)+" to "+string(next))
	}

	if actorRole != models.RoleAdmin {
		isOriginal := actorID == sub.OriginalTeacherID
		isSubstitute := actorID == sub.SubstituteTeacherID
		allowed := false
		switch next {
		case models.SubstitutionApproved:
			allowed = isSubstitute
		case models.SubstitutionCancelled:
			if sub.Status == models.SubstitutionPending {
				allowed = isOriginal || isSubstitute
			} else {
				allowed = isOriginal
			}
		case models.SubstitutionCompleted:
			allowed = isOriginal || isSubstitute
		}
		if !allowed {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not permitted to change this substitution")
		}
	}

	if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update substitution")
	}
	sub.Status = next

	s.logger.Info("substitution status changed",
		zap.String("id", id),
		zap.String("status", string(next)),
		zap.String("actor", actorID))
	return sub, nil
}

// parseTeachingDate parses YYYY-MM-DD and rejects Sundays, which carry no
// timetable.
func (s *SubstitutionService) parseTeachingDate(raw string) (time.Time, models.DayOfWeek, error) {
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, "", appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	day, ok := models.DayOfDate(date)
	if !ok {
		return time.Time{}, "", appErrors.Clone(appErrors.ErrValidation, "no classes are scheduled on Sunday")
	}
	return date, day, nil
}
