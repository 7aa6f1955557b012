package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classtrack/classtrack-api/internal/models"
)

const timeSlotColumns = "id, batch_id, day_of_week, start_time, end_time, is_break, subject_id, teacher_id, room, created_at, updated_at"

// TimetableRepository persists weekly timetable slots. A timetable day is the
// set of slots sharing (batch_id, day_of_week); it is always replaced
// wholesale so the stored day can never hold a partially validated mix.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository creates a new timetable repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// ListDay returns the slots of one batch/day ordered by start time.
func (r *TimetableRepository) ListDay(ctx context.Context, batchID string, day models.DayOfWeek) ([]models.TimeSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_slots WHERE batch_id = $1 AND day_of_week = $2 ORDER BY start_time ASC", timeSlotColumns)
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, batchID, day); err != nil {
		return nil, fmt.Errorf("list timetable day: %w", err)
	}
	return slots, nil
}

// ReplaceDay swaps the whole day for the given slots inside one transaction.
func (r *TimetableRepository) ReplaceDay(ctx context.Context, batchID string, day models.DayOfWeek, slots []models.TimeSlot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace timetable day: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.replaceDayTx(ctx, tx, batchID, day, slots); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace timetable day: %w", err)
	}
	return nil
}

// ReplaceDays swaps several days atomically. Used by the all-or-nothing
// weekly import mode.
func (r *TimetableRepository) ReplaceDays(ctx context.Context, batchID string, days map[models.DayOfWeek][]models.TimeSlot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace timetable days: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for day, slots := range days {
		if err = r.replaceDayTx(ctx, tx, batchID, day, slots); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace timetable days: %w", err)
	}
	return nil
}

func (r *TimetableRepository) replaceDayTx(ctx context.Context, tx *sqlx.Tx, batchID string, day models.DayOfWeek, slots []models.TimeSlot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM timetable_slots WHERE batch_id = $1 AND day_of_week = $2`, batchID, day); err != nil {
		return fmt.Errorf("clear timetable day: %w", err)
	}

	now := time.Now().UTC()
	for i := range slots {
		payload := slots[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		payload.BatchID = batchID
		payload.DayOfWeek = day
		payload.CreatedAt = now
		payload.UpdatedAt = now

		if _, err := tx.NamedExecContext(ctx, `INSERT INTO timetable_slots (id, batch_id, day_of_week, start_time, end_time, is_break, subject_id, teacher_id, room, created_at, updated_at) VALUES (:id, :batch_id, :day_of_week, :start_time, :end_time, :is_break, :subject_id, :teacher_id, :room, :created_at, :updated_at)`, &payload); err != nil {
			return fmt.Errorf("insert timetable slot: %w", err)
		}
		slots[i] = payload
	}
	return nil
}

// DeleteDay removes a batch's schedule for one day.
func (r *TimetableRepository) DeleteDay(ctx context.Context, batchID string, day models.DayOfWeek) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM timetable_slots WHERE batch_id = $1 AND day_of_week = $2`, batchID, day); err != nil {
		return fmt.Errorf("delete timetable day: %w", err)
	}
	return nil
}

// FindSlot loads a slot by its (batch, day, start, end) identity.
func (r *TimetableRepository) FindSlot(ctx context.Context, batchID string, day models.DayOfWeek, startTime, endTime string) (*models.TimeSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_slots WHERE batch_id = $1 AND day_of_week = $2 AND start_time = $3 AND end_time = $4", timeSlotColumns)
	var slot models.TimeSlot
	if err := r.db.GetContext(ctx, &slot, query, batchID, day, startTime, endTime); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListByTeacherDay returns every slot across all batches taught canonically
// by the teacher on the given weekday, ordered by start time.
func (r *TimetableRepository) ListByTeacherDay(ctx context.Context, teacherID string, day models.DayOfWeek) ([]models.TimeSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_slots WHERE teacher_id = $1 AND day_of_week = $2 ORDER BY start_time ASC", timeSlotColumns)
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, teacherID, day); err != nil {
		return nil, fmt.Errorf("list teacher slots: %w", err)
	}
	return slots, nil
}
