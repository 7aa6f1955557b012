package models

import (
	"time"
)

// DayOfWeek enumerates the teaching days of the weekly template.
type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
)

// TeachingDays lists days in template order.
var TeachingDays = []DayOfWeek{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// Valid reports whether the value is a supported teaching day.
func (d DayOfWeek) Valid() bool {
	for _, day := range TeachingDays {
		if d == day {
			return true
		}
	}
	return false
}

// DayOfDate maps a calendar date onto the weekly template. Sunday has no
// template day; ok is false.
func DayOfDate(date time.Time) (DayOfWeek, bool) {
	switch date.Weekday() {
	case time.Monday:
		return Monday, true
	case time.Tuesday:
		return Tuesday, true
	case time.Wednesday:
		return Wednesday, true
	case time.Thursday:
		return Thursday, true
	case time.Friday:
		return Friday, true
	case time.Saturday:
		return Saturday, true
	default:
		return "", false
	}
}

// TimeSlot is one period of a batch's weekly template. Identity within a day
// is the (start_time, end_time) pair, never array position. Times are
// zero-padded "HH:MM" strings so lexicographic order equals chronological
// order.
type TimeSlot struct {
	ID        string    `db:"id" json:"id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	DayOfWeek DayOfWeek `db:"day_of_week" json:"day_of_week"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	IsBreak   bool      `db:"is_break" json:"is_break"`
	SubjectID *string   `db:"subject_id" json:"subject_id,omitempty"`
	TeacherID *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	Room      string    `db:"room" json:"room"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Overlaps reports whether two slots collide. Intervals are half-open, so
// back-to-back slots sharing a boundary do not overlap.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return s.StartTime < other.EndTime && other.StartTime < s.EndTime
}

// ValidClockTime reports whether raw is a zero-padded HH:MM time of day.
func ValidClockTime(raw string) bool {
	if len(raw) != 5 || raw[2] != ':' {
		return false
	}
	_, err := time.Parse("15:04", raw)
	return err == nil
}

// ScheduleEntryKind flags how a slot relates to the requesting teacher on a
// specific date.
type ScheduleEntryKind string

const (
	ScheduleEntryRegular        ScheduleEntryKind = "REGULAR"
	ScheduleEntrySubstitution   ScheduleEntryKind = "SUBSTITUTION"
	ScheduleEntrySubstitutedOut ScheduleEntryKind = "SUBSTITUTED_OUT"
)

// TeacherScheduleEntry is one row of a teacher's effective schedule for a
// calendar date: the weekly template merged with date-scoped substitutions.
type TeacherScheduleEntry struct {
	BatchID        string            `json:"batch_id"`
	BatchName      string            `json:"batch_name,omitempty"`
	SubjectID      string            `json:"subject_id"`
	SubjectName    string            `json:"subject_name,omitempty"`
	StartTime      string            `json:"start_time"`
	EndTime        string            `json:"end_time"`
	Room           string            `json:"room"`
	Kind           ScheduleEntryKind `json:"kind"`
	SubstitutionID string            `json:"substitution_id,omitempty"`
	CoveredBy      string            `json:"covered_by,omitempty"`
	CoveringFor    string            `json:"covering_for,omitempty"`
}
