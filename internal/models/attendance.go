package models

import "time"

// AttendanceStatus marks a single student entry.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
)

// Valid reports whether the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	return s == AttendancePresent || s == AttendanceAbsent
}

// ImportMode controls how multi-part writes behave on errors.
type ImportMode string

const (
	ImportModeAtomic         ImportMode = "atomic"
	ImportModePartialOnError ImportMode = "partialOnError"
)

// Valid reports whether the mode is supported.
func (m ImportMode) Valid() bool {
	return m == ImportModeAtomic || m == ImportModePartialOnError
}

// AttendanceRecord is the ledger row for one class actually held. At most one
// record may exist per (date, subject, batch); the ledger is append-only and
// records are never mutated once written.
type AttendanceRecord struct {
	ID                string    `db:"id" json:"id"`
	Date              time.Time `db:"date" json:"date"`
	SubjectID         string    `db:"subject_id" json:"subject_id"`
	BatchID           string    `db:"batch_id" json:"batch_id"`
	TakenByID         string    `db:"taken_by_id" json:"taken_by_id"`
	ClassTime         string    `db:"class_time" json:"class_time"`
	DurationMinutes   int       `db:"duration_minutes" json:"duration_minutes"`
	IsSubstitution    bool      `db:"is_substitution" json:"is_substitution"`
	OriginalTeacherID *string   `db:"original_teacher_id" json:"original_teacher_id,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// AttendanceEntry is one student's mark within a record.
type AttendanceEntry struct {
	ID         string           `db:"id" json:"id"`
	RecordID   string           `db:"record_id" json:"record_id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	RollNumber string           `db:"roll_number" json:"roll_number"`
	Status     AttendanceStatus `db:"status" json:"status"`
}

// AttendanceRecordDetail bundles a record with its entries and names.
type AttendanceRecordDetail struct {
	AttendanceRecord
	SubjectName string            `db:"subject_name" json:"subject_name"`
	BatchName   string            `db:"batch_name" json:"batch_name"`
	Entries     []AttendanceEntry `json:"entries,omitempty"`
}

// AttendanceFilter scopes ledger reads.
type AttendanceFilter struct {
	TeacherID string
	StudentID string
	BatchID   string
	SubjectID string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

// StudentAttendanceRow is one (date, subject, status) observation for a
// student, the unit the aggregation layer consumes.
type StudentAttendanceRow struct {
	Date        time.Time        `db:"date" json:"date"`
	SubjectID   string           `db:"subject_id" json:"subject_id"`
	SubjectName string           `db:"subject_name" json:"subject_name"`
	Status      AttendanceStatus `db:"status" json:"status"`
}
