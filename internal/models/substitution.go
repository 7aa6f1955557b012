package models

import "time"

// SubstitutionStatus is the lifecycle state of a substitution request.
type SubstitutionStatus string

const (
	SubstitutionPending   SubstitutionStatus = "PENDING"
	SubstitutionApproved  SubstitutionStatus = "APPROVED"
	SubstitutionCompleted SubstitutionStatus = "COMPLETED"
	SubstitutionCancelled SubstitutionStatus = "CANCELLED"
)

// Valid reports whether the status is a supported value.
func (s SubstitutionStatus) Valid() bool {
	switch s {
	case SubstitutionPending, SubstitutionApproved, SubstitutionCompleted, SubstitutionCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is permitted.
func (s SubstitutionStatus) Terminal() bool {
	return s == SubstitutionCompleted || s == SubstitutionCancelled
}

// CanTransition reports whether moving to next is a legal state change.
// pending -> approved|cancelled, approved -> completed|cancelled.
func (s SubstitutionStatus) CanTransition(next SubstitutionStatus) bool {
	switch s {
	case SubstitutionPending:
		return next == SubstitutionApproved || next == SubstitutionCancelled
	case SubstitutionApproved:
		return next == SubstitutionCompleted || next == SubstitutionCancelled
	default:
		return false
	}
}

// Substitution is a date-scoped reassignment of who teaches one slot. The
// weekly template is never mutated; approved and completed substitutions are
// merged into schedule reads and attendance authorization at query time.
type Substitution struct {
	ID                  string             `db:"id" json:"id"`
	OriginalTeacherID   string             `db:"original_teacher_id" json:"original_teacher_id"`
	SubstituteTeacherID string             `db:"substitute_teacher_id" json:"substitute_teacher_id"`
	SubjectID           string             `db:"subject_id" json:"subject_id"`
	BatchID             string             `db:"batch_id" json:"batch_id"`
	Date                time.Time          `db:"date" json:"date"`
	StartTime           string             `db:"start_time" json:"start_time"`
	EndTime             string             `db:"end_time" json:"end_time"`
	Room                string             `db:"room" json:"room"`
	Reason              string             `db:"reason" json:"reason"`
	Status              SubstitutionStatus `db:"status" json:"status"`
	CreatedAt           time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `db:"updated_at" json:"updated_at"`
}

// Covers reports whether the substitution is in force for schedule merging
// and attendance authorization.
func (s Substitution) Covers() bool {
	return s.Status == SubstitutionApproved || s.Status == SubstitutionCompleted
}

// SubstitutionFilter scopes listing queries.
type SubstitutionFilter struct {
	TeacherID string
	BatchID   string
	Status    *SubstitutionStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}
