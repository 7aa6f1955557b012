package models

import "time"

// Teacher carries the teaching profile on top of a user account.
type Teacher struct {
	UserID       string    `db:"user_id" json:"user_id"`
	EmployeeCode string    `db:"employee_code" json:"employee_code"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// TeacherDetail adds identity fields for roster listings.
type TeacherDetail struct {
	Teacher
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}

// TeacherSubject authorizes a teacher for a subject, optionally scoped to a
// single batch. A NULL batch means every batch of the subject's department
// and semester.
type TeacherSubject struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	BatchID   *string   `db:"batch_id" json:"batch_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TeacherSubjectDetail enriches assignments with descriptive fields.
type TeacherSubjectDetail struct {
	TeacherSubject
	SubjectName string  `db:"subject_name" json:"subject_name"`
	SubjectCode string  `db:"subject_code" json:"subject_code"`
	BatchName   *string `db:"batch_name" json:"batch_name,omitempty"`
}

// TeacherFilter scopes teacher roster queries.
type TeacherFilter struct {
	SubjectID string
	Search    string
	Page      int
	PageSize  int
}
