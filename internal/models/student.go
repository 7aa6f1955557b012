package models

import "time"

// Student carries a student's academic placement on top of their user account.
type Student struct {
	UserID       string    `db:"user_id" json:"user_id"`
	RollNumber   string    `db:"roll_number" json:"roll_number"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	BatchID      string    `db:"batch_id" json:"batch_id"`
	Semester     int       `db:"semester" json:"semester"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail adds identity fields for roster listings.
type StudentDetail struct {
	Student
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}

// StudentFilter scopes roster queries.
type StudentFilter struct {
	DepartmentID string
	BatchID      string
	Semester     int
	Search       string
	Page         int
	PageSize     int
}
