package models

import "time"

// SubjectSummary is a student's attendance standing in one subject.
// Percentage is an integer, rounded half up; zero when no classes were held.
type SubjectSummary struct {
	SubjectID    string `json:"subject_id"`
	SubjectName  string `json:"subject_name"`
	TotalClasses int    `json:"total_classes"`
	Present      int    `json:"present"`
	Percentage   int    `json:"percentage"`
}

// OverallSummary combines all subjects. The percentage is computed over the
// summed counts, not averaged across subjects.
type OverallSummary struct {
	TotalClasses int `json:"total_classes"`
	Present      int `json:"present"`
	Percentage   int `json:"percentage"`
}

// StreakSummary reports current and longest daily attendance streaks.
type StreakSummary struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// MatrixCell is a single student-subject intersection of the cross-tab.
type MatrixCell struct {
	SubjectID    string `json:"subject_id"`
	TotalClasses int    `json:"total_classes"`
	Present      int    `json:"present"`
	Percentage   int    `json:"percentage"`
}

// MatrixRow holds one student's cells plus the combined overall column.
type MatrixRow struct {
	StudentID  string         `json:"student_id"`
	RollNumber string         `json:"roll_number"`
	FullName   string         `json:"full_name"`
	Cells      []MatrixCell   `json:"cells"`
	Overall    OverallSummary `json:"overall"`
}

// AttendanceMatrix is the batch-wide cross-tab of students against subjects.
type AttendanceMatrix struct {
	BatchID  string           `json:"batch_id"`
	Subjects []SubjectSummary `json:"subjects"`
	Rows     []MatrixRow      `json:"rows"`
}

// ClassHistoryEntry summarises one class a teacher has held.
type ClassHistoryEntry struct {
	RecordID    string    `json:"record_id"`
	Date        time.Time `json:"date"`
	SubjectID   string    `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
	BatchID     string    `json:"batch_id"`
	BatchName   string    `json:"batch_name"`
	ClassTime   string    `json:"class_time"`
	Present     int       `json:"present"`
	Absent      int       `json:"absent"`
	Percentage  int       `json:"percentage"`
}
