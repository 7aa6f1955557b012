package models

import "time"

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// Valid reports whether the format is supported.
func (f ExportFormat) Valid() bool {
	return f == ExportFormatCSV || f == ExportFormatPDF
}

// ExportType selects which report is rendered.
type ExportType string

const (
	ExportTypeBatchMatrix  ExportType = "batch_matrix"
	ExportTypeClassHistory ExportType = "class_history"
)

// Valid reports whether the type is supported.
func (t ExportType) Valid() bool {
	return t == ExportTypeBatchMatrix || t == ExportTypeClassHistory
}

// ExportStatus is the lifecycle state of an export job.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusDone       ExportStatus = "DONE"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob tracks an asynchronous report export.
type ExportJob struct {
	ID           string       `db:"id" json:"id"`
	Type         ExportType   `db:"type" json:"type"`
	Format       ExportFormat `db:"format" json:"format"`
	BatchID      *string      `db:"batch_id" json:"batch_id,omitempty"`
	TeacherID    *string      `db:"teacher_id" json:"teacher_id,omitempty"`
	Status       ExportStatus `db:"status" json:"status"`
	FilePath     *string      `db:"file_path" json:"-"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    string       `db:"created_by" json:"created_by"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
}
