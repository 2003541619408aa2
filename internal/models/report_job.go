package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReportType enumerates supported asynchronous report categories.
type ReportType string

const (
	ReportTypeTeacherRegister ReportType = "teacher_register"
)

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus captures background job lifecycle states.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// ReportJob persisted background job metadata.
type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Type         ReportType      `db:"type" json:"type"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultURL    *string         `db:"result_url" json:"resultUrl,omitempty"`
	CreatedBy    string          `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finishedAt,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error,omitempty"`
}

// ReportJobParams stores request options persisted as JSONB.
type ReportJobParams struct {
	TeacherID string       `json:"teacherId"`
	From      *time.Time   `json:"from,omitempty"`
	To        *time.Time   `json:"to,omitempty"`
	Format    ReportFormat `json:"format"`
}

// Value marshals params to JSON for persistence.
func (p ReportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal report job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ReportJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = ReportJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ReportJobParams", value)
	}
	if len(data) == 0 {
		*p = ReportJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal report job params: %w", err)
	}
	return nil
}

// RegisterExportRequest asks for a teacher's attendance register across sessions.
type RegisterExportRequest struct {
	TeacherID string       `json:"teacherId"`
	From      *time.Time   `json:"from,omitempty"`
	To        *time.Time   `json:"to,omitempty"`
	Format    ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ReportJobStatus exposes job progress.
type ReportJobStatus struct {
	ID          string       `json:"id"`
	Status      ReportStatus `json:"status"`
	Progress    int          `json:"progress"`
	DownloadURL *string      `json:"downloadUrl,omitempty"`
	Error       *string      `json:"error,omitempty"`
}

// RegisterRow is one attendance line in a teacher register export.
type RegisterRow struct {
	SessionID   string           `db:"session_id"`
	SessionDate time.Time        `db:"session_date"`
	Subject     *string          `db:"subject"`
	StudentName string           `db:"student_name"`
	Email       string           `db:"email"`
	Status      AttendanceStatus `db:"status"`
	MarkedAt    *time.Time       `db:"marked_at"`
	Year        *string          `db:"year"`
	Branch      *string          `db:"branch"`
	Division    *string          `db:"division"`
}

// TeacherStats aggregates a teacher's sessions.
type TeacherStats struct {
	TotalSessions int     `json:"totalSessions"`
	AvgAttendance float64 `json:"avgAttendance"`
}
