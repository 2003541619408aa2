package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
)

// AttendanceRecord is the immutable outcome for one student in one session.
// MarkedAt is nil for back-filled absences.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	SessionID string           `db:"session_id" json:"sessionId"`
	StudentID string           `db:"student_id" json:"studentId"`
	Status    AttendanceStatus `db:"status" json:"status"`
	MarkedAt  *time.Time       `db:"marked_at" json:"markedAt"`
}

// MarkAttendanceRequest is the student payload for redeeming a code.
type MarkAttendanceRequest struct {
	StudentID string   `json:"studentId"`
	Code      string   `json:"code" validate:"required,len=4,numeric"`
	Lat       *float64 `json:"lat" validate:"required"`
	Lng       *float64 `json:"lng" validate:"required"`
}

// MarkAttendanceResponse confirms a present mark.
type MarkAttendanceResponse struct {
	Message   string    `json:"message"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

// StudentStats summarises a student's attendance across all sessions.
type StudentStats struct {
	Total      int     `db:"total" json:"total"`
	Present    int     `db:"present" json:"present"`
	Absent     int     `db:"absent" json:"absent"`
	Percentage float64 `db:"-" json:"percentage"`
}

// StudentHistoryEntry is one attendance row enriched with session details.
type StudentHistoryEntry struct {
	SessionID   string           `db:"session_id" json:"sessionId"`
	Status      AttendanceStatus `db:"status" json:"status"`
	MarkedAt    *time.Time       `db:"marked_at" json:"markedAt"`
	Date        time.Time        `db:"date" json:"date"`
	Subject     *string          `db:"subject" json:"subject"`
	Topic       *string          `db:"topic" json:"topic"`
	TeacherName string           `db:"teacher_name" json:"teacherName"`
}

// StudentActiveSession is the session currently open for one of the student's classes.
// The code is deliberately absent; students receive it from the teacher.
type StudentActiveSession struct {
	SessionID     string    `json:"sessionId"`
	TeacherName   string    `json:"teacherName"`
	Subject       *string   `json:"subject"`
	Topic         *string   `json:"topic"`
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	Radius        float64   `json:"radius"`
	ExpiresAt     time.Time `json:"expiresAt"`
	AlreadyMarked bool      `json:"alreadyMarked"`
}

// SessionExportRow is one line of the per-session attendance export.
type SessionExportRow struct {
	StudentName string           `db:"student_name"`
	Email       string           `db:"email"`
	Status      AttendanceStatus `db:"status"`
	MarkedAt    *time.Time       `db:"marked_at"`
	SessionDate time.Time        `db:"session_date"`
	Year        *string          `db:"year"`
	Branch      *string          `db:"branch"`
	Division    *string          `db:"division"`
}
