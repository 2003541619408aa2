package models

import "time"

// SessionStatus captures the session lifecycle. Transitions only go ACTIVE to CLOSED.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "ACTIVE"
	SessionStatusClosed SessionStatus = "CLOSED"
)

// ClassMetadata describes the class a session was opened for. Every field is optional.
type ClassMetadata struct {
	Year          *string `db:"year" json:"year,omitempty"`
	Branch        *string `db:"branch" json:"branch,omitempty"`
	Division      *string `db:"division" json:"division,omitempty"`
	Subject       *string `db:"subject" json:"subject,omitempty"`
	Topic         *string `db:"topic" json:"topic,omitempty"`
	TotalStudents *int    `db:"total_students" json:"totalStudents,omitempty"`
}

// Coordinate returns the class coordinate when year, branch and division are all set.
func (m ClassMetadata) Coordinate() (ClassCoordinate, bool) {
	if blank(m.Year) || blank(m.Branch) || blank(m.Division) {
		return ClassCoordinate{}, false
	}
	return ClassCoordinate{Year: *m.Year, Branch: *m.Branch, Division: *m.Division}, true
}

func blank(s *string) bool {
	return s == nil || *s == ""
}

// Session is a time-boxed, geofenced attendance window opened by a teacher.
type Session struct {
	ID        string        `db:"id" json:"id"`
	Code      string        `db:"code" json:"code"`
	TeacherID string        `db:"teacher_id" json:"teacherId"`
	Active    bool          `db:"active" json:"active"`
	Status    SessionStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
	ExpiresAt time.Time     `db:"expires_at" json:"expiresAt"`
	EndedAt   *time.Time    `db:"ended_at" json:"endedAt,omitempty"`
	Lat       float64       `db:"lat" json:"lat"`
	Lng       float64       `db:"lng" json:"lng"`
	Radius    float64       `db:"radius" json:"radius"`
	ClassMetadata `json:"metadata"`
}

// IsActive reports whether the session still accepts marks.
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// Expired reports whether the session window has elapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// OpenSessionRequest is the teacher payload for opening a session.
type OpenSessionRequest struct {
	TeacherID       string         `json:"teacherId"`
	Lat             *float64       `json:"lat" validate:"required"`
	Lng             *float64       `json:"lng" validate:"required"`
	Radius          *float64       `json:"radius,omitempty" validate:"omitempty,gt=0"`
	DurationMinutes *int           `json:"durationMinutes,omitempty" validate:"omitempty,gt=0,lte=240"`
	Metadata        *ClassMetadata `json:"metadata,omitempty"`
}

// OpenSessionResponse returns the issued code and window.
type OpenSessionResponse struct {
	SessionID string    `json:"sessionId"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionState is the polling view of a session.
type SessionState struct {
	SessionID        string        `json:"sessionId"`
	TeacherID        string        `json:"-"`
	Code             string        `json:"code,omitempty"`
	Status           SessionStatus `json:"status"`
	Active           bool          `json:"active"`
	RemainingSeconds int           `json:"remainingSeconds"`
	ExpiresAt        time.Time     `json:"expiresAt"`
	MarkedCount      int           `json:"markedCount"`
	Metadata         ClassMetadata `json:"metadata"`
}

// EndSessionResponse confirms a manual close.
type EndSessionResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// TeacherSessionSummary is one row of a teacher's session history.
type TeacherSessionSummary struct {
	ID        string        `db:"id" json:"id"`
	Code      string        `db:"code" json:"code"`
	Status    SessionStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
	ExpiresAt time.Time     `db:"expires_at" json:"expiresAt"`
	EndedAt   *time.Time    `db:"ended_at" json:"endedAt,omitempty"`
	Present   int           `db:"present" json:"present"`
	Absent    int           `db:"absent" json:"absent"`
	Total     int           `db:"total" json:"total"`
	ClassMetadata `json:"metadata"`
}

// SessionWithTeacher joins a session with its teacher's display name.
type SessionWithTeacher struct {
	Session
	TeacherName string `db:"teacher_name" json:"teacherName"`
}
