package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-attendance-api/internal/models"
)

// Constraint names the service layer inspects on unique violations.
const (
	ConstraintOneActivePerTeacher = "sessions_one_active_per_teacher"
	ConstraintActiveCode          = "sessions_active_code"
)

const sessionColumns = `s.id, s.code, s.teacher_id, s.active, s.status, s.created_at, s.expires_at, s.ended_at,
s.lat, s.lng, s.radius, s.year, s.branch, s.division, s.subject, s.topic, s.total_students`

// SessionRepository persists attendance sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new ACTIVE session. Partial unique indexes reject a second
// active session for the teacher and a code already used by an active session.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	s.Status = models.SessionStatusActive
	s.Active = true

	const query = `INSERT INTO sessions (id, code, teacher_id, active, status, created_at, expires_at, lat, lng, radius, year, branch, division, subject, topic, total_students)
VALUES ($1, $2, $3, TRUE, 'ACTIVE', $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	if _, err := r.db.ExecContext(ctx, query,
		s.ID, s.Code, s.TeacherID, s.CreatedAt, s.ExpiresAt, s.Lat, s.Lng, s.Radius,
		s.Year, s.Branch, s.Division, s.Subject, s.Topic, s.TotalStudents,
	); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByID returns a session by identifier.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions s WHERE s.id = $1`
	return r.getOne(ctx, "find session", query, id)
}

// FindActiveByTeacher returns the teacher's ACTIVE session.
func (r *SessionRepository) FindActiveByTeacher(ctx context.Context, teacherID string) (*models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions s WHERE s.teacher_id = $1 AND s.status = 'ACTIVE' LIMIT 1`
	return r.getOne(ctx, "find active session by teacher", query, teacherID)
}

// FindActiveByCode returns the ACTIVE session holding code.
func (r *SessionRepository) FindActiveByCode(ctx context.Context, code string) (*models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions s WHERE s.code = $1 AND s.status = 'ACTIVE' LIMIT 1`
	return r.getOne(ctx, "find active session by code", query, code)
}

func (r *SessionRepository) getOne(ctx context.Context, op, query string, arg interface{}) (*models.Session, error) {
	var s models.Session
	if err := r.db.GetContext(ctx, &s, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &s, nil
}

// Close flips an ACTIVE session to CLOSED. Only one caller observes true for a session.
func (r *SessionRepository) Close(ctx context.Context, id string, endedAt time.Time) (bool, error) {
	const query = `UPDATE sessions SET status = 'CLOSED', active = FALSE, ended_at = $2 WHERE id = $1 AND status = 'ACTIVE'`
	res, err := r.db.ExecContext(ctx, query, id, endedAt)
	if err != nil {
		return false, fmt.Errorf("close session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close session rows: %w", err)
	}
	return affected == 1, nil
}

// ListExpiredActive returns ids of ACTIVE sessions whose window ended before now.
func (r *SessionRepository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT id FROM sessions WHERE status = 'ACTIVE' AND expires_at < $1 ORDER BY expires_at ASC LIMIT $2`
	ids := make([]string, 0)
	if err := r.db.SelectContext(ctx, &ids, query, now, limit); err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	return ids, nil
}

// ListByTeacher returns the teacher's sessions with attendance tallies, newest first.
func (r *SessionRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherSessionSummary, error) {
	const query = `SELECT s.id, s.code, s.status, s.created_at, s.expires_at, s.ended_at,
s.year, s.branch, s.division, s.subject, s.topic, s.total_students,
COUNT(a.id) FILTER (WHERE a.status = 'present') AS present,
COUNT(a.id) FILTER (WHERE a.status = 'absent') AS absent,
COUNT(a.id) AS total
FROM sessions s LEFT JOIN attendance a ON a.session_id = s.id
WHERE s.teacher_id = $1
GROUP BY s.id ORDER BY s.created_at DESC`
	sessions := make([]models.TeacherSessionSummary, 0)
	if err := r.db.SelectContext(ctx, &sessions, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher sessions: %w", err)
	}
	return sessions, nil
}

// FindActiveForStudent returns the newest unexpired ACTIVE session whose class
// coordinate matches one of the student's enrollments.
func (r *SessionRepository) FindActiveForStudent(ctx context.Context, studentID string, now time.Time) (*models.SessionWithTeacher, error) {
	const query = `SELECT ` + sessionColumns + `, u.name AS teacher_name
FROM sessions s
JOIN users u ON u.id = s.teacher_id
JOIN enrolled_students e ON e.year = s.year AND e.branch = s.branch AND e.division = s.division
WHERE e.student_id = $1 AND s.status = 'ACTIVE' AND s.expires_at >= $2
ORDER BY s.created_at DESC LIMIT 1`
	var s models.SessionWithTeacher
	if err := r.db.GetContext(ctx, &s, query, studentID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student active session: %w", err)
	}
	return &s, nil
}

// TeacherStats counts the teacher's sessions and averages the present rate over
// CLOSED sessions that have at least one attendance row.
func (r *SessionRepository) TeacherStats(ctx context.Context, teacherID string) (models.TeacherStats, error) {
	const query = `SELECT
(SELECT COUNT(*) FROM sessions WHERE teacher_id = $1) AS total_sessions,
COALESCE((SELECT AVG(pct) FROM (
	SELECT 100.0 * COUNT(*) FILTER (WHERE a.status = 'present') / COUNT(*) AS pct
	FROM sessions s JOIN attendance a ON a.session_id = s.id
	WHERE s.teacher_id = $1 AND s.status = 'CLOSED'
	GROUP BY s.id
) per_session), 0) AS avg_attendance`
	var row struct {
		TotalSessions int     `db:"total_sessions"`
		AvgAttendance float64 `db:"avg_attendance"`
	}
	if err := r.db.GetContext(ctx, &row, query, teacherID); err != nil {
		return models.TeacherStats{}, fmt.Errorf("teacher stats: %w", err)
	}
	return models.TeacherStats{TotalSessions: row.TotalSessions, AvgAttendance: row.AvgAttendance}, nil
}
