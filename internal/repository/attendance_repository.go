package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-attendance-api/internal/models"
)

// ConstraintAttendanceSessionStudent guards one record per (session, student).
const ConstraintAttendanceSessionStudent = "attendance_session_student_key"

// AttendanceRepository persists immutable attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// InsertPresent records a present mark, but only while the session is still ACTIVE
// and unexpired at markedAt. It reports false when the session guard filtered the
// row out. A second mark for the same student fails with a unique violation.
func (r *AttendanceRepository) InsertPresent(ctx context.Context, rec *models.AttendanceRecord, markedAt time.Time) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Status = models.AttendanceStatusPresent
	rec.MarkedAt = &markedAt

	const query = `INSERT INTO attendance (id, session_id, student_id, status, marked_at)
SELECT $1::uuid, $2::uuid, $3::uuid, 'present', $4::timestamptz
WHERE EXISTS (SELECT 1 FROM sessions WHERE id = $2::uuid AND status = 'ACTIVE' AND expires_at >= $4::timestamptz)`
	res, err := r.db.ExecContext(ctx, query, rec.ID, rec.SessionID, rec.StudentID, markedAt)
	if err != nil {
		return false, fmt.Errorf("insert present mark: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert present mark rows: %w", err)
	}
	return affected == 1, nil
}

// InsertAbsent writes an absent row with no mark time. Existing rows are left untouched.
func (r *AttendanceRepository) InsertAbsent(ctx context.Context, sessionID, studentID string) (bool, error) {
	const query = `INSERT INTO attendance (id, session_id, student_id, status, marked_at)
VALUES ($1, $2, $3, 'absent', NULL)
ON CONFLICT (session_id, student_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, uuid.NewString(), sessionID, studentID)
	if err != nil {
		return false, fmt.Errorf("insert absent row: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert absent rows: %w", err)
	}
	return affected == 1, nil
}

// StudentIDsForSession lists students that already have a row for the session.
func (r *AttendanceRepository) StudentIDsForSession(ctx context.Context, sessionID string) ([]string, error) {
	const query = `SELECT student_id FROM attendance WHERE session_id = $1`
	ids := make([]string, 0)
	if err := r.db.SelectContext(ctx, &ids, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session attendees: %w", err)
	}
	return ids, nil
}

// Exists reports whether the student has any row for the session.
func (r *AttendanceRepository) Exists(ctx context.Context, sessionID, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM attendance WHERE session_id = $1 AND student_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, sessionID, studentID); err != nil {
		return false, fmt.Errorf("check attendance: %w", err)
	}
	return exists, nil
}

// CountForSession counts every record of the session, absences included.
func (r *AttendanceRepository) CountForSession(ctx context.Context, sessionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM attendance WHERE session_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sessionID); err != nil {
		return 0, fmt.Errorf("count session records: %w", err)
	}
	return count, nil
}

// StudentStats tallies a student's records across all sessions.
func (r *AttendanceRepository) StudentStats(ctx context.Context, studentID string) (models.StudentStats, error) {
	const query = `SELECT COUNT(*) AS total,
COUNT(*) FILTER (WHERE status = 'present') AS present,
COUNT(*) FILTER (WHERE status = 'absent') AS absent
FROM attendance WHERE student_id = $1`
	var stats models.StudentStats
	if err := r.db.GetContext(ctx, &stats, query, studentID); err != nil {
		return models.StudentStats{}, fmt.Errorf("student stats: %w", err)
	}
	return stats, nil
}

// StudentHistory lists a student's records with session details, newest first.
func (r *AttendanceRepository) StudentHistory(ctx context.Context, studentID string, limit int) ([]models.StudentHistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `SELECT a.session_id, a.status, a.marked_at, s.created_at AS date, s.subject, s.topic, u.name AS teacher_name
FROM attendance a
JOIN sessions s ON s.id = a.session_id
JOIN users u ON u.id = s.teacher_id
WHERE a.student_id = $1
ORDER BY s.created_at DESC LIMIT $2`
	entries := make([]models.StudentHistoryEntry, 0)
	if err := r.db.SelectContext(ctx, &entries, query, studentID, limit); err != nil {
		return nil, fmt.Errorf("student history: %w", err)
	}
	return entries, nil
}

// SessionExportRows returns every record of the session joined with student details.
func (r *AttendanceRepository) SessionExportRows(ctx context.Context, sessionID string) ([]models.SessionExportRow, error) {
	const query = `SELECT u.name AS student_name, u.email, a.status, a.marked_at, s.created_at AS session_date, s.year, s.branch, s.division
FROM attendance a
JOIN users u ON u.id = a.student_id
JOIN sessions s ON s.id = a.session_id
WHERE a.session_id = $1
ORDER BY u.name ASC`
	rows := make([]models.SessionExportRow, 0)
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("session export rows: %w", err)
	}
	return rows, nil
}

// RegisterRows returns every record across the teacher's sessions in the optional range.
func (r *AttendanceRepository) RegisterRows(ctx context.Context, teacherID string, from, to *time.Time) ([]models.RegisterRow, error) {
	query := `SELECT s.id AS session_id, s.created_at AS session_date, s.subject, u.name AS student_name, u.email,
a.status, a.marked_at, s.year, s.branch, s.division
FROM attendance a
JOIN sessions s ON s.id = a.session_id
JOIN users u ON u.id = a.student_id
WHERE s.teacher_id = $1`
	args := []interface{}{teacherID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND s.created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND s.created_at < $%d", len(args))
	}
	query += " ORDER BY s.created_at ASC, u.name ASC"

	rows := make([]models.RegisterRow, 0)
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("register rows: %w", err)
	}
	return rows, nil
}
