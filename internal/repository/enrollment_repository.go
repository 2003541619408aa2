package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-attendance-api/internal/models"
)

// ConstraintEnrollmentStudentClass rejects enrolling a student twice in one class.
const ConstraintEnrollmentStudentClass = "enrolled_students_student_class_key"

// EnrollmentRepository manages student accounts and their class enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CreateStudent inserts the student user and first enrollment in one transaction.
func (r *EnrollmentRepository) CreateStudent(ctx context.Context, user *models.User, enrollment *models.Enrollment) error {
	user.Role = models.RoleStudent
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}
		enrollment.StudentID = user.ID
		return insertEnrollment(ctx, tx, enrollment)
	})
}

// Create adds an enrollment for an existing student.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return insertEnrollment(ctx, tx, enrollment)
	})
}

func insertEnrollment(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrolled_students (id, student_id, year, branch, division, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, query, enrollment.ID, enrollment.StudentID, enrollment.Year, enrollment.Branch, enrollment.Division, enrollment.CreatedAt); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// ListByStudent returns every class coordinate the student is enrolled in.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, year, branch, division, created_at FROM enrolled_students WHERE student_id = $1 ORDER BY created_at ASC`
	enrollments := make([]models.Enrollment, 0)
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// StudentIDsForClass returns the distinct students enrolled in the coordinate.
func (r *EnrollmentRepository) StudentIDsForClass(ctx context.Context, class models.ClassCoordinate) ([]string, error) {
	const query = `SELECT DISTINCT student_id FROM enrolled_students WHERE year = $1 AND branch = $2 AND division = $3`
	ids := make([]string, 0)
	if err := r.db.SelectContext(ctx, &ids, query, class.Year, class.Branch, class.Division); err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}
	return ids, nil
}

// ListStudents returns one row per (student, enrollment), including students with none.
func (r *EnrollmentRepository) ListStudents(ctx context.Context) ([]models.StudentSummary, error) {
	const query = `SELECT u.id, u.name, u.email, e.year, e.branch, e.division, u.created_at
FROM users u LEFT JOIN enrolled_students e ON e.student_id = u.id
WHERE u.role = 'student' ORDER BY u.name ASC, e.year ASC`
	students := make([]models.StudentSummary, 0)
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}
