package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-attendance-api/internal/models"
)

// TeacherRepository manages teacher accounts and their profiles.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs the repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// Create inserts the teacher user and profile in one transaction.
func (r *TeacherRepository) Create(ctx context.Context, user *models.User, profile *models.TeacherProfile) error {
	user.Role = models.RoleTeacher
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}
		profile.UserID = user.ID
		const query = `INSERT INTO teachers (user_id, branch) VALUES ($1, $2)`
		if _, err := tx.ExecContext(ctx, query, profile.UserID, profile.Branch); err != nil {
			return fmt.Errorf("create teacher profile: %w", err)
		}
		return nil
	})
}

// List returns every teacher with their branch, newest first.
func (r *TeacherRepository) List(ctx context.Context) ([]models.TeacherSummary, error) {
	const query = `SELECT u.id, u.name, u.email, t.branch, u.created_at
FROM users u LEFT JOIN teachers t ON t.user_id = u.id
WHERE u.role = 'teacher' ORDER BY u.created_at DESC`
	teachers := make([]models.TeacherSummary, 0)
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}
