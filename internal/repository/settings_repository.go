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

// SettingsRepository stores student preferences and support requests.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs the repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns stored settings or sql.ErrNoRows when the user has none.
func (r *SettingsRepository) Get(ctx context.Context, userID string) (*models.Settings, error) {
	const query = `SELECT user_id, theme, text_size, notifications_start, notifications_end, show_profile_photo, attendance_threshold, updated_at
FROM student_settings WHERE user_id = $1`
	var settings models.Settings
	if err := r.db.GetContext(ctx, &settings, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &settings, nil
}

// Upsert writes the full settings row.
func (r *SettingsRepository) Upsert(ctx context.Context, settings *models.Settings) error {
	settings.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO student_settings (user_id, theme, text_size, notifications_start, notifications_end, show_profile_photo, attendance_threshold, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (user_id) DO UPDATE SET
	theme = EXCLUDED.theme,
	text_size = EXCLUDED.text_size,
	notifications_start = EXCLUDED.notifications_start,
	notifications_end = EXCLUDED.notifications_end,
	show_profile_photo = EXCLUDED.show_profile_photo,
	attendance_threshold = EXCLUDED.attendance_threshold,
	updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query,
		settings.UserID, settings.Theme, settings.TextSize, settings.NotificationsStart,
		settings.NotificationsEnd, settings.ShowProfilePhoto, settings.AttendanceThreshold, settings.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// CreateSupportRequest files a new open support request.
func (r *SettingsRepository) CreateSupportRequest(ctx context.Context, req *models.SupportRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = models.SupportStatusOpen
	}
	const query = `INSERT INTO support_requests (id, user_id, type, description, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, req.ID, req.UserID, req.Type, req.Description, req.Status, req.CreatedAt); err != nil {
		return fmt.Errorf("create support request: %w", err)
	}
	return nil
}
