package models

import "time"

// Settings is a student's preference bag. Defaults apply when no row exists.
type Settings struct {
	UserID              string    `db:"user_id" json:"userId"`
	Theme               string    `db:"theme" json:"theme"`
	TextSize            string    `db:"text_size" json:"textSize"`
	NotificationsStart  bool      `db:"notifications_start" json:"notificationsStart"`
	NotificationsEnd    bool      `db:"notifications_end" json:"notificationsEnd"`
	ShowProfilePhoto    bool      `db:"show_profile_photo" json:"showProfilePhoto"`
	AttendanceThreshold int       `db:"attendance_threshold" json:"attendanceThreshold"`
	UpdatedAt           time.Time `db:"updated_at" json:"updatedAt"`
}

// DefaultSettings returns the settings a user has before saving any.
func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:              userID,
		Theme:               "system",
		TextSize:            "medium",
		NotificationsStart:  true,
		NotificationsEnd:    true,
		ShowProfilePhoto:    true,
		AttendanceThreshold: 75,
	}
}

// UpdateSettingsRequest carries a partial settings update.
type UpdateSettingsRequest struct {
	Theme               *string `json:"theme,omitempty" validate:"omitempty,oneof=light dark system"`
	TextSize            *string `json:"textSize,omitempty" validate:"omitempty,oneof=small medium large"`
	NotificationsStart  *bool   `json:"notificationsStart,omitempty"`
	NotificationsEnd    *bool   `json:"notificationsEnd,omitempty"`
	ShowProfilePhoto    *bool   `json:"showProfilePhoto,omitempty"`
	AttendanceThreshold *int    `json:"attendanceThreshold,omitempty" validate:"omitempty,min=0,max=100"`
}

// SupportStatus tracks a support request.
type SupportStatus string

const (
	SupportStatusOpen     SupportStatus = "open"
	SupportStatusResolved SupportStatus = "resolved"
	SupportStatusClosed   SupportStatus = "closed"
)

// SupportRequest is a help request filed from the settings screen.
type SupportRequest struct {
	ID          string        `db:"id" json:"id"`
	UserID      string        `db:"user_id" json:"userId"`
	Type        string        `db:"type" json:"type"`
	Description string        `db:"description" json:"description"`
	Status      SupportStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
}

// CreateSupportRequest is the payload for filing a support request.
type CreateSupportRequest struct {
	Type        string `json:"type" validate:"required,max=64"`
	Description string `json:"description" validate:"required,max=2000"`
}
