package models

import "time"

// TeacherProfile stores teacher-only attributes, one per teacher account.
type TeacherProfile struct {
	UserID string `db:"user_id" json:"userId"`
	Branch string `db:"branch" json:"branch"`
}

// TeacherSummary is a teacher row as listed in the admin console.
type TeacherSummary struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Branch    *string   `db:"branch" json:"branch"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// CreateTeacherRequest is the admin payload for provisioning a teacher.
type CreateTeacherRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Branch   string `json:"branch" validate:"required"`
}
