package models

import (
	"fmt"
	"time"
)

// ClassCoordinate identifies a class by (year, branch, division).
type ClassCoordinate struct {
	Year     string `db:"year" json:"year" validate:"required"`
	Branch   string `db:"branch" json:"branch" validate:"required"`
	Division string `db:"division" json:"division" validate:"required"`
}

// String renders the coordinate the way it is shown to students.
func (c ClassCoordinate) String() string {
	return fmt.Sprintf("%s %s %s", c.Year, c.Branch, c.Division)
}

// Enrollment ties a student to one class coordinate. A student may hold several.
type Enrollment struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"studentId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	ClassCoordinate
}

// StudentSummary is a student row as listed in the admin console, one per enrollment.
type StudentSummary struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Year      *string   `db:"year" json:"year"`
	Branch    *string   `db:"branch" json:"branch"`
	Division  *string   `db:"division" json:"division"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// CreateStudentRequest is the admin payload for provisioning a student with a first enrollment.
type CreateStudentRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Year     string `json:"year" validate:"required"`
	Branch   string `json:"branch" validate:"required"`
	Division string `json:"division" validate:"required"`
}
