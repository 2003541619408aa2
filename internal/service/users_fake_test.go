package service

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-attendance-api/internal/models"
	"github.com/noah-isme/campus-attendance-api/internal/repository"
)

// memUsers backs the auth and admin services with in-memory accounts.
type memUsers struct {
	mu          sync.Mutex
	users       map[string]*models.User
	branches    map[string]string
	enrollments []models.Enrollment
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]*models.User{}, branches: map[string]string{}}
}

func (m *memUsers) seed(name, email, password string, role models.UserRole) *models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	user := &models.User{ID: uuid.NewString(), Name: name, Email: email, PasswordHash: string(hash), Role: role}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return user
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id, hash string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = hash
	u.TokenVersion++
	u.UpdatedAt = updatedAt
	return nil
}

func (m *memUsers) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.FindByEmail(ctx, email)
	return err == nil, nil
}

func (m *memUsers) DeleteWithRole(_ context.Context, id string, role models.UserRole) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Role != role {
		return false, nil
	}
	delete(m.users, id)
	return true, nil
}

func (m *memUsers) insert(user *models.User, role models.UserRole) error {
	for _, u := range m.users {
		if u.Email == user.Email {
			return uniqueViolation(repository.ConstraintUserEmail)
		}
	}
	user.ID = uuid.NewString()
	user.Role = role
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

// Create satisfies the teacher store.
func (m *memUsers) Create(_ context.Context, user *models.User, profile *models.TeacherProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insert(user, models.RoleTeacher); err != nil {
		return err
	}
	profile.UserID = user.ID
	m.branches[user.ID] = profile.Branch
	return nil
}

func (m *memUsers) List(context.Context) ([]models.TeacherSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.TeacherSummary, 0)
	for _, u := range m.users {
		if u.Role == models.RoleTeacher {
			branch := m.branches[u.ID]
			out = append(out, models.TeacherSummary{ID: u.ID, Name: u.Name, Email: u.Email, Branch: &branch})
		}
	}
	return out, nil
}

// memStudents is the student side of the admin fake; it shares accounts with memUsers.
type memStudents struct{ *memUsers }

func (m memStudents) CreateStudent(_ context.Context, user *models.User, enrollment *models.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insert(user, models.RoleStudent); err != nil {
		return err
	}
	enrollment.StudentID = user.ID
	enrollment.ID = uuid.NewString()
	m.enrollments = append(m.enrollments, *enrollment)
	return nil
}

func (m memStudents) Create(_ context.Context, enrollment *models.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.StudentID == enrollment.StudentID && e.ClassCoordinate == enrollment.ClassCoordinate {
			return uniqueViolation(repository.ConstraintEnrollmentStudentClass)
		}
	}
	enrollment.ID = uuid.NewString()
	m.enrollments = append(m.enrollments, *enrollment)
	return nil
}

func (m memStudents) ListStudents(context.Context) ([]models.StudentSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.StudentSummary, 0, len(m.enrollments))
	for _, e := range m.enrollments {
		u, ok := m.users[e.StudentID]
		if !ok {
			continue
		}
		year, branch, division := e.Year, e.Branch, e.Division
		out = append(out, models.StudentSummary{ID: u.ID, Name: u.Name, Email: u.Email, Year: &year, Branch: &branch, Division: &division})
	}
	return out, nil
}

type memAudit struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (a *memAudit) Create(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, *log)
	return nil
}
