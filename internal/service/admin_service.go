package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-attendance-api/internal/models"
	"github.com/noah-isme/campus-attendance-api/internal/repository"
	"github.com/noah-isme/campus-attendance-api/pkg/database"
	appErrors "github.com/noah-isme/campus-attendance-api/pkg/errors"
)

type adminUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	DeleteWithRole(ctx context.Context, id string, role models.UserRole) (bool, error)
}

type teacherStore interface {
	Create(ctx context.Context, user *models.User, profile *models.TeacherProfile) error
	List(ctx context.Context) ([]models.TeacherSummary, error)
}

type studentStore interface {
	CreateStudent(ctx context.Context, user *models.User, enrollment *models.Enrollment) error
	Create(ctx context.Context, enrollment *models.Enrollment) error
	ListStudents(ctx context.Context) ([]models.StudentSummary, error)
}

// AdminService provisions and removes teacher and student accounts.
type AdminService struct {
	users     adminUserStore
	teachers  teacherStore
	students  studentStore
	validator *validator.Validate
	logger    *zap.Logger
	hashCost  int
}

// NewAdminService constructs an AdminService.
func NewAdminService(users adminUserStore, teachers teacherStore, students studentStore, validate *validator.Validate, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AdminService{
		users:     users,
		teachers:  teachers,
		students:  students,
		validator: validate,
		logger:    logger,
		hashCost:  bcrypt.DefaultCost,
	}
}

// CreateTeacher provisions a teacher account with its branch profile.
func (s *AdminService) CreateTeacher(ctx context.Context, req models.CreateTeacherRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "All fields are required")
	}
	user, err := s.newUser(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	if err := s.teachers.Create(ctx, user, &models.TeacherProfile{Branch: req.Branch}); err != nil {
		return nil, s.translateCreateError(err, "failed to create teacher")
	}
	s.logger.Info("teacher created", zap.String("user_id", user.ID))
	info := userInfo(user)
	return &info, nil
}

// CreateStudent provisions a student account and its first enrollment.
func (s *AdminService) CreateStudent(ctx context.Context, req models.CreateStudentRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "All fields are required")
	}
	user, err := s.newUser(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	enrollment := &models.Enrollment{ClassCoordinate: models.ClassCoordinate{Year: req.Year, Branch: req.Branch, Division: req.Division}}
	if err := s.students.CreateStudent(ctx, user, enrollment); err != nil {
		return nil, s.translateCreateError(err, "failed to create student")
	}
	s.logger.Info("student created", zap.String("user_id", user.ID), zap.String("class", enrollment.String()))
	info := userInfo(user)
	return &info, nil
}

// AddEnrollment enrolls an existing student in another class.
func (s *AdminService) AddEnrollment(ctx context.Context, studentID string, class models.ClassCoordinate) (*models.Enrollment, error) {
	if err := s.validator.Struct(class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "year, branch and division are required")
	}
	user, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if user.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found")
	}

	enrollment := &models.Enrollment{StudentID: studentID, ClassCoordinate: class}
	if err := s.students.Create(ctx, enrollment); err != nil {
		if database.IsUniqueViolation(err, repository.ConstraintEnrollmentStudentClass) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "Student already enrolled in this class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return enrollment, nil
}

// ListTeachers returns every teacher account.
func (s *AdminService) ListTeachers(ctx context.Context) ([]models.TeacherSummary, error) {
	teachers, err := s.teachers.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, nil
}

// ListStudents returns one row per student enrollment.
func (s *AdminService) ListStudents(ctx context.Context) ([]models.StudentSummary, error) {
	students, err := s.students.ListStudents(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// DeleteUser removes a teacher or student together with everything that references it.
func (s *AdminService) DeleteUser(ctx context.Context, id string, role models.UserRole) error {
	if role != models.RoleTeacher && role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrValidation, "role must be teacher or student")
	}
	deleted, err := s.users.DeleteWithRole(ctx, id, role)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "User not found")
	}
	s.logger.Info("user deleted", zap.String("user_id", id), zap.String("role", string(role)))
	return nil
}

func (s *AdminService) newUser(ctx context.Context, name, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Email already registered")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	return &models.User{Name: strings.TrimSpace(name), Email: email, PasswordHash: string(hash)}, nil
}

// A concurrent create can pass the EmailExists check; the unique index still rejects it.
func (s *AdminService) translateCreateError(err error, message string) error {
	if database.IsUniqueViolation(err, repository.ConstraintUserEmail) {
		return appErrors.Clone(appErrors.ErrValidation, "Email already registered")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
