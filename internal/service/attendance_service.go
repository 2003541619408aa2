package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-attendance-api/internal/models"
	"github.com/noah-isme/campus-attendance-api/internal/repository"
	"github.com/noah-isme/campus-attendance-api/pkg/database"
	appErrors "github.com/noah-isme/campus-attendance-api/pkg/errors"
	"github.com/noah-isme/campus-attendance-api/pkg/geo"
)

type markSessionStore interface {
	FindActiveByCode(ctx context.Context, code string) (*models.Session, error)
	FindActiveForStudent(ctx context.Context, studentID string, now time.Time) (*models.SessionWithTeacher, error)
}

type markAttendanceStore interface {
	InsertPresent(ctx context.Context, rec *models.AttendanceRecord, markedAt time.Time) (bool, error)
	Exists(ctx context.Context, sessionID, studentID string) (bool, error)
	StudentStats(ctx context.Context, studentID string) (models.StudentStats, error)
	StudentHistory(ctx context.Context, studentID string, limit int) ([]models.StudentHistoryEntry, error)
}

type enrollmentLookup interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
}

type sessionCloser interface {
	Close(ctx context.Context, id string) (bool, error)
}

// AttendanceService records student marks and serves their attendance views.
type AttendanceService struct {
	sessions    markSessionStore
	attendance  markAttendanceStore
	enrollments enrollmentLookup
	closer      sessionCloser
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(sessions markSessionStore, attendance markAttendanceStore, enrollments enrollmentLookup, closer sessionCloser, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AttendanceService{
		sessions:    sessions,
		attendance:  attendance,
		enrollments: enrollments,
		closer:      closer,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Mark redeems a session code for the student. Checks run in a fixed order and
// the first failure is returned; the insert is the only write on success.
func (s *AttendanceService) Mark(ctx context.Context, req models.MarkAttendanceRequest) (*models.MarkAttendanceResponse, error) {
	resp, err := s.mark(ctx, req)
	if err != nil {
		s.metrics.MarkAttempt(appErrors.FromError(err).Code)
		return nil, err
	}
	s.metrics.MarkAttempt("OK")
	return resp, nil
}

func (s *AttendanceService) mark(ctx context.Context, req models.MarkAttendanceRequest) (*models.MarkAttendanceResponse, error) {
	if req.StudentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "code must be 4 digits and lat, lng are required")
	}

	session, err := s.sessions.FindActiveByCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCode, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up session")
	}

	now := s.now()
	if session.Expired(now) {
		if _, err := s.closer.Close(ctx, session.ID); err != nil {
			s.logger.Warn("lazy close on mark failed", zap.String("session_id", session.ID), zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrSessionExpired, "")
	}

	inside, distance := geo.Within(
		geo.Point{Lat: session.Lat, Lng: session.Lng},
		geo.Point{Lat: *req.Lat, Lng: *req.Lng},
		session.Radius,
	)
	if !inside {
		meters := geo.RoundMeters(distance)
		outErr := appErrors.Clone(appErrors.ErrOutOfRange, fmt.Sprintf("You are too far from the class. Distance: %dm", meters))
		return nil, appErrors.WithDetails(outErr, "distance", meters)
	}

	if class, ok := session.Coordinate(); ok {
		enrolled, err := s.isEnrolled(ctx, req.StudentID, class)
		if err != nil {
			return nil, err
		}
		if !enrolled {
			mismatch := appErrors.Clone(appErrors.ErrEnrollmentMismatch, fmt.Sprintf("You are not enrolled in this class (%s).", class))
			return nil, appErrors.WithDetails(mismatch, "requiredClass", class)
		}
	}

	rec := &models.AttendanceRecord{SessionID: session.ID, StudentID: req.StudentID}
	inserted, err := s.attendance.InsertPresent(ctx, rec, now)
	if err != nil {
		if database.IsUniqueViolation(err, repository.ConstraintAttendanceSessionStudent) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateMark, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	if !inserted {
		return nil, appErrors.Clone(appErrors.ErrSessionExpired, "")
	}

	s.logger.Info("attendance marked",
		zap.String("session_id", session.ID),
		zap.String("student_id", req.StudentID),
		zap.Int("distance_m", geo.RoundMeters(distance)),
	)
	return &models.MarkAttendanceResponse{
		Message:   "Attendance marked successfully",
		SessionID: session.ID,
		Timestamp: now,
	}, nil
}

func (s *AttendanceService) isEnrolled(ctx context.Context, studentID string, class models.ClassCoordinate) (bool, error) {
	enrollments, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	for _, e := range enrollments {
		if e.ClassCoordinate == class {
			return true, nil
		}
	}
	return false, nil
}

// Stats summarises the student's attendance across all sessions.
func (s *AttendanceService) Stats(ctx context.Context, studentID string) (*models.StudentStats, error) {
	stats, err := s.attendance.StudentStats(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance stats")
	}
	if stats.Total > 0 {
		stats.Percentage = math.Round(float64(stats.Present)/float64(stats.Total)*1000) / 10
	}
	return &stats, nil
}

// History lists the student's attendance rows, newest first.
func (s *AttendanceService) History(ctx context.Context, studentID string, limit int) ([]models.StudentHistoryEntry, error) {
	entries, err := s.attendance.StudentHistory(ctx, studentID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	return entries, nil
}

// ActiveSession returns the open session for one of the student's classes.
// The code is never included.
func (s *AttendanceService) ActiveSession(ctx context.Context, studentID string) (*models.StudentActiveSession, error) {
	session, err := s.sessions.FindActiveForStudent(ctx, studentID, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "No active session for your class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active session")
	}
	marked, err := s.attendance.Exists(ctx, session.ID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance")
	}
	return &models.StudentActiveSession{
		SessionID:     session.ID,
		TeacherName:   session.TeacherName,
		Subject:       session.Subject,
		Topic:         session.Topic,
		Lat:           session.Lat,
		Lng:           session.Lng,
		Radius:        session.Radius,
		ExpiresAt:     session.ExpiresAt,
		AlreadyMarked: marked,
	}, nil
}
