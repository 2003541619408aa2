package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-attendance-api/internal/models"
	"github.com/noah-isme/campus-attendance-api/internal/repository"
	"github.com/noah-isme/campus-attendance-api/pkg/database"
	appErrors "github.com/noah-isme/campus-attendance-api/pkg/errors"
	"github.com/noah-isme/campus-attendance-api/pkg/geo"
)

// Close triggers, used as the metrics label.
const (
	closeReasonManual  = "manual"
	closeReasonExpired = "expired"
	closeReasonSweep   = "sweep"
)

type sessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindActiveByTeacher(ctx context.Context, teacherID string) (*models.Session, error)
	Close(ctx context.Context, id string, endedAt time.Time) (bool, error)
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherSessionSummary, error)
}

type sessionAttendanceStore interface {
	CountForSession(ctx context.Context, sessionID string) (int, error)
	StudentIDsForSession(ctx context.Context, sessionID string) ([]string, error)
	InsertAbsent(ctx context.Context, sessionID, studentID string) (bool, error)
}

type classRoster interface {
	StudentIDsForClass(ctx context.Context, class models.ClassCoordinate) ([]string, error)
}

type sessionExporter interface {
	ExportSession(ctx context.Context, session *models.Session, format models.ReportFormat) (*FileExport, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// SessionConfig holds session defaults.
type SessionConfig struct {
	DefaultDuration time.Duration
	DefaultRadius   float64
	CodeAttempts    int
}

// SessionService manages the session lifecycle: open, poll, close and the
// absence back-fill that runs exactly once per session.
type SessionService struct {
	sessions   sessionStore
	attendance sessionAttendanceStore
	roster     classRoster
	exporter   sessionExporter
	cache      cacheInvalidator
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        SessionConfig

	now   func() time.Time
	codes func() string
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions sessionStore, attendance sessionAttendanceStore, roster classRoster, exporter sessionExporter, cache cacheInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg SessionConfig) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 5 * time.Minute
	}
	if cfg.DefaultRadius <= 0 {
		cfg.DefaultRadius = 50
	}
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = 5
	}
	return &SessionService{
		sessions:   sessions,
		attendance: attendance,
		roster:     roster,
		exporter:   exporter,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		codes:      randomCode,
	}
}

// randomCode returns four digits uniform in [1000, 9999].
func randomCode() string {
	return fmt.Sprintf("%04d", 1000+rand.Intn(9000))
}

// Open creates a new ACTIVE session for the teacher.
func (s *SessionService) Open(ctx context.Context, req models.OpenSessionRequest) (*models.OpenSessionResponse, error) {
	if err := s.validateOpen(req); err != nil {
		return nil, err
	}

	now := s.now()
	existing, err := s.sessions.FindActiveByTeacher(ctx, req.TeacherID)
	switch {
	case err == nil && existing.Expired(now):
		if _, err := s.closeSession(ctx, existing, closeReasonExpired); err != nil {
			return nil, err
		}
	case err == nil:
		return nil, activeSessionConflict(existing.ID)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active session")
	}

	duration := s.cfg.DefaultDuration
	if req.DurationMinutes != nil {
		duration = time.Duration(*req.DurationMinutes) * time.Minute
	}
	radius := s.cfg.DefaultRadius
	if req.Radius != nil {
		radius = *req.Radius
	}
	session := &models.Session{
		TeacherID: req.TeacherID,
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
		Lat:       *req.Lat,
		Lng:       *req.Lng,
		Radius:    radius,
	}
	if req.Metadata != nil {
		session.ClassMetadata = *req.Metadata
	}

	for attempt := 1; attempt <= s.cfg.CodeAttempts; attempt++ {
		session.Code = s.codes()
		err := s.sessions.Create(ctx, session)
		if err == nil {
			s.metrics.SessionOpened()
			s.logger.Info("session opened",
				zap.String("session_id", session.ID),
				zap.String("teacher_id", session.TeacherID),
				zap.Time("expires_at", session.ExpiresAt),
			)
			return &models.OpenSessionResponse{SessionID: session.ID, Code: session.Code, ExpiresAt: session.ExpiresAt}, nil
		}
		switch {
		case database.IsUniqueViolation(err, repository.ConstraintActiveCode):
			s.logger.Debug("session code collision", zap.Int("attempt", attempt))
			continue
		case database.IsUniqueViolation(err, repository.ConstraintOneActivePerTeacher):
			winner, findErr := s.sessions.FindActiveByTeacher(ctx, req.TeacherID)
			if findErr != nil {
				return nil, appErrors.Clone(appErrors.ErrActiveSessionExists, "")
			}
			return nil, activeSessionConflict(winner.ID)
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
		}
	}
	return nil, appErrors.Clone(appErrors.ErrInternal, "failed to allocate a unique session code")
}

func (s *SessionService) validateOpen(req models.OpenSessionRequest) error {
	if req.TeacherID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "teacherId is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "lat and lng are required")
	}
	if err := (geo.Point{Lat: *req.Lat, Lng: *req.Lng}).Validate(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return nil
}

func activeSessionConflict(sessionID string) *appErrors.Error {
	return appErrors.WithDetails(appErrors.ErrActiveSessionExists, "sessionId", sessionID)
}

// State returns the polling view of a session, closing it first when its window has elapsed.
// MarkedCount covers every record, so a closed session includes its backfilled absences.
func (s *SessionService) State(ctx context.Context, id string) (*models.SessionState, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	remaining := int(math.Floor(session.ExpiresAt.Sub(s.now()).Seconds()))
	if remaining < 0 {
		remaining = 0
	}
	if session.IsActive() && remaining == 0 {
		if _, err := s.closeSession(ctx, session, closeReasonExpired); err != nil {
			return nil, err
		}
		session.Status = models.SessionStatusClosed
		session.Active = false
	}

	marked, err := s.attendance.CountForSession(ctx, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attendance")
	}

	return &models.SessionState{
		SessionID:        session.ID,
		TeacherID:        session.TeacherID,
		Code:             session.Code,
		Status:           session.Status,
		Active:           session.IsActive(),
		RemainingSeconds: remaining,
		ExpiresAt:        session.ExpiresAt,
		MarkedCount:      marked,
		Metadata:         session.ClassMetadata,
	}, nil
}

// Close closes the session if it is still ACTIVE. It is idempotent and reports
// whether this call performed the transition.
func (s *SessionService) Close(ctx context.Context, id string) (bool, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	if !session.IsActive() {
		return false, nil
	}
	return s.closeSession(ctx, session, closeReasonExpired)
}

// End closes a session on the teacher's request.
func (s *SessionService) End(ctx context.Context, id, actorID string, role models.UserRole) (*models.EndSessionResponse, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == models.RoleTeacher && session.TeacherID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another teacher")
	}
	if !session.IsActive() {
		return nil, appErrors.Clone(appErrors.ErrAlreadyClosed, "")
	}
	closed, err := s.closeSession(ctx, session, closeReasonManual)
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, appErrors.Clone(appErrors.ErrAlreadyClosed, "")
	}
	return &models.EndSessionResponse{Message: "Session ended successfully", SessionID: session.ID}, nil
}

// ActiveForTeacher returns the teacher's open session so a reloaded client can resume it.
func (s *SessionService) ActiveForTeacher(ctx context.Context, teacherID string) (*models.Session, error) {
	session, err := s.sessions.FindActiveByTeacher(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "No active session found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active session")
	}
	if session.Expired(s.now()) {
		if _, err := s.closeSession(ctx, session, closeReasonExpired); err != nil {
			return nil, err
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "No active session found")
	}
	return session, nil
}

// TeacherSessions lists the teacher's sessions with attendance tallies.
func (s *SessionService) TeacherSessions(ctx context.Context, teacherID string) ([]models.TeacherSessionSummary, error) {
	sessions, err := s.sessions.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// QRCode renders the session code as a PNG for projecting in class.
func (s *SessionService) QRCode(ctx context.Context, id string, size int) ([]byte, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() || session.Expired(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrAlreadyClosed, "")
	}
	if size <= 0 || size > 1024 {
		size = 256
	}
	png, err := qrcode.Encode(session.Code, qrcode.Medium, size)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render qr code")
	}
	return png, nil
}

// Export renders the attendance sheet of one session.
func (s *SessionService) Export(ctx context.Context, id string, format models.ReportFormat) (*FileExport, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = models.ReportFormatCSV
	}
	if format != models.ReportFormatCSV && format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	file, err := s.exporter.ExportSession(ctx, session, format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to export attendance")
	}
	return file, nil
}

// SweepExpired closes every ACTIVE session whose window has elapsed and
// returns how many this call closed.
func (s *SessionService) SweepExpired(ctx context.Context, batch int) (int, error) {
	ids, err := s.sessions.ListExpiredActive(ctx, s.now(), batch)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, id := range ids {
		session, err := s.sessions.FindByID(ctx, id)
		if err != nil {
			s.logger.Warn("sweep load session failed", zap.String("session_id", id), zap.Error(err))
			continue
		}
		won, err := s.closeSession(ctx, session, closeReasonSweep)
		if err != nil {
			s.logger.Warn("sweep close session failed", zap.String("session_id", id), zap.Error(err))
			continue
		}
		if won {
			closed++
		}
	}
	return closed, nil
}

func (s *SessionService) load(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// closeSession performs the ACTIVE to CLOSED transition. Only the caller whose
// update flipped the row runs the back-fill.
func (s *SessionService) closeSession(ctx context.Context, session *models.Session, reason string) (bool, error) {
	won, err := s.sessions.Close(ctx, session.ID, s.now())
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close session")
	}
	if !won {
		return false, nil
	}

	s.metrics.SessionClosed(reason)
	s.logger.Info("session closed", zap.String("session_id", session.ID), zap.String("reason", reason))

	bgCtx := context.WithoutCancel(ctx)
	s.backfillAbsences(bgCtx, session)
	if s.cache != nil {
		_ = s.cache.Invalidate(bgCtx, teacherStatsCacheKey(session.TeacherID))
	}
	return true, nil
}

// backfillAbsences writes an absent row for every enrolled student of the
// session's class who has no row yet. Per-student failures are logged and skipped.
func (s *SessionService) backfillAbsences(ctx context.Context, session *models.Session) int {
	class, ok := session.Coordinate()
	if !ok {
		s.logger.Warn("skipping absence backfill, session has no class coordinate", zap.String("session_id", session.ID))
		return 0
	}

	start := time.Now()
	enrolled, err := s.roster.StudentIDsForClass(ctx, class)
	if err != nil {
		s.logger.Error("absence backfill roster failed", zap.String("session_id", session.ID), zap.Error(err))
		return 0
	}
	marked, err := s.attendance.StudentIDsForSession(ctx, session.ID)
	if err != nil {
		s.logger.Error("absence backfill attendees failed", zap.String("session_id", session.ID), zap.Error(err))
		return 0
	}
	seen := make(map[string]struct{}, len(marked))
	for _, id := range marked {
		seen[id] = struct{}{}
	}

	inserted := 0
	for _, studentID := range enrolled {
		if _, ok := seen[studentID]; ok {
			continue
		}
		created, err := s.attendance.InsertAbsent(ctx, session.ID, studentID)
		if err != nil {
			s.logger.Warn("absence insert failed",
				zap.String("session_id", session.ID),
				zap.String("student_id", studentID),
				zap.Error(err),
			)
			continue
		}
		if created {
			inserted++
		}
	}

	s.metrics.ObserveBackfill(inserted, time.Since(start))
	s.logger.Info("absences back-filled",
		zap.String("session_id", session.ID),
		zap.String("class", class.String()),
		zap.Int("inserted", inserted),
	)
	return inserted
}

func teacherStatsCacheKey(teacherID string) string {
	return "reports:teacher:" + teacherID + ":stats"
}
