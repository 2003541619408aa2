package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-attendance-api/internal/models"
	appErrors "github.com/noah-isme/campus-attendance-api/pkg/errors"
)

type settingsStore interface {
	Get(ctx context.Context, userID string) (*models.Settings, error)
	Upsert(ctx context.Context, settings *models.Settings) error
	CreateSupportRequest(ctx context.Context, req *models.SupportRequest) error
}

// SettingsService manages student preferences and support requests.
type SettingsService struct {
	repo      settingsStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(repo settingsStore, validate *validator.Validate, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SettingsService{repo: repo, validator: validate, logger: logger}
}

// Get returns stored settings or the defaults when none were saved.
func (s *SettingsService) Get(ctx context.Context, userID string) (*models.Settings, error) {
	settings, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			defaults := models.DefaultSettings(userID)
			return &defaults, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}
	return settings, nil
}

// Update applies a partial update on top of the current settings.
func (s *SettingsService) Update(ctx context.Context, userID string, req models.UpdateSettingsRequest) (*models.Settings, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}
	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Theme != nil {
		current.Theme = *req.Theme
	}
	if req.TextSize != nil {
		current.TextSize = *req.TextSize
	}
	if req.NotificationsStart != nil {
		current.NotificationsStart = *req.NotificationsStart
	}
	if req.NotificationsEnd != nil {
		current.NotificationsEnd = *req.NotificationsEnd
	}
	if req.ShowProfilePhoto != nil {
		current.ShowProfilePhoto = *req.ShowProfilePhoto
	}
	if req.AttendanceThreshold != nil {
		current.AttendanceThreshold = *req.AttendanceThreshold
	}

	if err := s.repo.Upsert(ctx, current); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save settings")
	}
	return current, nil
}

// SubmitSupport files a support request for the user.
func (s *SettingsService) SubmitSupport(ctx context.Context, userID string, req models.CreateSupportRequest) (*models.SupportRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "type and description are required")
	}
	support := &models.SupportRequest{UserID: userID, Type: req.Type, Description: req.Description}
	if err := s.repo.CreateSupportRequest(ctx, support); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit support request")
	}
	s.logger.Info("support request filed", zap.String("request_id", support.ID), zap.String("type", support.Type))
	return support, nil
}
