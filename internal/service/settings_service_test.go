package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-attendance-api/internal/models"
	appErrors "github.com/noah-isme/campus-attendance-api/pkg/errors"
)

type memSettings struct {
	saved   map[string]models.Settings
	support []models.SupportRequest
}

func (m *memSettings) Get(_ context.Context, userID string) (*models.Settings, error) {
	s, ok := m.saved[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m *memSettings) Upsert(_ context.Context, s *models.Settings) error {
	m.saved[s.UserID] = *s
	return nil
}

func (m *memSettings) CreateSupportRequest(_ context.Context, req *models.SupportRequest) error {
	req.ID = "support-1"
	req.Status = models.SupportStatusOpen
	m.support = append(m.support, *req)
	return nil
}

func TestSettingsServiceDefaultsAndPartialUpdate(t *testing.T) {
	repo := &memSettings{saved: map[string]models.Settings{}}
	svc := NewSettingsService(repo, nil, zap.NewNop())

	current, err := svc.Get(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings("student-1"), *current)

	dark := "dark"
	off := false
	updated, err := svc.Update(context.Background(), "student-1", models.UpdateSettingsRequest{Theme: &dark, NotificationsEnd: &off})
	require.NoError(t, err)
	assert.Equal(t, "dark", updated.Theme)
	assert.False(t, updated.NotificationsEnd)
	assert.Equal(t, "medium", updated.TextSize)
	assert.Equal(t, 75, updated.AttendanceThreshold)

	threshold := 80
	updated, err = svc.Update(context.Background(), "student-1", models.UpdateSettingsRequest{AttendanceThreshold: &threshold})
	require.NoError(t, err)
	assert.Equal(t, "dark", updated.Theme)
	assert.Equal(t, 80, repo.saved["student-1"].AttendanceThreshold)
}

func TestSettingsServiceRejectsInvalidValues(t *testing.T) {
	svc := NewSettingsService(&memSettings{saved: map[string]models.Settings{}}, nil, zap.NewNop())
	neon := "neon"
	_, err := svc.Update(context.Background(), "student-1", models.UpdateSettingsRequest{Theme: &neon})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	over := 101
	_, err = svc.Update(context.Background(), "student-1", models.UpdateSettingsRequest{AttendanceThreshold: &over})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestSettingsServiceSubmitSupport(t *testing.T) {
	repo := &memSettings{saved: map[string]models.Settings{}}
	svc := NewSettingsService(repo, nil, zap.NewNop())

	req, err := svc.SubmitSupport(context.Background(), "student-1", models.CreateSupportRequest{Type: "bug", Description: "QR does not scan"})
	require.NoError(t, err)
	assert.Equal(t, models.SupportStatusOpen, req.Status)
	assert.Equal(t, "student-1", repo.support[0].UserID)

	_, err = svc.SubmitSupport(context.Background(), "student-1", models.CreateSupportRequest{Type: "bug"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
