package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-attendance-api/internal/models"
	"github.com/noah-isme/campus-attendance-api/pkg/response"
)

type settingsService interface {
	Get(ctx context.Context, userID string) (*models.Settings, error)
	Update(ctx context.Context, userID string, req models.UpdateSettingsRequest) (*models.Settings, error)
	SubmitSupport(ctx context.Context, userID string, req models.CreateSupportRequest) (*models.SupportRequest, error)
}

// SettingsHandler serves user preferences and support requests.
type SettingsHandler struct {
	settings settingsService
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(settings settingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// Get godoc
// @Summary Get settings
// @Description Returns defaults when the user has not saved any.
// @Tags Settings
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} models.Settings
// @Security BearerAuth
// @Router /settings/{id} [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings)
}

// Update godoc
// @Summary Update settings
// @Tags Settings
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body models.UpdateSettingsRequest true "Changed fields"
// @Success 200 {object} models.Settings
// @Failure 400 {object} errors.Error
// @Security BearerAuth
// @Router /settings/{id} [put]
func (h *SettingsHandler) Update(c *gin.Context) {
	var req models.UpdateSettingsRequest
	if !bindJSON(c, &req, "invalid settings payload") {
		return
	}
	settings, err := h.settings.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings)
}

// SubmitSupport godoc
// @Summary File a support request
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body models.CreateSupportRequest true "Support request"
// @Success 201 {object} models.SupportRequest
// @Failure 400 {object} errors.Error
// @Security BearerAuth
// @Router /settings/support [post]
func (h *SettingsHandler) SubmitSupport(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.CreateSupportRequest
	if !bindJSON(c, &req, "invalid support payload") {
		return
	}
	support, err := h.settings.SubmitSupport(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, support)
}
