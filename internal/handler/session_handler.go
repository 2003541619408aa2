package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-attendance-api/internal/models"
	"github.com/noah-isme/campus-attendance-api/internal/service"
	"github.com/noah-isme/campus-attendance-api/pkg/response"
)

type sessionService interface {
	Open(ctx context.Context, req models.OpenSessionRequest) (*models.OpenSessionResponse, error)
	State(ctx context.Context, id string) (*models.SessionState, error)
	End(ctx context.Context, id, actorID string, role models.UserRole) (*models.EndSessionResponse, error)
	Export(ctx context.Context, id string, format models.ReportFormat) (*service.FileExport, error)
	QRCode(ctx context.Context, id string, size int) ([]byte, error)
	ActiveForTeacher(ctx context.Context, teacherID string) (*models.Session, error)
	TeacherSessions(ctx context.Context, teacherID string) ([]models.TeacherSessionSummary, error)
}

// SessionHandler exposes the teacher side of attendance sessions.
type SessionHandler struct {
	sessions sessionService
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(sessions sessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Create godoc
// @Summary Open an attendance session
// @Description Opens a geofenced session and issues a 4 digit code. A teacher may hold one active session.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body models.OpenSessionRequest true "Session payload"
// @Success 201 {object} models.OpenSessionResponse
// @Failure 400 {object} errors.Error
// @Failure 403 {object} errors.Error
// @Failure 409 {object} errors.Error
// @Security BearerAuth
// @Router /session/create [post]
func (h *SessionHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.OpenSessionRequest
	if !bindJSON(c, &req, "invalid session payload") {
		return
	}
	teacherID, err := actingAs(claims, models.RoleTeacher, req.TeacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	req.TeacherID = teacherID

	res, err := h.sessions.Open(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// State godoc
// @Summary Poll session state
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionState
// @Failure 404 {object} errors.Error
// @Security BearerAuth
// @Router /session/{id}/state [get]
func (h *SessionHandler) State(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	state, err := h.sessions.State(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !canSeeCode(claims, state.TeacherID) {
		state.Code = ""
	}
	response.JSON(c, http.StatusOK, state)
}

// canSeeCode reports whether the caller may read a session's code: only the
// owning teacher and admins can.
func canSeeCode(claims *models.JWTClaims, teacherID string) bool {
	switch claims.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTeacher:
		return claims.UserID == teacherID
	default:
		return false
	}
}

// End godoc
// @Summary End a session
// @Description Closes the session and marks every enrolled student without a record absent.
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.EndSessionResponse
// @Failure 400 {object} errors.Error
// @Failure 403 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Security BearerAuth
// @Router /session/{id}/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	res, err := h.sessions.End(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res)
}

// Export godoc
// @Summary Download the session attendance sheet
// @Tags Sessions
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 404 {object} errors.Error
// @Security BearerAuth
// @Router /session/{id}/export [get]
func (h *SessionHandler) Export(c *gin.Context) {
	file, err := h.sessions.Export(c.Request.Context(), c.Param("id"), models.ReportFormat(c.Query("format")))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// QR godoc
// @Summary Session code as a QR image
// @Tags Sessions
// @Produce image/png
// @Param id path string true "Session ID"
// @Param size query int false "Edge length in pixels (default 256)"
// @Success 200 {file} file
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Security BearerAuth
// @Router /session/{id}/qr [get]
func (h *SessionHandler) QR(c *gin.Context) {
	size, _ := strconv.Atoi(c.Query("size"))
	png, err := h.sessions.QRCode(c.Request.Context(), c.Param("id"), size)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// Active godoc
// @Summary Resume the teacher's active session
// @Tags Sessions
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Success 200 {object} models.Session
// @Failure 403 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Security BearerAuth
// @Router /session/active/{teacherId} [get]
func (h *SessionHandler) Active(c *gin.Context) {
	teacherID, ok := h.teacherParam(c)
	if !ok {
		return
	}
	session, err := h.sessions.ActiveForTeacher(c.Request.Context(), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session)
}

// TeacherSessions godoc
// @Summary List a teacher's sessions with attendance counts
// @Tags Sessions
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Success 200 {object} response.Page
// @Failure 403 {object} errors.Error
// @Security BearerAuth
// @Router /session/teacher/{teacherId}/sessions [get]
func (h *SessionHandler) TeacherSessions(c *gin.Context) {
	teacherID, ok := h.teacherParam(c)
	if !ok {
		return
	}
	sessions, err := h.sessions.TeacherSessions(c.Request.Context(), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, sessions, nil)
}

func (h *SessionHandler) teacherParam(c *gin.Context) (string, bool) {
	claims := requireClaims(c)
	if claims == nil {
		return "", false
	}
	teacherID, err := actingAs(claims, models.RoleTeacher, c.Param("teacherId"))
	if err != nil {
		response.Error(c, err)
		return "", false
	}
	return teacherID, true
}
