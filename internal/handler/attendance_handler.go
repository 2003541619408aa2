package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-attendance-api/internal/models"
	"github.com/noah-isme/campus-attendance-api/pkg/response"
)

type attendanceService interface {
	Mark(ctx context.Context, req models.MarkAttendanceRequest) (*models.MarkAttendanceResponse, error)
	Stats(ctx context.Context, studentID string) (*models.StudentStats, error)
	History(ctx context.Context, studentID string, limit int) ([]models.StudentHistoryEntry, error)
	ActiveSession(ctx context.Context, studentID string) (*models.StudentActiveSession, error)
}

// AttendanceHandler exposes the student side of attendance.
type AttendanceHandler struct {
	attendance attendanceService
}

// NewAttendanceHandler constructs an AttendanceHandler.
func NewAttendanceHandler(attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// Mark godoc
// @Summary Mark attendance with a session code
// @Description Checks the code, the session window, the geofence and the class enrollment, in that order.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body models.MarkAttendanceRequest true "Mark payload"
// @Success 200 {object} models.MarkAttendanceResponse
// @Failure 400 {object} errors.Error
// @Failure 403 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Failure 429 {object} errors.Error
// @Security BearerAuth
// @Router /attendance/mark [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.MarkAttendanceRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	studentID, err := actingAs(claims, models.RoleStudent, req.StudentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	req.StudentID = studentID

	res, err := h.attendance.Mark(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res)
}

// Stats godoc
// @Summary Student attendance summary
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} models.StudentStats
// @Security BearerAuth
// @Router /attendance/student/{id}/stats [get]
func (h *AttendanceHandler) Stats(c *gin.Context) {
	stats, err := h.attendance.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats)
}

// History godoc
// @Summary Student attendance history
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param limit query int false "Maximum rows (default 100, max 500)"
// @Success 200 {object} response.Page
// @Security BearerAuth
// @Router /attendance/student/{id}/history [get]
func (h *AttendanceHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.attendance.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, entries, nil)
}

// ActiveSession godoc
// @Summary Session currently open for the student's class
// @Description The session code is not included.
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} models.StudentActiveSession
// @Failure 404 {object} errors.Error
// @Security BearerAuth
// @Router /attendance/student/{id}/active-session [get]
func (h *AttendanceHandler) ActiveSession(c *gin.Context) {
	active, err := h.attendance.ActiveSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, active)
}
