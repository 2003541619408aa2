package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-attendance-api/internal/middleware"
	"github.com/noah-isme/campus-attendance-api/internal/models"
	"github.com/noah-isme/campus-attendance-api/internal/service"
	"github.com/noah-isme/campus-attendance-api/pkg/response"
)

type reportService interface {
	TeacherStats(ctx context.Context, teacherID string) (*models.TeacherStats, bool, error)
	CreateRegisterExport(ctx context.Context, req models.RegisterExportRequest, actorID string) (*models.ReportJobStatus, error)
	JobStatus(ctx context.Context, id, actorID string, role models.UserRole) (*models.ReportJobStatus, error)
	ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error)
}

// ReportHandler exposes teacher statistics and register exports.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// TeacherStats godoc
// @Summary Teacher attendance statistics
// @Description Session count and average attendance over closed sessions. Served from cache when available.
// @Tags Reports
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Success 200 {object} models.TeacherStats
// @Failure 403 {object} errors.Error
// @Security BearerAuth
// @Router /reports/teacher/{teacherId}/stats [get]
func (h *ReportHandler) TeacherStats(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	teacherID, err := actingAs(claims, models.RoleTeacher, c.Param("teacherId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, hit, err := h.reports.TeacherStats(c.Request.Context(), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, stats)
}

// CreateExport godoc
// @Summary Queue a register export
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body models.RegisterExportRequest true "Export request"
// @Success 202 {object} models.ReportJobStatus
// @Failure 400 {object} errors.Error
// @Failure 403 {object} errors.Error
// @Security BearerAuth
// @Router /reports/exports [post]
func (h *ReportHandler) CreateExport(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.RegisterExportRequest
	if !bindJSON(c, &req, "invalid export payload") {
		return
	}
	teacherID, err := actingAs(claims, models.RoleTeacher, req.TeacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	req.TeacherID = teacherID

	status, err := h.reports.CreateRegisterExport(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, status)
}

// ExportStatus godoc
// @Summary Register export status
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} models.ReportJobStatus
// @Failure 403 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Security BearerAuth
// @Router /reports/exports/{id} [get]
func (h *ReportHandler) ExportStatus(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	status, err := h.reports.JobStatus(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status)
}

// Download godoc
// @Summary Download a finished export
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Router /export/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	download, err := h.reports.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}

	contentType := "text/csv"
	if download.Format == models.ReportFormatPDF {
		contentType = "application/pdf"
	}
	extraHeaders := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", download.Filename),
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType, download.File, extraHeaders)
}
