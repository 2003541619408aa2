package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-attendance-api/internal/middleware"
	"github.com/noah-isme/campus-attendance-api/internal/models"
	"github.com/noah-isme/campus-attendance-api/internal/service"
	appErrors "github.com/noah-isme/campus-attendance-api/pkg/errors"
)

type reportServiceMock struct {
	stats       *models.TeacherStats
	hit         bool
	statsFor    string
	createReq   *models.RegisterExportRequest
	createActor string
	statusResp  *models.ReportJobStatus
	statusErr   error
	download    *service.ReportDownload
	downloadErr error
}

func (m *reportServiceMock) TeacherStats(ctx context.Context, teacherID string) (*models.TeacherStats, bool, error) {
	m.statsFor = teacherID
	return m.stats, m.hit, nil
}

func (m *reportServiceMock) CreateRegisterExport(ctx context.Context, req models.RegisterExportRequest, actorID string) (*models.ReportJobStatus, error) {
	m.createReq, m.createActor = &req, actorID
	return &models.ReportJobStatus{ID: "job-1", Status: models.ReportStatusQueued}, nil
}

func (m *reportServiceMock) JobStatus(ctx context.Context, id, actorID string, role models.UserRole) (*models.ReportJobStatus, error) {
	return m.statusResp, m.statusErr
}

func (m *reportServiceMock) ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error) {
	return m.download, m.downloadErr
}

func TestReportHandlerTeacherStatsMarksCacheHit(t *testing.T) {
	svc := &reportServiceMock{stats: &models.TeacherStats{TotalSessions: 4, AvgAttendance: 82.5}, hit: true}
	h := NewReportHandler(svc)

	c, w := newGinContext(http.MethodGet, "/reports/teacher/teacher-1/stats", nil)
	c.Params = gin.Params{{Key: "teacherId", Value: "teacher-1"}}
	withClaims(c, teacherClaims)
	h.TeacherStats(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get(middleware.CacheHeader))
	assert.Equal(t, "teacher-1", svc.statsFor)
	assert.JSONEq(t, `{"totalSessions":4,"avgAttendance":82.5}`, w.Body.String())
}

func TestReportHandlerCreateExportAccepted(t *testing.T) {
	svc := &reportServiceMock{}
	h := NewReportHandler(svc)

	c, w := newGinContext(http.MethodPost, "/reports/exports", []byte(`{"format":"pdf"}`))
	withClaims(c, teacherClaims)
	h.CreateExport(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.NotNil(t, svc.createReq)
	assert.Equal(t, "teacher-1", svc.createReq.TeacherID)
	assert.Equal(t, models.ReportFormatPDF, svc.createReq.Format)
	assert.Equal(t, "teacher-1", svc.createActor)
}

func TestReportHandlerExportStatusForbidden(t *testing.T) {
	h := NewReportHandler(&reportServiceMock{statusErr: appErrors.Clone(appErrors.ErrForbidden, "report job belongs to another user")})

	c, w := newGinContext(http.MethodGet, "/reports/exports/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	withClaims(c, teacherClaims)
	h.ExportStatus(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReportHandlerDownloadStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "register.csv")
	require.NoError(t, os.WriteFile(path, []byte("Date,Subject\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	svc := &reportServiceMock{download: &service.ReportDownload{
		File:      file,
		Filename:  "register.csv",
		Format:    models.ReportFormatCSV,
		ExpiresAt: time.Now().Add(time.Hour),
	}}
	h := NewReportHandler(svc)

	c, w := newGinContext(http.MethodGet, "/export/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}
	h.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="register.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Date,Subject\n", w.Body.String())
}

func TestReportHandlerDownloadRejectsBadToken(t *testing.T) {
	h := NewReportHandler(&reportServiceMock{downloadErr: appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")})

	c, w := newGinContext(http.MethodGet, "/export/bad", nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}
	h.Download(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
