package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-attendance-api/internal/models"
	"github.com/noah-isme/campus-attendance-api/pkg/cache"
	appErrors "github.com/noah-isme/campus-attendance-api/pkg/errors"
	"github.com/noah-isme/campus-attendance-api/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator struct {
	tokens map[string]*models.JWTClaims
}

func (s stubValidator) ValidateToken(_ context.Context, token string) (*models.JWTClaims, error) {
	claims, ok := s.tokens[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

var validator = stubValidator{tokens: map[string]*models.JWTClaims{
	"teacher-token": {UserID: "teacher-1", Role: models.RoleTeacher},
	"student-token": {UserID: "student-1", Role: models.RoleStudent},
	"admin-token":   {UserID: "admin-1", Role: models.RoleAdmin},
}}

func doRequest(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	code, _ := body["code"].(string)
	return code
}

func TestJWTRejectsMissingAndInvalidTokens(t *testing.T) {
	r := gin.New()
	r.GET("/me", JWT(validator), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": Claims(c).UserID, "logged": c.GetString(logger.UserIDKey)})
	})

	rec := doRequest(r, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	rec = doRequest(r, http.MethodGet, "/me", "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(r, http.MethodGet, "/me", "teacher-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"teacher-1","logged":"teacher-1"}`, rec.Body.String())
}

func TestRBACRolesAndSelf(t *testing.T) {
	r := gin.New()
	r.GET("/admin", JWT(validator), RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/student/:id/stats", JWT(validator), RBAC(string(models.RoleAdmin), Self), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/admin", "admin-token").Code)
	rec := doRequest(r, http.MethodGet, "/admin", "teacher-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/student/student-1/stats", "student-token").Code)
	assert.Equal(t, http.StatusForbidden, doRequest(r, http.MethodGet, "/student/student-2/stats", "student-token").Code)
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/student/student-2/stats", "admin-token").Code)
}

func TestRBACWithoutClaims(t *testing.T) {
	r := gin.New()
	r.GET("/x", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodGet, "/x", "").Code)
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []models.AuditLog
	err  error
}

func (a *recordingAudit) Create(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, *log)
	return a.err
}

func TestAuditRecordsSuccessfulRequestsOnly(t *testing.T) {
	audit := &recordingAudit{}
	r := gin.New()
	r.DELETE("/admin/teachers/:id", JWT(validator), Audit(audit, nil, models.AuditActionUserDelete, "users"), func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusOK)
	})

	doRequest(r, http.MethodDelete, "/admin/teachers/missing", "admin-token")
	assert.Empty(t, audit.logs)

	doRequest(r, http.MethodDelete, "/admin/teachers/teacher-9", "admin-token")
	require.Len(t, audit.logs, 1)
	entry := audit.logs[0]
	assert.Equal(t, models.AuditActionUserDelete, entry.Action)
	assert.Equal(t, "admin-1", *entry.UserID)
	assert.Equal(t, "teacher-9", *entry.ResourceID)
	assert.Contains(t, string(entry.NewValues), `"path":"/admin/teachers/:id"`)
}

func TestAuditFailureDoesNotAffectResponse(t *testing.T) {
	audit := &recordingAudit{err: errors.New("db down")}
	r := gin.New()
	r.POST("/x", Audit(audit, nil, "X", "x"), func(c *gin.Context) { c.Status(http.StatusCreated) })
	assert.Equal(t, http.StatusCreated, doRequest(r, http.MethodPost, "/x", "").Code)
}

type recordingObserver struct {
	paths    []string
	statuses []int
}

func (o *recordingObserver) ObserveHTTPRequest(_, path string, status int, _ time.Duration) {
	o.paths = append(o.paths, path)
	o.statuses = append(o.statuses, status)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	observer := &recordingObserver{}
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/session/:id/state", func(c *gin.Context) { c.Status(http.StatusOK) })

	doRequest(r, http.MethodGet, "/session/abc/state", "")
	doRequest(r, http.MethodGet, "/nowhere", "")

	assert.Equal(t, []string{"/session/:id/state", "unmatched"}, observer.paths)
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, observer.statuses)
}

func TestSetCacheHitHeader(t *testing.T) {
	r := gin.New()
	r.GET("/stats", func(c *gin.Context) {
		SetCacheHit(c, c.Query("warm") == "1")
		hit, recorded := CacheHit(c)
		c.JSON(http.StatusOK, gin.H{"hit": hit, "recorded": recorded})
	})

	rec := doRequest(r, http.MethodGet, "/stats?warm=1", "")
	assert.Equal(t, "HIT", rec.Header().Get(CacheHeader))
	assert.JSONEq(t, `{"hit":true,"recorded":true}`, rec.Body.String())

	rec = doRequest(r, http.MethodGet, "/stats", "")
	assert.Equal(t, "MISS", rec.Header().Get(CacheHeader))
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis unreachable")
}

func TestRateLimitPerCaller(t *testing.T) {
	r := gin.New()
	r.POST("/attendance/mark", JWT(validator), RateLimit(cache.NewTokenBucket(2, time.Hour), nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/attendance/mark", "student-token").Code)
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/attendance/mark", "student-token").Code)
	rec := doRequest(r, http.MethodPost, "/attendance/mark", "student-token")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, rec))

	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/attendance/mark", "teacher-token").Code)
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := gin.New()
	r.POST("/x", RateLimit(brokenLimiter{}, nil), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/x", "").Code)
}
