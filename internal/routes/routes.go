package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-attendance-api/internal/handler"
	"github.com/noah-isme/campus-attendance-api/internal/middleware"
	"github.com/noah-isme/campus-attendance-api/internal/models"
	"github.com/noah-isme/campus-attendance-api/pkg/cache"
)

// TokenValidator resolves bearer tokens into claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.JWTClaims, error)
}

// AuditWriter persists admin audit entries.
type AuditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// Handlers groups every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth       *handler.AuthHandler
	Session    *handler.SessionHandler
	Attendance *handler.AttendanceHandler
	Report     *handler.ReportHandler
	Admin      *handler.AdminHandler
	Settings   *handler.SettingsHandler
}

// Deps carries the middleware dependencies.
type Deps struct {
	Tokens      TokenValidator
	Audit       AuditWriter
	MarkLimiter cache.Limiter
	Logger      *zap.Logger
}

// Register mounts the API routes on the given group.
func Register(api *gin.RouterGroup, h Handlers, deps Deps) {
	teacherOrAdmin := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.GET("/me", middleware.JWT(deps.Tokens), h.Auth.Me)
		auth.PUT("/password", middleware.JWT(deps.Tokens), h.Auth.ChangePassword)
	}

	api.GET("/export/:token", h.Report.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Tokens))

	session := secured.Group("/session")
	{
		session.POST("/create", teacherOrAdmin, h.Session.Create)
		session.GET("/active/:teacherId", teacherOrAdmin, h.Session.Active)
		session.GET("/teacher/:teacherId/sessions", teacherOrAdmin, h.Session.TeacherSessions)
		session.GET("/:id/state", h.Session.State)
		session.POST("/:id/end", teacherOrAdmin, middleware.Audit(deps.Audit, deps.Logger, models.AuditActionSessionEnd, "session"), h.Session.End)
		session.GET("/:id/export", teacherOrAdmin, h.Session.Export)
		session.GET("/:id/qr", teacherOrAdmin, h.Session.QR)
	}

	attendance := secured.Group("/attendance")
	{
		attendance.POST("/mark",
			middleware.RequireRoles(models.RoleStudent),
			middleware.RateLimit(deps.MarkLimiter, deps.Logger),
			h.Attendance.Mark,
		)
		student := attendance.Group("/student/:id", middleware.RBAC(string(models.RoleAdmin), middleware.Self))
		{
			student.GET("/stats", h.Attendance.Stats)
			student.GET("/history", h.Attendance.History)
			student.GET("/active-session", h.Attendance.ActiveSession)
		}
	}

	reports := secured.Group("/reports", teacherOrAdmin)
	{
		reports.GET("/teacher/:teacherId/stats", h.Report.TeacherStats)
		reports.POST("/exports", h.Report.CreateExport)
		reports.GET("/exports/:id", h.Report.ExportStatus)
	}

	admin := secured.Group("/admin", adminOnly)
	{
		admin.POST("/teachers", middleware.Audit(deps.Audit, deps.Logger, models.AuditActionUserCreate, "teacher"), h.Admin.CreateTeacher)
		admin.GET("/teachers", h.Admin.ListTeachers)
		admin.POST("/students", middleware.Audit(deps.Audit, deps.Logger, models.AuditActionUserCreate, "student"), h.Admin.CreateStudent)
		admin.GET("/students", h.Admin.ListStudents)
		admin.POST("/students/:id/enrollments", middleware.Audit(deps.Audit, deps.Logger, models.AuditActionEnrollmentAdd, "enrollment"), h.Admin.AddEnrollment)
		admin.DELETE("/users/:id/:role", middleware.Audit(deps.Audit, deps.Logger, models.AuditActionUserDelete, "user"), h.Admin.DeleteUser)
	}

	settings := secured.Group("/settings")
	{
		settings.POST("/support", h.Settings.SubmitSupport)
		self := middleware.RBAC(string(models.RoleAdmin), middleware.Self)
		settings.GET("/:id", self, h.Settings.Get)
		settings.PUT("/:id", self, h.Settings.Update)
	}
}
