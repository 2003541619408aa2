package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-attendance-api/internal/models"
	"github.com/noah-isme/campus-attendance-api/pkg/response"
)

type adminService interface {
	CreateTeacher(ctx context.Context, req models.CreateTeacherRequest) (*models.UserInfo, error)
	CreateStudent(ctx context.Context, req models.CreateStudentRequest) (*models.UserInfo, error)
	AddEnrollment(ctx context.Context, studentID string, class models.ClassCoordinate) (*models.Enrollment, error)
	ListTeachers(ctx context.Context) ([]models.TeacherSummary, error)
	ListStudents(ctx context.Context) ([]models.StudentSummary, error)
	DeleteUser(ctx context.Context, id string, role models.UserRole) error
}

// AdminHandler manages teacher and student accounts.
type AdminHandler struct {
	admin adminService
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(admin adminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// CreateTeacher godoc
// @Summary Create teacher
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body models.CreateTeacherRequest true "Teacher payload"
// @Success 201 {object} models.UserInfo
// @Failure 400 {object} errors.Error
// @Failure 409 {object} errors.Error
// @Security BearerAuth
// @Router /admin/teachers [post]
func (h *AdminHandler) CreateTeacher(c *gin.Context) {
	var req models.CreateTeacherRequest
	if !bindJSON(c, &req, "invalid teacher payload") {
		return
	}
	user, err := h.admin.CreateTeacher(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// CreateStudent godoc
// @Summary Create student with a first enrollment
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body models.CreateStudentRequest true "Student payload"
// @Success 201 {object} models.UserInfo
// @Failure 400 {object} errors.Error
// @Failure 409 {object} errors.Error
// @Security BearerAuth
// @Router /admin/students [post]
func (h *AdminHandler) CreateStudent(c *gin.Context) {
	var req models.CreateStudentRequest
	if !bindJSON(c, &req, "invalid student payload") {
		return
	}
	user, err := h.admin.CreateStudent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// AddEnrollment godoc
// @Summary Enroll a student in another class
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body models.ClassCoordinate true "Class"
// @Success 201 {object} models.Enrollment
// @Failure 404 {object} errors.Error
// @Failure 409 {object} errors.Error
// @Security BearerAuth
// @Router /admin/students/{id}/enrollments [post]
func (h *AdminHandler) AddEnrollment(c *gin.Context) {
	var class models.ClassCoordinate
	if !bindJSON(c, &class, "invalid enrollment payload") {
		return
	}
	enrollment, err := h.admin.AddEnrollment(c.Request.Context(), c.Param("id"), class)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// ListTeachers godoc
// @Summary List teachers
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Page
// @Security BearerAuth
// @Router /admin/teachers [get]
func (h *AdminHandler) ListTeachers(c *gin.Context) {
	teachers, err := h.admin.ListTeachers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, teachers, nil)
}

// ListStudents godoc
// @Summary List students, one row per enrollment
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Page
// @Security BearerAuth
// @Router /admin/students [get]
func (h *AdminHandler) ListStudents(c *gin.Context) {
	students, err := h.admin.ListStudents(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, students, nil)
}

// DeleteUser godoc
// @Summary Delete a teacher or student
// @Description Removes the account with its sessions, attendance and enrollments.
// @Tags Admin
// @Param id path string true "User ID"
// @Param role path string true "teacher or student"
// @Success 204
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Security BearerAuth
// @Router /admin/users/{id}/{role} [delete]
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	if err := h.admin.DeleteUser(c.Request.Context(), c.Param("id"), models.UserRole(c.Param("role"))); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
