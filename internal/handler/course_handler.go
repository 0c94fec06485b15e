package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/internal/service"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
	"github.com/noah-isme/sma-enrollment-sync/pkg/response"
)

type courseService interface {
	Add(ctx context.Context, req service.AddCourseRequest) (*service.CourseResult, error)
	Remove(ctx context.Context, req service.RemoveCourseRequest) (*service.CourseRemovalResult, error)
	Catalog(ctx context.Context) ([]models.Course, error)
}

// CourseHandler exposes catalog endpoints.
type CourseHandler struct {
	courses courseService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses courseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// List godoc
// @Summary List active courses
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	courses, err := h.courses.Catalog(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses)
}

// Create godoc
// @Summary Add a course on every leader
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.AddCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Success 207 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.AddCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.courses.Add(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Replicated(c, true, result.Outcome, result)
}

// Delete godoc
// @Summary Remove a course and all of its enrollments
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Param name path string true "Course name"
// @Param leader query string false "Entry leader"
// @Success 200 {object} response.Envelope
// @Success 207 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{name} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	result, err := h.courses.Remove(c.Request.Context(), service.RemoveCourseRequest{
		Name:   c.Param("name"),
		Leader: c.Query("leader"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Replicated(c, false, result.Outcome, result)
}
