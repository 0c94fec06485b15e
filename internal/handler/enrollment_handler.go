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

type enrollmentService interface {
	Enroll(ctx context.Context, req service.EnrollRequest) (*service.EnrollmentResult, error)
	Remove(ctx context.Context, req service.RemoveEnrollmentRequest) (*service.RemovalResult, error)
	Queue(ctx context.Context, courseName, leader string) (*models.GlobalQueue, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Create godoc
// @Summary Enroll a student
// @Description The decision is taken on the entry leader from the queue of every reachable leader.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Success 207 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Replicated(c, true, result.Outcome, result)
}

// Delete godoc
// @Summary Remove a student's enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.RemoveEnrollmentRequest true "Removal payload"
// @Success 200 {object} response.Envelope
// @Success 207 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	var req service.RemoveEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.Remove(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Replicated(c, false, result.Outcome, result)
}

// Queue godoc
// @Summary Global queue of a course
// @Tags Enrollments
// @Produce json
// @Param name path string true "Course name"
// @Param leader query string false "Leader used to resolve the course"
// @Success 200 {object} response.Envelope
// @Router /courses/{name}/queue [get]
func (h *EnrollmentHandler) Queue(c *gin.Context) {
	view, err := h.enrollments.Queue(c.Request.Context(), c.Param("name"), c.Query("leader"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}
