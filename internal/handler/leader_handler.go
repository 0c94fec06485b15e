package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/pkg/response"
)

type leaderService interface {
	Ping(ctx context.Context) []models.LeaderStatus
	State(ctx context.Context, leader string) (*models.LeaderState, error)
}

type leaderEnrollmentLister interface {
	ListLeader(ctx context.Context, leader string) ([]models.EnrollmentDetail, error)
}

// LeaderHandler exposes per-leader diagnostics.
type LeaderHandler struct {
	leaders     leaderService
	enrollments leaderEnrollmentLister
}

// NewLeaderHandler constructs LeaderHandler.
func NewLeaderHandler(leaders leaderService, enrollments leaderEnrollmentLister) *LeaderHandler {
	return &LeaderHandler{leaders: leaders, enrollments: enrollments}
}

// List godoc
// @Summary Check connectivity to every leader
// @Tags Leaders
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /leaders [get]
func (h *LeaderHandler) List(c *gin.Context) {
	statuses := h.leaders.Ping(c.Request.Context())
	reachable := 0
	for _, s := range statuses {
		if s.Reachable {
			reachable++
		}
	}
	response.JSON(c, http.StatusOK, statuses, map[string]interface{}{"reachable": reachable, "total": len(statuses)})
}

// State godoc
// @Summary Courses and queues stored on one leader
// @Tags Leaders
// @Produce json
// @Param id path string true "Leader ID"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /leaders/{id}/state [get]
func (h *LeaderHandler) State(c *gin.Context) {
	state, err := h.leaders.State(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state)
}

// Enrollments godoc
// @Summary Active enrollments stored on one leader
// @Tags Leaders
// @Produce json
// @Param id path string true "Leader ID"
// @Success 200 {object} response.Envelope
// @Router /leaders/{id}/enrollments [get]
func (h *LeaderHandler) Enrollments(c *gin.Context) {
	enrollments, err := h.enrollments.ListLeader(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments)
}
