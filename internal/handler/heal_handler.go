package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
	"github.com/noah-isme/sma-enrollment-sync/pkg/response"
)

type healService interface {
	RunNow(ctx context.Context) (*models.HealReport, error)
	Trigger(reason string) error
	Last() *models.HealReport
}

// HealHandler exposes on-demand healing.
type HealHandler struct {
	heals healService
}

// NewHealHandler constructs HealHandler.
func NewHealHandler(heals healService) *HealHandler {
	return &HealHandler{heals: heals}
}

// Run godoc
// @Summary Heal the local leader against every other leader
// @Description With async=true the pass is queued and 202 is returned immediately.
// @Tags Heal
// @Produce json
// @Security BearerAuth
// @Param async query bool false "Queue the pass instead of waiting"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /heal [post]
func (h *HealHandler) Run(c *gin.Context) {
	if c.Query("async") == "true" {
		if err := h.heals.Trigger("api:" + operator(c)); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule heal"))
			return
		}
		response.JSON(c, http.StatusAccepted, gin.H{"status": "scheduled"})
		return
	}

	report, err := h.heals.RunNow(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, map[string]interface{}{"outcome": report.Outcome(), "imported": report.Imported()})
}

// Last godoc
// @Summary Report of the most recent heal pass
// @Tags Heal
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /heal/last [get]
func (h *HealHandler) Last(c *gin.Context) {
	report := h.heals.Last()
	if report == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no heal pass has completed yet"))
		return
	}
	response.JSON(c, http.StatusOK, report)
}
