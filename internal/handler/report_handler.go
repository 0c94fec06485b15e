package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/internal/service"
	"github.com/noah-isme/sma-enrollment-sync/pkg/response"
)

type reportService interface {
	Consolidated(ctx context.Context) (*models.ConsolidatedReport, error)
	Export(ctx context.Context, format models.ReportFormat) (*service.ReportFile, error)
}

// ReportHandler exposes the consolidated report.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Consolidated godoc
// @Summary Consolidated enrollment report
// @Description JSON is wrapped in the response envelope; csv and pdf are returned as attachments.
// @Tags Reports
// @Produce json
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "json, csv or pdf"
// @Success 200 {object} response.Envelope
// @Router /reports/consolidated [get]
func (h *ReportHandler) Consolidated(c *gin.Context) {
	format := models.ReportFormat(strings.ToLower(c.DefaultQuery("format", string(models.ReportFormatJSON))))
	if format == models.ReportFormatJSON {
		report, err := h.reports.Consolidated(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, report)
		return
	}

	file, err := h.reports.Export(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
