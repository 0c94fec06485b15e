package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/internal/service"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
)

type reportServiceMock struct {
	report    *models.ConsolidatedReport
	file      *service.ReportFile
	err       error
	exportArg models.ReportFormat
}

func (m *reportServiceMock) Consolidated(context.Context) (*models.ConsolidatedReport, error) {
	return m.report, m.err
}

func (m *reportServiceMock) Export(_ context.Context, format models.ReportFormat) (*service.ReportFile, error) {
	m.exportArg = format
	return m.file, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestReportHandlerJSON(t *testing.T) {
	mockSvc := &reportServiceMock{report: &models.ConsolidatedReport{Leader: "A"}}
	c, w := newGinContext(http.MethodGet, "/reports/consolidated", nil)

	NewReportHandler(mockSvc).Consolidated(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"leader":"A"`)
}

func TestReportHandlerAttachment(t *testing.T) {
	mockSvc := &reportServiceMock{file: &service.ReportFile{Filename: "enrollments-a.csv", ContentType: "text/csv", Data: []byte("course\n")}}
	c, w := newGinContext(http.MethodGet, "/reports/consolidated?format=CSV", nil)

	NewReportHandler(mockSvc).Consolidated(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ReportFormatCSV, mockSvc.exportArg)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="enrollments-a.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "course\n", w.Body.String())
}

func TestReportHandlerNoLeader(t *testing.T) {
	mockSvc := &reportServiceMock{err: appErrors.ErrNoLeaderReachable}
	c, w := newGinContext(http.MethodGet, "/reports/consolidated", nil)

	NewReportHandler(mockSvc).Consolidated(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "NO_LEADER_REACHABLE")
}
