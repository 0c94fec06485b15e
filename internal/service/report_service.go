package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-sync/internal/cluster"
	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/internal/repository"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
	"github.com/noah-isme/sma-enrollment-sync/pkg/export"
)

var reportHeaders = []string{"course", "capacity", "accepted", "waitlisted", "accepted_students"}

// ReportFile is a rendered report ready for download.
type ReportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ReportService builds the consolidated enrollment report.
type ReportService struct {
	cluster   *cluster.Cluster
	exporters map[models.ReportFormat]export.Exporter
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportService constructs the report service with CSV and PDF renderers.
func NewReportService(c *cluster.Cluster, l *zap.Logger) *ReportService {
	if l == nil {
		l = zap.NewNop()
	}
	return &ReportService{
		cluster: c,
		exporters: map[models.ReportFormat]export.Exporter{
			models.ReportFormatCSV: export.NewCSVExporter(),
			models.ReportFormatPDF: export.NewPDFExporter(),
		},
		logger: l,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Consolidated summarises every active course as stored on the first
// reachable leader.
func (s *ReportService) Consolidated(ctx context.Context) (*models.ConsolidatedReport, error) {
	leader, db, err := s.cluster.FirstReachable(ctx)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := s.cluster.OperationContext(ctx)
	defer cancel()

	courses, err := repository.NewCourseRepository(db).ListActive(opCtx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	enrollments := repository.NewEnrollmentRepository(db)

	report := &models.ConsolidatedReport{Leader: leader, GeneratedAt: s.now(), Courses: make([]models.CourseSummary, 0, len(courses))}
	for _, course := range courses {
		records, err := enrollments.ListQueued(opCtx, course.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
		}
		summary := models.CourseSummary{CourseID: course.ID, Name: course.Name, Capacity: course.Capacity, Students: []string{}}
		for _, rec := range records {
			switch rec.Status {
			case models.EnrollmentStatusAccepted:
				summary.Accepted++
				summary.Students = append(summary.Students, rec.StudentName)
			case models.EnrollmentStatusRejected:
				summary.Waiting++
			}
		}
		report.Courses = append(report.Courses, summary)
	}
	return report, nil
}

// Export renders the consolidated report in the requested format.
func (s *ReportService) Export(ctx context.Context, format models.ReportFormat) (*ReportFile, error) {
	if format == "" {
		format = models.ReportFormatJSON
	}
	exporter, ok := s.exporters[format]
	if format != models.ReportFormatJSON && !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format %s", format))
	}

	report, err := s.Consolidated(ctx)
	if err != nil {
		return nil, err
	}
	filename := fmt.Sprintf("enrollments-%s-%s", strings.ToLower(report.Leader), report.GeneratedAt.Format("20060102-150405"))

	if format == models.ReportFormatJSON {
		data, err := json.Marshal(report)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode report")
		}
		return &ReportFile{Filename: filename + ".json", ContentType: "application/json", Data: data}, nil
	}

	data, err := exporter.Render(reportDataset(report))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	s.logger.Info("report exported", zap.String("format", string(format)), zap.Int("courses", len(report.Courses)))
	return &ReportFile{Filename: filename + "." + exporter.Extension(), ContentType: exporter.ContentType(), Data: data}, nil
}

func reportDataset(report *models.ConsolidatedReport) export.Dataset {
	rows := make([]map[string]string, 0, len(report.Courses))
	for _, c := range report.Courses {
		rows = append(rows, map[string]string{
			"course":            c.Name,
			"capacity":          strconv.Itoa(c.Capacity),
			"accepted":          strconv.Itoa(c.Accepted),
			"waitlisted":        strconv.Itoa(c.Waiting),
			"accepted_students": strings.Join(c.Students, "; "),
		})
	}
	return export.Dataset{
		Title:   "Consolidated enrollment report",
		Footer:  fmt.Sprintf("leader %s, generated %s UTC", report.Leader, report.GeneratedAt.Format("2006-01-02 15:04")),
		Headers: reportHeaders,
		Rows:    rows,
	}
}
