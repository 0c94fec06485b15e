package models

import "time"

// CourseSummary is one row of the consolidated report.
type CourseSummary struct {
	CourseID string   `json:"course_id"`
	Name     string   `json:"name"`
	Capacity int      `json:"capacity"`
	Accepted int      `json:"accepted"`
	Waiting  int      `json:"waiting"`
	Students []string `json:"accepted_students"`
}

// ConsolidatedReport summarises every active course on one leader.
type ConsolidatedReport struct {
	Leader      string          `json:"leader"`
	GeneratedAt time.Time       `json:"generated_at"`
	Courses     []CourseSummary `json:"courses"`
}

// ReportFormat is an export format of the consolidated report.
type ReportFormat string

const (
	ReportFormatJSON ReportFormat = "json"
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatPDF  ReportFormat = "pdf"
)
