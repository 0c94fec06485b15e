package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. PENDING only exists before the first
// reconciliation and is never persisted.
const (
	EnrollmentStatusPending  EnrollmentStatus = "PENDING"
	EnrollmentStatusAccepted EnrollmentStatus = "ACCEPTED"
	EnrollmentStatusRejected EnrollmentStatus = "REJECTED"
	EnrollmentStatusRemoved  EnrollmentStatus = "REMOVED"
)

// Enrollment captures a student's attempt to take a seat in a course.
// EnrolledAt is the queue ordering key and never changes after creation.
type Enrollment struct {
	ID           string           `db:"id" json:"id"`
	CourseID     string           `db:"course_id" json:"course_id"`
	StudentName  string           `db:"student_name" json:"student_name"`
	EnrolledAt   time.Time        `db:"enrolled_at" json:"enrolled_at"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	LastModified time.Time        `db:"last_modified" json:"last_modified"`
}

// EnrollmentDetail enriches Enrollment with course info.
type EnrollmentDetail struct {
	Enrollment
	CourseName string `db:"course_name" json:"course_name"`
	Capacity   int    `db:"capacity" json:"capacity"`
}

// StatusChange is a status transition computed by queue reconciliation.
type StatusChange struct {
	EnrollmentID string           `json:"enrollment_id"`
	StudentName  string           `json:"student_name"`
	From         EnrollmentStatus `json:"from"`
	To           EnrollmentStatus `json:"to"`
}

// NormalizeTime strips any zone offset keeping the wall clock, so values read
// from different leaders compare on a single UTC time base.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
