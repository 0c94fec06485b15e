package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Table names shared by every leader.
const (
	TableCourses            = "courses"
	TableEnrollments        = "enrollments"
	TableDeletedCourses     = "deleted_courses"
	TableDeletedEnrollments = "deleted_enrollments"
)

const (
	enrollmentStatusesCheck   = "status IN ('ACCEPTED', 'REJECTED', 'REMOVED')"
	activeEnrollmentCondition = "status <> 'REMOVED'"
)

// Timestamps are UTC wall-clock values without zone, as produced by
// NOW() AT TIME ZONE 'UTC'.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS courses (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	capacity INTEGER NOT NULL CHECK (capacity > 0),
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	last_modified TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
	id UUID PRIMARY KEY,
	course_id UUID NOT NULL,
	student_name TEXT NOT NULL,
	enrolled_at TIMESTAMP NOT NULL,
	status TEXT NOT NULL CHECK (` + enrollmentStatusesCheck + `),
	last_modified TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_enrollments_course_queue ON enrollments (course_id, enrolled_at, id) WHERE ` + activeEnrollmentCondition,
	`CREATE TABLE IF NOT EXISTS deleted_courses (
	id UUID PRIMARY KEY,
	deleted_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS deleted_enrollments (
	id UUID PRIMARY KEY,
	deleted_at TIMESTAMP NOT NULL
)`,
}

// EnsureSchema creates the replicated tables on one leader if missing.
func EnsureSchema(ctx context.Context, db sqlx.ExtContext) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
