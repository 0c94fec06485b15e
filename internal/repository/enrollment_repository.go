package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
)

// ErrStatusNotApplied reports a status update that matched no live row.
var ErrStatusNotApplied = errors.New("enrollment status not applied")

// EnrollmentRepository handles persistence of enrollments on one leader.
type EnrollmentRepository struct {
	db sqlx.ExtContext
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db sqlx.ExtContext) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, course_id, student_name, enrolled_at, status, last_modified`

// ListQueued returns the non-removed enrollments of a course in queue order.
func (r *EnrollmentRepository) ListQueued(ctx context.Context, courseID string) ([]models.Enrollment, error) {
	const query = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE course_id = $1 AND status <> $2 ORDER BY enrolled_at, id`
	var enrollments []models.Enrollment
	if err := sqlx.SelectContext(ctx, r.db, &enrollments, query, courseID, models.EnrollmentStatusRemoved); err != nil {
		return nil, fmt.Errorf("list queued enrollments: %w", err)
	}
	return enrollments, nil
}

// ListActiveDetailed returns every non-removed enrollment of live courses.
func (r *EnrollmentRepository) ListActiveDetailed(ctx context.Context) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.course_id, e.student_name, e.enrolled_at, e.status, e.last_modified,
        c.name AS course_name, c.capacity
        FROM enrollments e
        JOIN courses c ON c.id = e.course_id
        WHERE e.status <> $1 AND c.is_deleted = FALSE
        ORDER BY c.name, e.enrolled_at, e.id`
	var details []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, r.db, &details, query, models.EnrollmentStatusRemoved); err != nil {
		return nil, fmt.Errorf("list enrollment details: %w", err)
	}
	return details, nil
}

// FindActiveID returns the id of the student's non-removed enrollment in the
// course, or sql.ErrNoRows.
func (r *EnrollmentRepository) FindActiveID(ctx context.Context, studentName, courseID string) (string, error) {
	const query = `SELECT id FROM enrollments WHERE student_name = $1 AND course_id = $2 AND status <> $3 ORDER BY enrolled_at, id LIMIT 1`
	var id string
	if err := sqlx.GetContext(ctx, r.db, &id, query, studentName, courseID, models.EnrollmentStatusRemoved); err != nil {
		return "", err
	}
	return id, nil
}

// Insert persists a new enrollment; replays of the same id are ignored.
func (r *EnrollmentRepository) Insert(ctx context.Context, enrollment *models.Enrollment) error {
	const query = `INSERT INTO enrollments (id, course_id, student_name, enrolled_at, status, last_modified)
        VALUES (:id, :course_id, :student_name, :enrolled_at, :status, :last_modified)
        ON CONFLICT (id) DO NOTHING`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, enrollment); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

// UpdateStatus applies a reconciled status to a live row. last_modified never
// moves backwards, so a row stamped by a leader whose clock runs ahead of at
// still takes the new status. A removed or missing row yields
// ErrStatusNotApplied.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, at time.Time) error {
	const query = `UPDATE enrollments SET status = $2, last_modified = GREATEST(last_modified, $3) WHERE id = $1 AND status <> $4`
	res, err := r.db.ExecContext(ctx, query, id, status, at, models.EnrollmentStatusRemoved)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("enrollment %s: %w", id, ErrStatusNotApplied)
	}
	return nil
}

// MarkRemoved soft-deletes an enrollment.
func (r *EnrollmentRepository) MarkRemoved(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE enrollments SET status = $2, last_modified = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusRemoved, at); err != nil {
		return fmt.Errorf("remove enrollment: %w", err)
	}
	return nil
}

// RemoveByCourse soft-deletes every non-removed enrollment of a course and
// returns their ids.
func (r *EnrollmentRepository) RemoveByCourse(ctx context.Context, courseID string, at time.Time) ([]string, error) {
	const query = `UPDATE enrollments SET status = $2, last_modified = $3 WHERE course_id = $1 AND status <> $2 RETURNING id`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.db, &ids, query, courseID, models.EnrollmentStatusRemoved, at); err != nil {
		return nil, fmt.Errorf("remove course enrollments: %w", err)
	}
	return ids, nil
}
