package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
)

// CourseRepository handles persistence of courses on one leader. db may be a
// pool or an open transaction.
type CourseRepository struct {
	db sqlx.ExtContext
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db sqlx.ExtContext) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, name, capacity, is_deleted, last_modified`

// FindActiveByName returns the live course with the given name. Missing or
// deleted courses yield sql.ErrNoRows.
func (r *CourseRepository) FindActiveByName(ctx context.Context, name string) (*models.Course, error) {
	const query = `SELECT ` + courseColumns + ` FROM courses WHERE name = $1 AND is_deleted = FALSE ORDER BY last_modified DESC, id LIMIT 1`
	var course models.Course
	if err := sqlx.GetContext(ctx, r.db, &course, query, name); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByID returns a course regardless of its deletion flag.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := sqlx.GetContext(ctx, r.db, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListActive returns the catalog ordered by name.
func (r *CourseRepository) ListActive(ctx context.Context) ([]models.Course, error) {
	const query = `SELECT ` + courseColumns + ` FROM courses WHERE is_deleted = FALSE ORDER BY name, id`
	var courses []models.Course
	if err := sqlx.SelectContext(ctx, r.db, &courses, query); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// ListAll returns every course including soft-deleted ones.
func (r *CourseRepository) ListAll(ctx context.Context) ([]models.Course, error) {
	const query = `SELECT ` + courseColumns + ` FROM courses ORDER BY name, id`
	var courses []models.Course
	if err := sqlx.SelectContext(ctx, r.db, &courses, query); err != nil {
		return nil, fmt.Errorf("list all courses: %w", err)
	}
	return courses, nil
}

// Upsert inserts the course or overwrites it when the stored copy is older.
func (r *CourseRepository) Upsert(ctx context.Context, course *models.Course) error {
	const query = `INSERT INTO courses (id, name, capacity, is_deleted, last_modified)
        VALUES (:id, :name, :capacity, :is_deleted, :last_modified)
        ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, capacity = EXCLUDED.capacity,
        is_deleted = EXCLUDED.is_deleted, last_modified = EXCLUDED.last_modified
        WHERE courses.last_modified < EXCLUDED.last_modified`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, course); err != nil {
		return fmt.Errorf("upsert course: %w", err)
	}
	return nil
}

// MarkDeleted soft-deletes a course.
func (r *CourseRepository) MarkDeleted(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE courses SET is_deleted = TRUE, last_modified = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}
