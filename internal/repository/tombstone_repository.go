package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// TombstoneRepository stores deletion markers of one entity kind.
type TombstoneRepository struct {
	db    sqlx.ExtContext
	table string
}

// NewCourseTombstoneRepository binds the repository to deleted_courses.
func NewCourseTombstoneRepository(db sqlx.ExtContext) *TombstoneRepository {
	return &TombstoneRepository{db: db, table: TableDeletedCourses}
}

// NewEnrollmentTombstoneRepository binds the repository to deleted_enrollments.
func NewEnrollmentTombstoneRepository(db sqlx.ExtContext) *TombstoneRepository {
	return &TombstoneRepository{db: db, table: TableDeletedEnrollments}
}

// Upsert records a deletion, keeping the newest deleted_at.
func (r *TombstoneRepository) Upsert(ctx context.Context, id string, deletedAt time.Time) error {
	query := fmt.Sprintf(`INSERT INTO %[1]s (id, deleted_at) VALUES ($1, $2)
        ON CONFLICT (id) DO UPDATE SET deleted_at = EXCLUDED.deleted_at
        WHERE %[1]s.deleted_at < EXCLUDED.deleted_at`, r.table)
	if _, err := r.db.ExecContext(ctx, query, id, deletedAt); err != nil {
		return fmt.Errorf("upsert %s: %w", r.table, err)
	}
	return nil
}

// IDs returns the set of tombstoned ids.
func (r *TombstoneRepository) IDs(ctx context.Context) (map[string]struct{}, error) {
	query := fmt.Sprintf(`SELECT id FROM %s`, r.table)
	var ids []string
	if err := sqlx.SelectContext(ctx, r.db, &ids, query); err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table, err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}
