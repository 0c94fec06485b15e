package replication

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/internal/repository"
)

// Operation is one idempotent statement replayable on any leader.
type Operation struct {
	Name  string
	Apply func(ctx context.Context, db sqlx.ExtContext) error
}

// ApplyAll runs ops in order, stopping at the first failure.
func ApplyAll(ctx context.Context, db sqlx.ExtContext, ops []Operation) error {
	for _, op := range ops {
		if err := op.Apply(ctx, db); err != nil {
			return fmt.Errorf("%s: %w", op.Name, err)
		}
	}
	return nil
}

// InsertEnrollment creates the enrollment; replays of the same id are no-ops.
func InsertEnrollment(e models.Enrollment) Operation {
	return Operation{
		Name: "insert enrollment " + e.ID,
		Apply: func(ctx context.Context, db sqlx.ExtContext) error {
			return repository.NewEnrollmentRepository(db).Insert(ctx, &e)
		},
	}
}

// UpdateEnrollmentStatus sets a queued enrollment's status as of at.
func UpdateEnrollmentStatus(id string, status models.EnrollmentStatus, at time.Time) Operation {
	return Operation{
		Name: fmt.Sprintf("set enrollment %s %s", id, status),
		Apply: func(ctx context.Context, db sqlx.ExtContext) error {
			return repository.NewEnrollmentRepository(db).UpdateStatus(ctx, id, status, at)
		},
	}
}

// RemoveEnrollment soft-deletes an enrollment as of at.
func RemoveEnrollment(id string, at time.Time) Operation {
	return Operation{
		Name: "remove enrollment " + id,
		Apply: func(ctx context.Context, db sqlx.ExtContext) error {
			return repository.NewEnrollmentRepository(db).MarkRemoved(ctx, id, at)
		},
	}
}

// UpsertEnrollmentTombstone records the deletion of an enrollment.
func UpsertEnrollmentTombstone(id string, at time.Time) Operation {
	return Operation{
		Name: "tombstone enrollment " + id,
		Apply: func(ctx context.Context, db sqlx.ExtContext) error {
			return repository.NewEnrollmentTombstoneRepository(db).Upsert(ctx, id, at)
		},
	}
}

// UpsertCourseTombstone records the deletion of a course.
func UpsertCourseTombstone(id string, at time.Time) Operation {
	return Operation{
		Name: "tombstone course " + id,
		Apply: func(ctx context.Context, db sqlx.ExtContext) error {
			return repository.NewCourseTombstoneRepository(db).Upsert(ctx, id, at)
		},
	}
}

// UpsertCourse writes the course unless the leader holds a newer copy.
func UpsertCourse(c models.Course) Operation {
	return Operation{
		Name: "upsert course " + c.ID,
		Apply: func(ctx context.Context, db sqlx.ExtContext) error {
			return repository.NewCourseRepository(db).Upsert(ctx, &c)
		},
	}
}

// StatusChanges converts reconciler output into update operations stamped at.
func StatusChanges(changes []models.StatusChange, at time.Time) []Operation {
	ops := make([]Operation, 0, len(changes))
	for _, ch := range changes {
		ops = append(ops, UpdateEnrollmentStatus(ch.EnrollmentID, ch.To, at))
	}
	return ops
}
