package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-sync/internal/cluster"
	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/internal/replication"
	"github.com/noah-isme/sma-enrollment-sync/internal/repository"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
	"github.com/noah-isme/sma-enrollment-sync/pkg/logger"
)

// AddCourseRequest describes a new course.
type AddCourseRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Capacity int    `json:"capacity" validate:"required,gt=0"`
	Leader   string `json:"leader,omitempty" validate:"omitempty,max=32"`
}

// RemoveCourseRequest describes a course removal.
type RemoveCourseRequest struct {
	Name   string `json:"name" validate:"required,max=255"`
	Leader string `json:"leader,omitempty" validate:"omitempty,max=32"`
}

// CourseResult is the outcome of adding a course on every leader.
type CourseResult struct {
	Course      models.Course            `json:"course"`
	Propagation models.PropagationReport `json:"propagation"`
	Outcome     models.Outcome           `json:"outcome"`
}

// CourseRemovalResult is the outcome of removing a course on every leader.
type CourseRemovalResult struct {
	CourseID           string                   `json:"course_id"`
	Name               string                   `json:"name"`
	RemovedEnrollments int                      `json:"removed_enrollments"`
	Leader             string                   `json:"leader"`
	Propagation        models.PropagationReport `json:"propagation"`
	Outcome            models.Outcome           `json:"outcome"`
}

// CourseService manages the course catalog.
type CourseService struct {
	cluster   *cluster.Cluster
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService. cache may be nil.
func NewCourseService(c *cluster.Cluster, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, l *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &CourseService{cluster: c, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: l}
}

// Add creates a course and writes it independently on every leader.
func (s *CourseService) Add(ctx context.Context, req AddCourseRequest) (*CourseResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	entry, err := resolveEntry(s.cluster, req.Leader)
	if err != nil {
		return nil, err
	}
	_, err = activeCourse(ctx, s.cluster, entry, req.Name)
	switch {
	case err == nil:
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("course %s already exists", req.Name))
	case !errors.Is(err, appErrors.ErrNotFound):
		return nil, err
	}

	at, _, err := s.cluster.NowAny(ctx)
	if err != nil {
		return nil, err
	}
	course := models.Course{ID: uuid.NewString(), Name: req.Name, Capacity: req.Capacity, LastModified: at}
	op := replication.UpsertCourse(course)
	results := s.cluster.FanOut(ctx, s.cluster.IDs(), func(ctx context.Context, _ string, db *sqlx.DB) error {
		return op.Apply(ctx, db)
	})
	report := results.Report()
	if len(report.Succeeded) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPropagationFailure, fmt.Sprintf("course %s was not stored on any leader", req.Name))
	}
	s.invalidateCatalog(ctx)

	s.logger.Info("course added",
		zap.String("course_id", course.ID),
		zap.String("course", course.Name),
		zap.Int("capacity", course.Capacity),
		zap.String("outcome", string(report.Outcome())),
	)
	return &CourseResult{Course: course, Propagation: report, Outcome: report.Outcome()}, nil
}

// Remove soft-deletes a course and all of its enrollments. The entry leader
// goes first and its failure aborts the removal; every other leader then runs
// the same procedure on its own, missing leaders catch up through healing.
func (s *CourseService) Remove(ctx context.Context, req RemoveCourseRequest) (*CourseRemovalResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	entry, err := resolveEntry(s.cluster, req.Leader)
	if err != nil {
		return nil, err
	}
	at, _, err := s.cluster.NowAny(ctx)
	if err != nil {
		return nil, err
	}

	db, err := s.cluster.Connect(ctx, entry)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := s.cluster.OperationContext(ctx)
	removal, err := removeCourseOn(opCtx, db, req.Name, at)
	cancel()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %s not found", req.Name))
		}
		return nil, appErrors.WrapAs(appErrors.ErrStoreConflict, err, fmt.Sprintf("failed to remove course on leader %s", entry))
	}

	results := s.cluster.FanOut(ctx, s.cluster.Others(entry), func(ctx context.Context, leader string, db *sqlx.DB) error {
		_, err := removeCourseOn(ctx, db, req.Name, at)
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("course absent on leader", logger.Leader(leader), zap.String("course", req.Name))
			return nil
		}
		return err
	})
	report := results.Report()
	s.invalidateCatalog(ctx)

	s.logger.Info("course removed",
		logger.Leader(entry),
		zap.String("course_id", removal.courseID),
		zap.Int("removed_enrollments", len(removal.enrollments)),
		zap.String("outcome", string(report.Outcome())),
	)
	return &CourseRemovalResult{
		CourseID:           removal.courseID,
		Name:               req.Name,
		RemovedEnrollments: len(removal.enrollments),
		Leader:             entry,
		Propagation:        report,
		Outcome:            report.Outcome(),
	}, nil
}

// Catalog lists active courses from the first reachable leader.
func (s *CourseService) Catalog(ctx context.Context) ([]models.Course, error) {
	var cached []models.Course
	if hit, err := s.cache.Get(ctx, catalogCacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	leader, db, err := s.cluster.FirstReachable(ctx)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := s.cluster.OperationContext(ctx)
	defer cancel()
	courses, err := repository.NewCourseRepository(db).ListActive(opCtx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to list courses on leader %s", leader))
	}
	if courses == nil {
		courses = []models.Course{}
	}
	_ = s.cache.Set(ctx, catalogCacheKey, courses, s.cacheTTL)
	return courses, nil
}

func (s *CourseService) invalidateCatalog(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, catalogCachePattern)
}

type courseRemoval struct {
	courseID    string
	enrollments []string
}

// removeCourseOn runs the per-leader course removal in one transaction:
// every live enrollment becomes REMOVED, the course is flagged deleted and
// all of them are tombstoned, stamped at. A missing course yields
// sql.ErrNoRows.
func removeCourseOn(ctx context.Context, db *sqlx.DB, name string, at time.Time) (courseRemoval, error) {
	var removal courseRemoval
	err := replication.InTx(ctx, db, func(tx *sqlx.Tx) error {
		course, err := repository.NewCourseRepository(tx).FindActiveByName(ctx, name)
		if err != nil {
			return err
		}
		removal.courseID = course.ID

		ids, err := repository.NewEnrollmentRepository(tx).RemoveByCourse(ctx, course.ID, at)
		if err != nil {
			return err
		}
		removal.enrollments = ids

		if err := repository.NewCourseRepository(tx).MarkDeleted(ctx, course.ID, at); err != nil {
			return err
		}
		enrollmentTombs := repository.NewEnrollmentTombstoneRepository(tx)
		for _, id := range ids {
			if err := enrollmentTombs.Upsert(ctx, id, at); err != nil {
				return err
			}
		}
		return repository.NewCourseTombstoneRepository(tx).Upsert(ctx, course.ID, at)
	})
	return removal, err
}
