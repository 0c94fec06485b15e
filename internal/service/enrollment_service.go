package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-sync/internal/cluster"
	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/internal/queue"
	"github.com/noah-isme/sma-enrollment-sync/internal/replication"
	"github.com/noah-isme/sma-enrollment-sync/internal/repository"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
	"github.com/noah-isme/sma-enrollment-sync/pkg/logger"
)

// EnrollRequest describes an enrollment attempt.
type EnrollRequest struct {
	Student string `json:"student" validate:"required,max=255"`
	Course  string `json:"course" validate:"required,max=255"`
	Leader  string `json:"leader,omitempty" validate:"omitempty,max=32"`
}

// RemoveEnrollmentRequest describes an enrollment removal.
type RemoveEnrollmentRequest struct {
	Student string `json:"student" validate:"required,max=255"`
	Course  string `json:"course" validate:"required,max=255"`
	Leader  string `json:"leader,omitempty" validate:"omitempty,max=32"`
}

// EnrollmentResult is the outcome of an enrollment attempt.
type EnrollmentResult struct {
	Enrollment  models.Enrollment        `json:"enrollment"`
	Position    int                      `json:"position"`
	Capacity    int                      `json:"capacity"`
	Changes     []models.StatusChange    `json:"changes,omitempty"`
	Leader      string                   `json:"leader"`
	Propagation models.PropagationReport `json:"propagation"`
	Outcome     models.Outcome           `json:"outcome"`
}

// RemovalResult is the outcome of an enrollment removal.
type RemovalResult struct {
	EnrollmentID string                   `json:"enrollment_id"`
	Student      string                   `json:"student"`
	Course       string                   `json:"course"`
	Promotions   []models.StatusChange    `json:"promotions,omitempty"`
	Leader       string                   `json:"leader"`
	Propagation  models.PropagationReport `json:"propagation"`
	Outcome      models.Outcome           `json:"outcome"`
}

// EnrollmentService orchestrates enrollment workflows across leaders.
type EnrollmentService struct {
	cluster    *cluster.Cluster
	reader     *replication.Reader
	propagator *replication.Propagator
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(c *cluster.Cluster, reader *replication.Reader, propagator *replication.Propagator, validate *validator.Validate, l *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &EnrollmentService{cluster: c, reader: reader, propagator: propagator, validator: validate, logger: l}
}

// Enroll places a student in the queue of a course. The decision is taken on
// the entry leader from the global snapshot, committed there together with any
// status changes it causes, then replayed on every other leader.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*EnrollmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	entry, err := resolveEntry(s.cluster, req.Leader)
	if err != nil {
		return nil, err
	}
	course, err := activeCourse(ctx, s.cluster, entry, req.Course)
	if err != nil {
		return nil, err
	}

	snap, err := s.reader.Snapshot(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	if snap.HasActive(req.Student) {
		return nil, appErrors.Clone(appErrors.ErrDuplicateStudent, fmt.Sprintf("%s is already enrolled in %s", req.Student, course.Name))
	}

	at, err := s.cluster.Now(ctx, entry)
	if err != nil {
		return nil, err
	}
	attempt := models.Enrollment{
		ID:           uuid.NewString(),
		CourseID:     course.ID,
		StudentName:  req.Student,
		EnrolledAt:   at,
		Status:       models.EnrollmentStatusPending,
		LastModified: at,
	}
	decision := queue.Reconcile(snap.Records, course.Capacity, &attempt, "")
	attempt.Status = decision.Status

	ops := append([]replication.Operation{replication.InsertEnrollment(attempt)}, replication.StatusChanges(decision.Changes, at)...)
	if err := s.propagator.Commit(ctx, entry, ops); err != nil {
		return nil, err
	}
	report := s.propagator.Propagate(ctx, entry, ops)

	s.logger.Info("enrollment committed",
		logger.Leader(entry),
		zap.String("enrollment_id", attempt.ID),
		zap.String("course", course.Name),
		zap.String("status", string(attempt.Status)),
		zap.Int("position", decision.Position),
		zap.Int("changes", len(decision.Changes)),
		zap.String("outcome", string(report.Outcome())),
	)

	return &EnrollmentResult{
		Enrollment:  attempt,
		Position:    decision.Position,
		Capacity:    course.Capacity,
		Changes:     decision.Changes,
		Leader:      entry,
		Propagation: report,
		Outcome:     report.Outcome(),
	}, nil
}

// Remove soft-deletes the active enrollment of a student and promotes
// waitlisted students into the freed seat.
func (s *EnrollmentService) Remove(ctx context.Context, req RemoveEnrollmentRequest) (*RemovalResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid removal payload")
	}
	entry, err := resolveEntry(s.cluster, req.Leader)
	if err != nil {
		return nil, err
	}
	course, err := activeCourse(ctx, s.cluster, entry, req.Course)
	if err != nil {
		return nil, err
	}

	snap, err := s.reader.Snapshot(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	var removedID string
	for _, rec := range snap.Records {
		if rec.StudentName == req.Student {
			removedID = rec.ID
			break
		}
	}
	if removedID == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s has no active enrollment in %s", req.Student, course.Name))
	}

	at, err := s.cluster.Now(ctx, entry)
	if err != nil {
		return nil, err
	}
	decision := queue.Reconcile(snap.Records, course.Capacity, nil, removedID)

	ops := []replication.Operation{
		replication.RemoveEnrollment(removedID, at),
		replication.UpsertEnrollmentTombstone(removedID, at),
	}
	ops = append(ops, replication.StatusChanges(decision.Changes, at)...)
	if err := s.propagator.Commit(ctx, entry, ops); err != nil {
		return nil, err
	}
	report := s.propagator.Propagate(ctx, entry, ops)

	s.logger.Info("enrollment removed",
		logger.Leader(entry),
		zap.String("enrollment_id", removedID),
		zap.String("course", course.Name),
		zap.Int("promotions", len(decision.Changes)),
		zap.String("outcome", string(report.Outcome())),
	)

	return &RemovalResult{
		EnrollmentID: removedID,
		Student:      req.Student,
		Course:       course.Name,
		Promotions:   decision.Changes,
		Leader:       entry,
		Propagation:  report,
		Outcome:      report.Outcome(),
	}, nil
}

// Queue returns the globally reconciled queue of a course.
func (s *EnrollmentService) Queue(ctx context.Context, courseName, leader string) (*models.GlobalQueue, error) {
	entry, err := resolveEntry(s.cluster, leader)
	if err != nil {
		return nil, err
	}
	course, err := activeCourse(ctx, s.cluster, entry, courseName)
	if err != nil {
		return nil, err
	}
	snap, err := s.reader.Snapshot(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	return &models.GlobalQueue{
		CourseQueue: courseQueue(*course, snap.Records),
		Reached:     snap.Reached,
		Skipped:     snap.Skipped,
	}, nil
}

// ListLeader returns the active enrollments stored on one leader.
func (s *EnrollmentService) ListLeader(ctx context.Context, leader string) ([]models.EnrollmentDetail, error) {
	if !s.cluster.Has(leader) {
		return nil, appErrors.Clone(appErrors.ErrUnknownLeader, fmt.Sprintf("leader %s is not configured", leader))
	}
	db, err := s.cluster.Connect(ctx, leader)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := s.cluster.OperationContext(ctx)
	defer cancel()
	enrollments, err := repository.NewEnrollmentRepository(db).ListActiveDetailed(opCtx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// resolveEntry picks the entry leader of a request.
func resolveEntry(c *cluster.Cluster, requested string) (string, error) {
	if requested == "" {
		return c.Local(), nil
	}
	if !c.Has(requested) {
		return "", appErrors.Clone(appErrors.ErrUnknownLeader, fmt.Sprintf("leader %s is not configured", requested))
	}
	return requested, nil
}

// activeCourse looks a live course up by name on one leader.
func activeCourse(ctx context.Context, c *cluster.Cluster, leader, name string) (*models.Course, error) {
	db, err := c.Connect(ctx, leader)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := c.OperationContext(ctx)
	defer cancel()
	course, err := repository.NewCourseRepository(db).FindActiveByName(opCtx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %s not found", name))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// courseQueue ranks records and pairs each with the status its rank implies.
func courseQueue(course models.Course, records []models.Enrollment) models.CourseQueue {
	ordered := make([]models.Enrollment, 0, len(records))
	for _, rec := range records {
		if rec.Status != models.EnrollmentStatusRemoved {
			ordered = append(ordered, rec)
		}
	}
	queue.Order(ordered)

	view := models.CourseQueue{Course: course, Entries: make([]models.QueueEntry, 0, len(ordered))}
	for i, rec := range ordered {
		implied := queue.StatusAt(i+1, course.Capacity)
		if implied == models.EnrollmentStatusAccepted {
			view.Accepted++
		} else {
			view.Waiting++
		}
		view.Entries = append(view.Entries, models.QueueEntry{
			Position:   i + 1,
			Enrollment: rec,
			Implied:    implied,
			Consistent: rec.Status == implied,
		})
	}
	return view
}
