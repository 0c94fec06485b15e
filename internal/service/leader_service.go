package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-sync/internal/cluster"
	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/internal/queue"
	"github.com/noah-isme/sma-enrollment-sync/internal/repository"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
	"github.com/noah-isme/sma-enrollment-sync/pkg/logger"
)

// LeaderService exposes connectivity and per-leader state.
type LeaderService struct {
	cluster *cluster.Cluster
	logger  *zap.Logger
}

// NewLeaderService constructs LeaderService.
func NewLeaderService(c *cluster.Cluster, l *zap.Logger) *LeaderService {
	if l == nil {
		l = zap.NewNop()
	}
	return &LeaderService{cluster: c, logger: l}
}

// Ping checks every configured leader.
func (s *LeaderService) Ping(ctx context.Context) []models.LeaderStatus {
	return s.cluster.Ping(ctx)
}

// State returns every active course stored on one leader with its local queue
// and the status each rank implies.
func (s *LeaderService) State(ctx context.Context, leader string) (*models.LeaderState, error) {
	if !s.cluster.Has(leader) {
		return nil, appErrors.Clone(appErrors.ErrUnknownLeader, fmt.Sprintf("leader %s is not configured", leader))
	}
	db, err := s.cluster.Connect(ctx, leader)
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

	state := &models.LeaderState{Leader: leader, Consistent: true, Courses: make([]models.CourseQueue, 0, len(courses))}
	for _, course := range courses {
		records, err := enrollments.ListQueued(opCtx, course.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
		}
		for i := range records {
			records[i].EnrolledAt = models.NormalizeTime(records[i].EnrolledAt)
			records[i].LastModified = models.NormalizeTime(records[i].LastModified)
		}
		if !queue.Check(records, course.Capacity) {
			state.Consistent = false
			s.logger.Warn("queue out of order", logger.Leader(leader), zap.String("course", course.Name))
		}
		state.Courses = append(state.Courses, courseQueue(course, records))
	}
	return state, nil
}
