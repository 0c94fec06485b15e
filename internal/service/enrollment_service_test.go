package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-enrollment-sync/internal/cluster/clustertest"
	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/internal/replication"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
)

var (
	findCourseSQL       = regexp.QuoteMeta("FROM courses WHERE name = $1 AND is_deleted = FALSE")
	listQueuedSQL       = regexp.QuoteMeta("FROM enrollments WHERE course_id = $1 AND status <> $2 ORDER BY enrolled_at, id")
	insertEnrollmentSQL = regexp.QuoteMeta("INSERT INTO enrollments (id, course_id, student_name, enrolled_at, status, last_modified)")
	markRemovedSQL      = regexp.QuoteMeta("UPDATE enrollments SET status = $2, last_modified = $3 WHERE id = $1")
	updateStatusSQL     = regexp.QuoteMeta("UPDATE enrollments SET status = $2, last_modified = GREATEST(last_modified, $3) WHERE id = $1 AND status <> $4")
	enrollmentTombSQL   = regexp.QuoteMeta("INSERT INTO deleted_enrollments (id, deleted_at)")
)

var (
	t1 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Minute)
	t3 = t1.Add(2 * time.Minute)
	t4 = t1.Add(3 * time.Minute)
)

func courseRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "capacity", "is_deleted", "last_modified"})
}

func queueRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "course_id", "student_name", "enrolled_at", "status", "last_modified"})
}

func expectAlgorithms(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(findCourseSQL).
		WithArgs("Algorithms").
		WillReturnRows(courseRows().AddRow("course-1", "Algorithms", 2, false, t1))
}

// aliceBob is the queue after the first two Algorithms enrollments.
func aliceBob() *sqlmock.Rows {
	return queueRows().
		AddRow("enr-alice", "course-1", "Alice", t1, "ACCEPTED", t1).
		AddRow("enr-bob", "course-1", "Bob", t2, "ACCEPTED", t2)
}

func aliceBobCarol() *sqlmock.Rows {
	return aliceBob().AddRow("enr-carol", "course-1", "Carol", t3, "REJECTED", t3)
}

func newEnrollmentService(h *clustertest.Harness) *EnrollmentService {
	reader := replication.NewReader(h.Cluster, nil)
	propagator := replication.NewPropagator(h.Cluster, nil, nil)
	return NewEnrollmentService(h.Cluster, reader, propagator, nil, nil)
}

func TestEnrollRejectsBeyondCapacity(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B"})
	expectAlgorithms(h.Mock("A"))
	h.Mock("A").ExpectQuery(listQueuedSQL).WithArgs("course-1", models.EnrollmentStatusRemoved).WillReturnRows(aliceBob())
	h.Mock("B").ExpectQuery(listQueuedSQL).WithArgs("course-1", models.EnrollmentStatusRemoved).WillReturnRows(aliceBob())
	h.ExpectNow("A", t3)
	for _, id := range []string{"A", "B"} {
		mock := h.Mock(id)
		mock.ExpectBegin()
		mock.ExpectExec(insertEnrollmentSQL).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	result, err := newEnrollmentService(h).Enroll(context.Background(), EnrollRequest{Student: "Carol", Course: "Algorithms"})
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusRejected, result.Enrollment.Status)
	assert.Equal(t, 3, result.Position)
	assert.Equal(t, 2, result.Capacity)
	assert.Empty(t, result.Changes)
	assert.Equal(t, "A", result.Leader)
	assert.Equal(t, t3, result.Enrollment.EnrolledAt)
	assert.Equal(t, []string{"B"}, result.Propagation.Succeeded)
	assert.Equal(t, models.OutcomeSuccess, result.Outcome)
	h.ExpectationsWereMet(t)
}

func TestEnrollPartialPropagation(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B", "C"}, "C")
	expectAlgorithms(h.Mock("A"))
	h.Mock("A").ExpectQuery(listQueuedSQL).WillReturnRows(queueRows())
	h.Mock("B").ExpectQuery(listQueuedSQL).WillReturnRows(queueRows())
	h.ExpectNow("A", t1)
	for _, id := range []string{"A", "B"} {
		mock := h.Mock(id)
		mock.ExpectBegin()
		mock.ExpectExec(insertEnrollmentSQL).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	result, err := newEnrollmentService(h).Enroll(context.Background(), EnrollRequest{Student: "Alice", Course: "Algorithms"})
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusAccepted, result.Enrollment.Status)
	assert.Equal(t, 1, result.Position)
	assert.Equal(t, models.OutcomePartial, result.Outcome)
	assert.Equal(t, []string{"C"}, result.Propagation.Lagging())
	h.ExpectationsWereMet(t)
}

func TestEnrollDuplicateStudent(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B"})
	expectAlgorithms(h.Mock("A"))
	h.Mock("A").ExpectQuery(listQueuedSQL).WillReturnRows(queueRows())
	h.Mock("B").ExpectQuery(listQueuedSQL).WillReturnRows(aliceBob())

	_, err := newEnrollmentService(h).Enroll(context.Background(), EnrollRequest{Student: "Bob", Course: "Algorithms"})
	assert.ErrorIs(t, err, appErrors.ErrDuplicateStudent)
	h.ExpectationsWereMet(t)
}

func TestEnrollUnknownCourse(t *testing.T) {
	h := clustertest.New(t, []string{"A"})
	h.Mock("A").ExpectQuery(findCourseSQL).WithArgs("Compilers").WillReturnRows(courseRows())

	_, err := newEnrollmentService(h).Enroll(context.Background(), EnrollRequest{Student: "Alice", Course: "Compilers"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	h.ExpectationsWereMet(t)
}

func TestEnrollValidation(t *testing.T) {
	h := clustertest.New(t, []string{"A"})

	_, err := newEnrollmentService(h).Enroll(context.Background(), EnrollRequest{Course: "Algorithms"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = newEnrollmentService(h).Enroll(context.Background(), EnrollRequest{Student: "Alice", Course: "Algorithms", Leader: "Z"})
	assert.ErrorIs(t, err, appErrors.ErrUnknownLeader)
}

func TestRemovePromotesWaitlistedStudent(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B"})
	expectAlgorithms(h.Mock("A"))
	h.Mock("A").ExpectQuery(listQueuedSQL).WillReturnRows(aliceBobCarol())
	h.Mock("B").ExpectQuery(listQueuedSQL).WillReturnRows(aliceBobCarol())
	h.ExpectNow("A", t4)
	for _, id := range []string{"A", "B"} {
		mock := h.Mock(id)
		mock.ExpectBegin()
		mock.ExpectExec(markRemovedSQL).
			WithArgs("enr-alice", models.EnrollmentStatusRemoved, t4).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(enrollmentTombSQL).
			WithArgs("enr-alice", t4).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(updateStatusSQL).
			WithArgs("enr-carol", models.EnrollmentStatusAccepted, t4, models.EnrollmentStatusRemoved).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	result, err := newEnrollmentService(h).Remove(context.Background(), RemoveEnrollmentRequest{Student: "Alice", Course: "Algorithms"})
	require.NoError(t, err)

	assert.Equal(t, "enr-alice", result.EnrollmentID)
	require.Len(t, result.Promotions, 1)
	assert.Equal(t, models.StatusChange{
		EnrollmentID: "enr-carol",
		StudentName:  "Carol",
		From:         models.EnrollmentStatusRejected,
		To:           models.EnrollmentStatusAccepted,
	}, result.Promotions[0])
	assert.Equal(t, models.OutcomeSuccess, result.Outcome)
	h.ExpectationsWereMet(t)
}

// Carol was enrolled through a leader whose clock runs ahead, so her row is
// newer than the removal time T that promotes her.
func aliceBobCarolAhead() *sqlmock.Rows {
	return aliceBob().AddRow("enr-carol", "course-1", "Carol", t3, "REJECTED", t4.Add(2*time.Second))
}

func expectRemovalOfAlice(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(markRemovedSQL).WithArgs("enr-alice", models.EnrollmentStatusRemoved, t4).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(enrollmentTombSQL).WithArgs("enr-alice", t4).WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestRemovePromotesRowStampedAfterRemoval(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B"})
	expectAlgorithms(h.Mock("A"))
	h.Mock("A").ExpectQuery(listQueuedSQL).WillReturnRows(aliceBobCarolAhead())
	h.Mock("B").ExpectQuery(listQueuedSQL).WillReturnRows(aliceBobCarolAhead())
	h.ExpectNow("A", t4)
	for _, id := range []string{"A", "B"} {
		mock := h.Mock(id)
		expectRemovalOfAlice(mock)
		mock.ExpectExec(updateStatusSQL).
			WithArgs("enr-carol", models.EnrollmentStatusAccepted, t4, models.EnrollmentStatusRemoved).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	result, err := newEnrollmentService(h).Remove(context.Background(), RemoveEnrollmentRequest{Student: "Alice", Course: "Algorithms"})
	require.NoError(t, err)

	require.Len(t, result.Promotions, 1)
	assert.Equal(t, models.EnrollmentStatusAccepted, result.Promotions[0].To)
	assert.Equal(t, models.OutcomeSuccess, result.Outcome)
	h.ExpectationsWereMet(t)
}

func TestRemoveFailsWhenPromotionDoesNotLand(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B"})
	expectAlgorithms(h.Mock("A"))
	h.Mock("A").ExpectQuery(listQueuedSQL).WillReturnRows(aliceBobCarol())
	h.Mock("B").ExpectQuery(listQueuedSQL).WillReturnRows(aliceBobCarol())
	h.ExpectNow("A", t4)
	mock := h.Mock("A")
	expectRemovalOfAlice(mock)
	mock.ExpectExec(updateStatusSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := newEnrollmentService(h).Remove(context.Background(), RemoveEnrollmentRequest{Student: "Alice", Course: "Algorithms"})
	assert.ErrorIs(t, err, appErrors.ErrStoreConflict)
	h.ExpectationsWereMet(t)
}

func TestRemoveWithoutActiveEnrollment(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B"})
	expectAlgorithms(h.Mock("A"))
	h.Mock("A").ExpectQuery(listQueuedSQL).WillReturnRows(aliceBob())
	h.Mock("B").ExpectQuery(listQueuedSQL).WillReturnRows(aliceBob())

	_, err := newEnrollmentService(h).Remove(context.Background(), RemoveEnrollmentRequest{Student: "Dave", Course: "Algorithms"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	h.ExpectationsWereMet(t)
}

func TestQueueReportsImpliedStatus(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B"}, "B")
	expectAlgorithms(h.Mock("A"))
	h.Mock("A").ExpectQuery(listQueuedSQL).WillReturnRows(queueRows().
		AddRow("enr-alice", "course-1", "Alice", t1, "ACCEPTED", t1).
		AddRow("enr-bob", "course-1", "Bob", t2, "ACCEPTED", t2).
		AddRow("enr-carol", "course-1", "Carol", t3, "ACCEPTED", t3))

	view, err := newEnrollmentService(h).Queue(context.Background(), "Algorithms", "")
	require.NoError(t, err)

	assert.Equal(t, 2, view.Accepted)
	assert.Equal(t, 1, view.Waiting)
	require.Len(t, view.Entries, 3)
	assert.True(t, view.Entries[1].Consistent)
	assert.False(t, view.Entries[2].Consistent)
	assert.Equal(t, models.EnrollmentStatusRejected, view.Entries[2].Implied)
	assert.Equal(t, []string{"A"}, view.Reached)
	assert.Contains(t, view.Skipped, "B")
	h.ExpectationsWereMet(t)
}

func TestListLeaderUnknown(t *testing.T) {
	h := clustertest.New(t, []string{"A"})

	_, err := newEnrollmentService(h).ListLeader(context.Background(), "Q")
	assert.ErrorIs(t, err, appErrors.ErrUnknownLeader)
}
