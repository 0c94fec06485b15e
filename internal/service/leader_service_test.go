package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-enrollment-sync/internal/cluster/clustertest"
	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
)

func TestLeaderStateFlagsInconsistentQueue(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B"})
	mock := h.Mock("B")
	mock.ExpectQuery(listCoursesSQL).WillReturnRows(courseRows().
		AddRow("course-1", "Algorithms", 2, false, t1).
		AddRow("course-2", "Databases", 1, false, t1))
	mock.ExpectQuery(listQueuedSQL).WithArgs("course-1", models.EnrollmentStatusRemoved).WillReturnRows(aliceBobCarol())
	mock.ExpectQuery(listQueuedSQL).WithArgs("course-2", models.EnrollmentStatusRemoved).WillReturnRows(queueRows().
		AddRow("enr-erin", "course-2", "Erin", t1, "ACCEPTED", t1).
		AddRow("enr-fay", "course-2", "Fay", t2, "ACCEPTED", t2))

	state, err := NewLeaderService(h.Cluster, nil).State(context.Background(), "B")
	require.NoError(t, err)

	assert.Equal(t, "B", state.Leader)
	assert.False(t, state.Consistent)
	require.Len(t, state.Courses, 2)
	assert.Equal(t, 2, state.Courses[0].Accepted)
	assert.Equal(t, 1, state.Courses[0].Waiting)
	assert.True(t, state.Courses[0].Entries[2].Consistent)
	assert.False(t, state.Courses[1].Entries[1].Consistent)
	h.ExpectationsWereMet(t)
}

func TestLeaderStateErrors(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B"}, "B")
	svc := NewLeaderService(h.Cluster, nil)

	_, err := svc.State(context.Background(), "Z")
	assert.ErrorIs(t, err, appErrors.ErrUnknownLeader)

	_, err = svc.State(context.Background(), "B")
	assert.ErrorIs(t, err, appErrors.ErrLeaderUnreachable)
}

func TestLeaderPing(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B"}, "B")

	statuses := NewLeaderService(h.Cluster, nil).Ping(context.Background())
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Reachable)
	assert.False(t, statuses[1].Reachable)
	assert.NotEmpty(t, statuses[1].Error)
}
