package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTombstoneRepositoryUpsertKeepsNewest(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentTombstoneRepository(db)

	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("WHERE deleted_enrollments.deleted_at < EXCLUDED.deleted_at")).
		WithArgs("enr-1", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), "enr-1", ts))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTombstoneRepositoryIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseTombstoneRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM deleted_courses")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("course-1").AddRow("course-2"))

	ids, err := repo.IDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "course-2")
	require.NoError(t, mock.ExpectationsWereMet())
}
