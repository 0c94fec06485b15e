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

func TestSyncRepositoryVersionsNormalizesZone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSyncRepository(db)

	zone := time.FixedZone("BRT", -3*60*60)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, last_modified AS version FROM courses")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version"}).
			AddRow("course-1", time.Date(2024, 3, 1, 9, 0, 0, 0, zone)))

	versions, err := repo.Versions(context.Background(), CoursesTable)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), versions["course-1"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRepositoryFetchRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSyncRepository(db)

	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, deleted_at FROM deleted_enrollments WHERE id = ANY($1::uuid[])")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "deleted_at"}).AddRow([]byte("enr-1"), ts))

	rows, err := repo.FetchRows(context.Background(), EnrollmentTombstonesTable, []string{"enr-1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "enr-1", rows[0].ID())
	assert.Equal(t, ts, rows[0]["deleted_at"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRepositoryFetchRowsEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	rows, err := NewSyncRepository(db).FetchRows(context.Background(), CoursesTable, nil)
	require.NoError(t, err)
	assert.Nil(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRepositoryUpsertRowsLastWriteWins(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSyncRepository(db)

	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := []Row{
		{"id": "course-1", "name": "Algorithms", "capacity": int64(2), "is_deleted": false, "last_modified": ts},
		{"id": "course-2", "name": "Databases", "capacity": int64(3), "is_deleted": true, "last_modified": ts},
	}
	mock.ExpectExec(`(?s)INSERT INTO courses \(id, name, capacity, is_deleted, last_modified\) VALUES \(\$1, \$2, \$3, \$4, \$5\), \(\$6, \$7, \$8, \$9, \$10\).*ON CONFLICT \(id\) DO UPDATE SET name = EXCLUDED\.name.*WHERE courses\.last_modified < EXCLUDED\.last_modified`).
		WithArgs("course-1", "Algorithms", int64(2), false, ts, "course-2", "Databases", int64(3), true, ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	written, err := repo.UpsertRows(context.Background(), CoursesTable, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1), written)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeOrderPutsTombstonesFirst(t *testing.T) {
	order := MergeOrder()
	require.Len(t, order, 4)
	assert.Equal(t, TableDeletedCourses, order[0].Name)
	assert.Equal(t, TableDeletedEnrollments, order[1].Name)
	assert.Equal(t, TableCourses, order[2].Name)
	assert.Equal(t, TableEnrollments, order[3].Name)
}
