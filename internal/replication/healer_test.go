package replication

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-enrollment-sync/internal/cluster/clustertest"
	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/internal/repository"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
)

type version struct {
	id string
	at time.Time
}

func expectTombstoneIDs(mock sqlmock.Sqlmock, courses, enrollments []string) {
	courseRows := sqlmock.NewRows([]string{"id"})
	for _, id := range courses {
		courseRows.AddRow(id)
	}
	enrollmentRows := sqlmock.NewRows([]string{"id"})
	for _, id := range enrollments {
		enrollmentRows.AddRow(id)
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM deleted_courses")).WillReturnRows(courseRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM deleted_enrollments")).WillReturnRows(enrollmentRows)
}

func expectVersions(mock sqlmock.Sqlmock, t repository.Table, versions ...version) {
	rows := sqlmock.NewRows([]string{"id", "version"})
	for _, v := range versions {
		rows.AddRow(v.id, v.at)
	}
	query := fmt.Sprintf("SELECT id, %s AS version FROM %s", t.VersionColumn, t.Name)
	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(rows)
}

func expectFetch(mock sqlmock.Sqlmock, t repository.Table, rows *sqlmock.Rows) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM " + t.Name + " WHERE id = ANY($1::uuid[])")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)
}

func expectUpsert(mock sqlmock.Sqlmock, t repository.Table, args ...interface{}) {
	values := make([]driver.Value, 0, len(args))
	for _, a := range args {
		values = append(values, a)
	}
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO " + t.Name + " (")).
		WithArgs(values...).
		WillReturnResult(sqlmock.NewResult(0, int64(len(args)/len(t.Columns))))
	mock.ExpectCommit()
}

// expectQuietPass queues a heal pass in which both sides already agree.
func expectQuietPass(local, remote sqlmock.Sqlmock, state map[string][]version) {
	for _, t := range repository.MergeOrder() {
		expectVersions(remote, t, state[t.Name]...)
		expectVersions(local, t, state[t.Name]...)
	}
	for _, t := range repository.MergeOrder() {
		expectVersions(local, t, state[t.Name]...)
		expectVersions(remote, t, state[t.Name]...)
	}
}

type healRecorder struct {
	imported map[string]int
}

func (r *healRecorder) ObserveHealMerge(table string, direction models.MergeDirection, imported int, _ bool) {
	r.imported[table+"/"+string(direction)] += imported
}

func TestHealMergesBothDirectionsWithAntiResurrection(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B"})
	a, b := h.Mock("A"), h.Mock("B")

	t1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t1.Add(2 * time.Minute)

	// A removed e1 at t1; B still holds e1 with a later edit.
	expectTombstoneIDs(a, nil, []string{"e1"})
	expectTombstoneIDs(b, nil, nil)

	// pull B -> A
	expectVersions(b, repository.CourseTombstonesTable)
	expectVersions(a, repository.CourseTombstonesTable)
	expectVersions(b, repository.EnrollmentTombstonesTable)
	expectVersions(a, repository.EnrollmentTombstonesTable, version{"e1", t1})
	expectVersions(b, repository.CoursesTable, version{"c1", t2})
	expectVersions(a, repository.CoursesTable, version{"c1", t1})
	expectFetch(b, repository.CoursesTable, sqlmock.NewRows(repository.CoursesTable.Columns).
		AddRow("c1", "Algorithms", int64(3), false, t2))
	expectUpsert(a, repository.CoursesTable, "c1", "Algorithms", int64(3), false, t2)
	expectVersions(b, repository.EnrollmentsTable, version{"e1", t3}, version{"e2", t2})
	expectVersions(a, repository.EnrollmentsTable, version{"e1", t1})
	expectFetch(b, repository.EnrollmentsTable, sqlmock.NewRows(repository.EnrollmentsTable.Columns).
		AddRow("e2", "c1", "Bob", t2, "ACCEPTED", t2))
	expectUpsert(a, repository.EnrollmentsTable, "e2", "c1", "Bob", t2, "ACCEPTED", t2)

	// push A -> B
	expectVersions(a, repository.CourseTombstonesTable)
	expectVersions(b, repository.CourseTombstonesTable)
	expectVersions(a, repository.EnrollmentTombstonesTable, version{"e1", t1})
	expectVersions(b, repository.EnrollmentTombstonesTable)
	expectFetch(a, repository.EnrollmentTombstonesTable, sqlmock.NewRows(repository.EnrollmentTombstonesTable.Columns).
		AddRow("e1", t1))
	expectUpsert(b, repository.EnrollmentTombstonesTable, "e1", t1)
	expectVersions(a, repository.CoursesTable, version{"c1", t2})
	expectVersions(b, repository.CoursesTable, version{"c1", t2})
	expectVersions(a, repository.EnrollmentsTable, version{"e1", t1}, version{"e2", t2})
	expectVersions(b, repository.EnrollmentsTable, version{"e1", t3}, version{"e2", t2})

	recorder := &healRecorder{imported: map[string]int{}}
	report, err := NewHealer(h.Cluster, recorder, nil).Heal(context.Background(), "A", []string{"B"})
	require.NoError(t, err)

	require.Len(t, report.Remotes, 1)
	remote := report.Remotes[0]
	assert.False(t, remote.Unreachable)
	assert.False(t, remote.Failed())
	require.Len(t, remote.Merges, 8)
	assert.Equal(t, 1, remote.Merges[2].Imported)
	assert.Equal(t, 1, remote.Merges[3].Imported)
	assert.Equal(t, 1, remote.Merges[3].Skipped)
	assert.Equal(t, 1, remote.Merges[5].Imported)
	assert.Equal(t, 3, report.Imported())
	assert.Equal(t, models.OutcomeSuccess, report.Outcome())
	assert.Equal(t, 1, recorder.imported["enrollments/pull"])
	assert.Equal(t, 1, recorder.imported["deleted_enrollments/push"])
	h.ExpectationsWereMet(t)
}

func TestHealIsIdempotentOnceConverged(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B"})
	a, b := h.Mock("A"), h.Mock("B")
	t1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	state := map[string][]version{
		repository.TableDeletedEnrollments: {{"e1", t1}},
		repository.TableCourses:            {{"c1", t1}},
		repository.TableEnrollments:        {{"e1", t1}, {"e2", t1}},
	}
	for i := 0; i < 2; i++ {
		expectTombstoneIDs(a, nil, []string{"e1"})
		expectTombstoneIDs(b, nil, []string{"e1"})
		expectQuietPass(a, b, state)
	}

	healer := NewHealer(h.Cluster, nil, nil)
	for i := 0; i < 2; i++ {
		report, err := healer.Heal(context.Background(), "A", []string{"B"})
		require.NoError(t, err)
		assert.Zero(t, report.Imported())
		assert.Equal(t, models.OutcomeSuccess, report.Outcome())
	}
	h.ExpectationsWereMet(t)
}

func TestHealKeepsNewestVersionOnBothSides(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B"})
	a, b := h.Mock("A"), h.Mock("B")
	older := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	expectTombstoneIDs(a, nil, nil)
	expectTombstoneIDs(b, nil, nil)

	expectVersions(b, repository.CourseTombstonesTable)
	expectVersions(a, repository.CourseTombstonesTable)
	expectVersions(b, repository.EnrollmentTombstonesTable)
	expectVersions(a, repository.EnrollmentTombstonesTable)
	expectVersions(b, repository.CoursesTable, version{"c1", older})
	expectVersions(a, repository.CoursesTable, version{"c1", newer})
	expectVersions(b, repository.EnrollmentsTable)
	expectVersions(a, repository.EnrollmentsTable)

	expectVersions(a, repository.CourseTombstonesTable)
	expectVersions(b, repository.CourseTombstonesTable)
	expectVersions(a, repository.EnrollmentTombstonesTable)
	expectVersions(b, repository.EnrollmentTombstonesTable)
	expectVersions(a, repository.CoursesTable, version{"c1", newer})
	expectVersions(b, repository.CoursesTable, version{"c1", older})
	expectFetch(a, repository.CoursesTable, sqlmock.NewRows(repository.CoursesTable.Columns).
		AddRow("c1", "Algorithms", int64(4), false, newer))
	expectUpsert(b, repository.CoursesTable, "c1", "Algorithms", int64(4), false, newer)
	expectVersions(a, repository.EnrollmentsTable)
	expectVersions(b, repository.EnrollmentsTable)

	report, err := NewHealer(h.Cluster, nil, nil).Heal(context.Background(), "A", []string{"B"})
	require.NoError(t, err)
	merges := report.Remotes[0].Merges
	assert.Zero(t, merges[2].Imported, "older remote copy must not overwrite local")
	assert.Equal(t, 1, merges[6].Imported)
	h.ExpectationsWereMet(t)
}

func TestHealSkipsUnreachableAndReportsFailedTables(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B", "C"}, "C")
	a, b := h.Mock("A"), h.Mock("B")
	t1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	expectTombstoneIDs(a, nil, nil)
	expectTombstoneIDs(b, nil, nil)

	expectVersions(b, repository.CourseTombstonesTable)
	expectVersions(a, repository.CourseTombstonesTable)
	expectVersions(b, repository.EnrollmentTombstonesTable)
	expectVersions(a, repository.EnrollmentTombstonesTable)
	expectVersions(b, repository.CoursesTable, version{"c1", t1})
	expectVersions(a, repository.CoursesTable)
	expectFetch(b, repository.CoursesTable, sqlmock.NewRows(repository.CoursesTable.Columns).
		AddRow("c1", "Algorithms", int64(3), false, t1))
	a.ExpectBegin()
	a.ExpectExec(regexp.QuoteMeta("INSERT INTO courses (")).WillReturnError(errors.New("disk full"))
	a.ExpectRollback()
	expectVersions(b, repository.EnrollmentsTable)
	expectVersions(a, repository.EnrollmentsTable)
	for _, tbl := range repository.MergeOrder() {
		expectVersions(a, tbl)
		expectVersions(b, tbl)
	}

	report, err := NewHealer(h.Cluster, nil, nil).Heal(context.Background(), "A", []string{"B", "C"})
	require.NoError(t, err)
	require.Len(t, report.Remotes, 2)

	assert.True(t, report.Remotes[0].Failed())
	assert.Contains(t, report.Remotes[0].Merges[2].Error, "disk full")
	assert.Empty(t, report.Remotes[0].Merges[3].Error)
	assert.True(t, report.Remotes[1].Unreachable)
	assert.Equal(t, models.OutcomeFailed, report.Outcome())
	h.ExpectationsWereMet(t)
}

func TestHealFailsWhenLocalUnreachable(t *testing.T) {
	h := clustertest.New(t, []string{"A", "B"}, "A")

	_, err := NewHealer(h.Cluster, nil, nil).Heal(context.Background(), "A", []string{"B"})
	assert.ErrorIs(t, err, appErrors.ErrLeaderUnreachable)
	h.ExpectationsWereMet(t)
}
