// Package clustertest builds clusters backed by sqlmock databases.
package clustertest

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-enrollment-sync/internal/cluster"
	"github.com/noah-isme/sma-enrollment-sync/pkg/config"
)

// ErrRefused is returned by the opener of leaders marked as down.
var ErrRefused = errors.New("dial tcp: connection refused")

// Harness is a cluster whose reachable leaders are sqlmock databases.
type Harness struct {
	Cluster *cluster.Cluster
	Mocks   map[string]sqlmock.Sqlmock
}

// New builds a cluster over ids; ids[0] is the local leader and every id in
// down fails to connect.
func New(t testing.TB, ids []string, down ...string) *Harness {
	t.Helper()
	return NewWithTimeout(t, 5*time.Second, ids, down...)
}

// NewWithTimeout is New with the given per-operation timeout.
func NewWithTimeout(t testing.TB, operationTimeout time.Duration, ids []string, down ...string) *Harness {
	t.Helper()

	unreachable := make(map[string]bool, len(down))
	for _, id := range down {
		unreachable[id] = true
	}

	h := &Harness{Mocks: make(map[string]sqlmock.Sqlmock, len(ids))}
	pools := make(map[string]*sqlx.DB, len(ids))
	leaders := make([]config.LeaderConfig, 0, len(ids))
	for _, id := range ids {
		leaders = append(leaders, config.LeaderConfig{ID: id})
		if unreachable[id] {
			continue
		}
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
		if err != nil {
			t.Fatalf("sqlmock: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		pools[id] = sqlx.NewDb(db, "postgres")
		h.Mocks[id] = mock
	}

	opener := func(_ context.Context, leader config.LeaderConfig, _ time.Duration) (*sqlx.DB, error) {
		if pool, ok := pools[leader.ID]; ok {
			return pool, nil
		}
		return nil, ErrRefused
	}

	c, err := cluster.New(
		config.ClusterConfig{Leaders: leaders, LocalLeaders: []string{ids[0]}},
		config.ReplicationConfig{ConnectTimeout: time.Second, OperationTimeout: operationTimeout},
		cluster.WithOpener(opener),
	)
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	h.Cluster = c
	return h
}

// Mock returns the sqlmock of a reachable leader.
func (h *Harness) Mock(id string) sqlmock.Sqlmock {
	return h.Mocks[id]
}

// ExpectNow queues a clock read on the leader.
func (h *Harness) ExpectNow(id string, now time.Time) {
	h.Mocks[id].ExpectQuery(`SELECT NOW\(\) AT TIME ZONE 'UTC'`).
		WillReturnRows(sqlmock.NewRows([]string{"now"}).AddRow(now))
}

// ExpectationsWereMet fails the test when any leader has unmet expectations.
func (h *Harness) ExpectationsWereMet(t testing.TB) {
	t.Helper()
	for id, mock := range h.Mocks {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("leader %s: %v", id, err)
		}
	}
}
