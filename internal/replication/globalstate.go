package replication

import (
	"context"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-sync/internal/cluster"
	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/internal/queue"
	"github.com/noah-isme/sma-enrollment-sync/internal/repository"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
	"github.com/noah-isme/sma-enrollment-sync/pkg/logger"
)

// Snapshot is the union of a course queue across reachable leaders.
type Snapshot struct {
	Records []models.Enrollment
	Reached []string
	Skipped map[string]string
}

// Reader builds global views of course queues.
type Reader struct {
	cluster *cluster.Cluster
	logger  *zap.Logger
}

// NewReader constructs a Reader.
func NewReader(c *cluster.Cluster, l *zap.Logger) *Reader {
	return &Reader{cluster: c, logger: logger.Component(l, "globalstate")}
}

// Snapshot collects the non-removed enrollments of courseID from every
// reachable leader, deduplicated by id and ordered by (enrolled_at, id).
// Leaders that cannot be read are skipped; when none can be read the call
// fails with ErrNoLeaderReachable.
func (r *Reader) Snapshot(ctx context.Context, courseID string) (Snapshot, error) {
	var (
		mu   sync.Mutex
		byID = make(map[string]models.Enrollment)
	)
	results := r.cluster.FanOut(ctx, r.cluster.IDs(), func(ctx context.Context, leader string, db *sqlx.DB) error {
		records, err := repository.NewEnrollmentRepository(db).ListQueued(ctx, courseID)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		for _, rec := range records {
			rec.EnrolledAt = models.NormalizeTime(rec.EnrolledAt)
			rec.LastModified = models.NormalizeTime(rec.LastModified)
			if seen, ok := byID[rec.ID]; ok && !rec.LastModified.After(seen.LastModified) {
				continue
			}
			byID[rec.ID] = rec
		}
		return nil
	})

	snap := Snapshot{Reached: results.Succeeded(), Skipped: make(map[string]string)}
	for leader, err := range results.Failed() {
		snap.Skipped[leader] = err.Error()
		r.logger.Info("leader skipped in global read", logger.Leader(leader), zap.Error(err))
	}
	if len(snap.Reached) == 0 {
		return Snapshot{}, appErrors.ErrNoLeaderReachable
	}

	snap.Records = make([]models.Enrollment, 0, len(byID))
	for _, rec := range byID {
		snap.Records = append(snap.Records, rec)
	}
	queue.Order(snap.Records)
	sort.Strings(snap.Reached)
	return snap, nil
}

// HasActive reports whether student holds a non-removed record in the snapshot.
func (s Snapshot) HasActive(student string) bool {
	for _, rec := range s.Records {
		if rec.StudentName == student && rec.Status != models.EnrollmentStatusRemoved {
			return true
		}
	}
	return false
}
