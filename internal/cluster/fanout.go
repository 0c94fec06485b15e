package cluster

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/pkg/logger"
)

// LeaderFunc is the work performed against one reachable leader.
type LeaderFunc func(ctx context.Context, leader string, db *sqlx.DB) error

// Result is the outcome of a LeaderFunc on one leader.
type Result struct {
	Leader  string
	Err     error
	Elapsed time.Duration
}

// Results holds one Result per visited leader, in visiting order.
type Results []Result

// Succeeded returns the leaders whose attempt returned no error.
func (r Results) Succeeded() []string {
	ids := make([]string, 0, len(r))
	for _, res := range r {
		if res.Err == nil {
			ids = append(ids, res.Leader)
		}
	}
	return ids
}

// Failed maps every failed leader to its error.
func (r Results) Failed() map[string]error {
	failed := make(map[string]error)
	for _, res := range r {
		if res.Err != nil {
			failed[res.Leader] = res.Err
		}
	}
	return failed
}

// Report converts the results into a propagation report.
func (r Results) Report() models.PropagationReport {
	report := models.NewPropagationReport()
	for _, res := range r {
		if res.Err != nil {
			report.Failed[res.Leader] = res.Err.Error()
			continue
		}
		report.Succeeded = append(report.Succeeded, res.Leader)
	}
	sort.Strings(report.Succeeded)
	return report
}

// FanOut connects to each leader, runs fn and continues regardless of the
// outcome. Every attempt is bounded by the operation timeout. Attempts run
// concurrently when parallel replication is enabled.
func (c *Cluster) FanOut(ctx context.Context, ids []string, fn LeaderFunc) Results {
	return c.run(ctx, ids, fn, true)
}

// Visit is FanOut without the per-attempt operation timeout, for long
// multi-step work such as healing where fn bounds each step itself with
// OperationContext.
func (c *Cluster) Visit(ctx context.Context, ids []string, fn LeaderFunc) Results {
	return c.run(ctx, ids, fn, false)
}

func (c *Cluster) run(ctx context.Context, ids []string, fn LeaderFunc, bounded bool) Results {
	results := make(Results, len(ids))
	if !c.settings.Parallel || len(ids) < 2 {
		for i, id := range ids {
			results[i] = c.attempt(ctx, id, fn, bounded)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = c.attempt(ctx, id, fn, bounded)
		}(i, id)
	}
	wg.Wait()
	return results
}

func (c *Cluster) attempt(ctx context.Context, id string, fn LeaderFunc, bounded bool) Result {
	start := time.Now()
	db, err := c.Connect(ctx, id)
	if err != nil {
		return Result{Leader: id, Err: err, Elapsed: time.Since(start)}
	}

	opCtx, cancel := ctx, context.CancelFunc(func() {})
	if bounded {
		opCtx, cancel = c.OperationContext(ctx)
	}
	defer cancel()

	if err := fn(opCtx, id, db); err != nil {
		c.logger.Warn("leader attempt failed", logger.Leader(id), zap.Error(err))
		return Result{Leader: id, Err: err, Elapsed: time.Since(start)}
	}
	return Result{Leader: id, Elapsed: time.Since(start)}
}
