package replication

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-sync/internal/cluster"
	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
	"github.com/noah-isme/sma-enrollment-sync/pkg/logger"
)

// PropagationObserver records per-leader replication outcomes.
type PropagationObserver interface {
	ObservePropagation(leader string, ok bool)
}

// Propagator commits operation batches on the entry leader and replays them,
// best effort, on every other leader.
type Propagator struct {
	cluster  *cluster.Cluster
	observer PropagationObserver
	logger   *zap.Logger
}

// NewPropagator constructs a Propagator. observer may be nil.
func NewPropagator(c *cluster.Cluster, observer PropagationObserver, l *zap.Logger) *Propagator {
	return &Propagator{cluster: c, observer: observer, logger: logger.Component(l, "propagator")}
}

// Commit applies ops atomically on leader within the operation timeout. A
// transaction failure is returned as ErrStoreConflict, a connection failure
// as ErrLeaderUnreachable.
func (p *Propagator) Commit(ctx context.Context, leader string, ops []Operation) error {
	db, err := p.cluster.Connect(ctx, leader)
	if err != nil {
		return err
	}
	opCtx, cancel := p.cluster.OperationContext(ctx)
	defer cancel()
	if err := applyInTx(opCtx, db, ops); err != nil {
		p.logger.Warn("local commit failed", logger.Leader(leader), zap.Error(err))
		return appErrors.WrapAs(appErrors.ErrStoreConflict, err, fmt.Sprintf("transaction on leader %s failed", leader))
	}
	return nil
}

// Propagate replays ops, in order, in one transaction per leader other than
// entry. Each leader succeeds or fails on its own.
func (p *Propagator) Propagate(ctx context.Context, entry string, ops []Operation) models.PropagationReport {
	results := p.cluster.FanOut(ctx, p.cluster.Others(entry), func(ctx context.Context, _ string, db *sqlx.DB) error {
		return applyInTx(ctx, db, ops)
	})
	for _, res := range results {
		if p.observer != nil {
			p.observer.ObservePropagation(res.Leader, res.Err == nil)
		}
		if res.Err != nil {
			p.logger.Warn("propagation failed", logger.Leader(res.Leader), zap.Error(res.Err))
		}
	}
	return results.Report()
}

func applyInTx(ctx context.Context, db *sqlx.DB, ops []Operation) error {
	return InTx(ctx, db, func(tx *sqlx.Tx) error {
		return ApplyAll(ctx, tx, ops)
	})
}

// InTx runs fn inside one transaction on db. The transaction is rolled back
// when fn or the commit fails.
func InTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
