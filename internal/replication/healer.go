package replication

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-sync/internal/cluster"
	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/internal/repository"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
	"github.com/noah-isme/sma-enrollment-sync/pkg/logger"
)

// HealObserver records rows moved by healing.
type HealObserver interface {
	ObserveHealMerge(table string, direction models.MergeDirection, imported int, failed bool)
}

// Healer converges leaders with a bidirectional last-write-wins merge.
type Healer struct {
	cluster  *cluster.Cluster
	observer HealObserver
	logger   *zap.Logger
}

// NewHealer constructs a Healer. observer may be nil.
func NewHealer(c *cluster.Cluster, observer HealObserver, l *zap.Logger) *Healer {
	return &Healer{cluster: c, observer: observer, logger: logger.Component(l, "healer")}
}

// tombstones holds the deleted ids of one leader, captured before merging.
type tombstones struct {
	courses     map[string]struct{}
	enrollments map[string]struct{}
}

// blocks returns the ids a destination refuses to import for table t.
func (ts tombstones) blocks(t repository.Table) map[string]struct{} {
	switch t.Name {
	case repository.TableCourses:
		return ts.courses
	case repository.TableEnrollments:
		return ts.enrollments
	default:
		return nil
	}
}

func captureTombstones(ctx context.Context, db sqlx.ExtContext) (tombstones, error) {
	courses, err := repository.NewCourseTombstoneRepository(db).IDs(ctx)
	if err != nil {
		return tombstones{}, err
	}
	enrollments, err := repository.NewEnrollmentTombstoneRepository(db).IDs(ctx)
	if err != nil {
		return tombstones{}, err
	}
	return tombstones{courses: courses, enrollments: enrollments}, nil
}

// HealAll heals the process' local leader against every other leader.
func (h *Healer) HealAll(ctx context.Context) (models.HealReport, error) {
	local := h.cluster.Local()
	return h.Heal(ctx, local, h.cluster.Others(local))
}

// Heal merges local with each remote: first pull (remote into local), then
// push (local into remote), table by table with tombstones first. Unreachable
// remotes are skipped and failed tables are reported without aborting the
// pass. Only an unreachable local leader fails the call.
func (h *Healer) Heal(ctx context.Context, local string, remotes []string) (models.HealReport, error) {
	report := models.HealReport{Local: local, StartedAt: time.Now().UTC()}

	localDB, err := h.cluster.Connect(ctx, local)
	if err != nil {
		return report, err
	}

	readCtx, cancel := h.cluster.OperationContext(ctx)
	localTombs, err := captureTombstones(readCtx, localDB)
	cancel()
	if err != nil {
		return report, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read local tombstones")
	}

	index := make(map[string]int, len(remotes))
	report.Remotes = make([]models.RemoteHeal, len(remotes))
	for i, id := range remotes {
		index[id] = i
		report.Remotes[i] = models.RemoteHeal{Leader: id, Unreachable: true}
	}

	results := h.cluster.Visit(ctx, remotes, func(ctx context.Context, remote string, remoteDB *sqlx.DB) error {
		heal := h.healRemote(ctx, localDB, localTombs, remote, remoteDB)
		report.Remotes[index[remote]] = heal
		if heal.Error != "" {
			return errors.New(heal.Error)
		}
		return nil
	})

	for _, res := range results {
		if res.Err != nil && report.Remotes[index[res.Leader]].Unreachable {
			report.Remotes[index[res.Leader]].Error = res.Err.Error()
			h.logger.Info("remote skipped during heal", logger.Leader(res.Leader), zap.Error(res.Err))
		}
	}

	report.FinishedAt = time.Now().UTC()
	h.logger.Info("heal finished",
		logger.Leader(local),
		zap.Int("imported", report.Imported()),
		zap.String("outcome", string(report.Outcome())),
	)
	return report, nil
}

func (h *Healer) healRemote(ctx context.Context, localDB *sqlx.DB, localTombs tombstones, remote string, remoteDB *sqlx.DB) models.RemoteHeal {
	heal := models.RemoteHeal{Leader: remote}

	readCtx, cancel := h.cluster.OperationContext(ctx)
	remoteTombs, err := captureTombstones(readCtx, remoteDB)
	cancel()
	if err != nil {
		heal.Error = fmt.Sprintf("read remote tombstones: %v", err)
		return heal
	}

	for _, t := range repository.MergeOrder() {
		heal.Merges = append(heal.Merges, h.merge(ctx, remoteDB, localDB, t, localTombs.blocks(t), models.DirectionPull))
	}
	for _, t := range repository.MergeOrder() {
		heal.Merges = append(heal.Merges, h.merge(ctx, localDB, remoteDB, t, remoteTombs.blocks(t), models.DirectionPush))
	}
	for _, m := range heal.Merges {
		if m.Error != "" {
			h.logger.Warn("table merge failed",
				logger.Leader(remote),
				zap.String("table", m.Table),
				zap.String("direction", string(m.Direction)),
				zap.String("error", m.Error),
			)
		}
	}
	return heal
}

// merge copies into dst every row of t that dst lacks or holds an older
// version of, except ids in blocked. The write is one transaction on dst.
func (h *Healer) merge(ctx context.Context, src, dst *sqlx.DB, t repository.Table, blocked map[string]struct{}, direction models.MergeDirection) models.TableMerge {
	result := models.TableMerge{Table: t.Name, Direction: direction}
	defer func() {
		if h.observer != nil {
			h.observer.ObserveHealMerge(t.Name, direction, result.Imported, result.Error != "")
		}
	}()

	opCtx, cancel := h.cluster.OperationContext(ctx)
	defer cancel()

	srcVersions, err := repository.NewSyncRepository(src).Versions(opCtx, t)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	dstVersions, err := repository.NewSyncRepository(dst).Versions(opCtx, t)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	ids := make([]string, 0)
	for id, version := range srcVersions {
		if _, deleted := blocked[id]; deleted {
			result.Skipped++
			continue
		}
		if current, ok := dstVersions[id]; ok && !version.After(current) {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return result
	}
	sort.Strings(ids)

	rows, err := repository.NewSyncRepository(src).FetchRows(opCtx, t, ids)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	written, err := upsertInTx(opCtx, dst, t, rows)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Imported = int(written)
	return result
}

func upsertInTx(ctx context.Context, db *sqlx.DB, t repository.Table, rows []repository.Row) (int64, error) {
	var written int64
	err := InTx(ctx, db, func(tx *sqlx.Tx) error {
		n, err := repository.NewSyncRepository(tx).UpsertRows(ctx, t, rows)
		written = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("merge %s: %w", t.Name, err)
	}
	return written, nil
}
