package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/pkg/config"
	"github.com/noah-isme/sma-enrollment-sync/pkg/database"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
	"github.com/noah-isme/sma-enrollment-sync/pkg/logger"
)

// Opener opens a connection pool for one leader. The first round trip must
// honour timeout.
type Opener func(ctx context.Context, leader config.LeaderConfig, timeout time.Duration) (*sqlx.DB, error)

// PostgresOpener is the production Opener.
func PostgresOpener(ctx context.Context, leader config.LeaderConfig, timeout time.Duration) (*sqlx.DB, error) {
	return database.NewPostgres(ctx, leader.Database, timeout)
}

// Observer receives connectivity transitions, typically for metrics.
type Observer interface {
	ObserveLeaderReachability(leader string, reachable bool)
}

// Option customises a Cluster.
type Option func(*Cluster)

// WithOpener replaces the pool opener.
func WithOpener(open Opener) Option {
	return func(c *Cluster) {
		if open != nil {
			c.open = open
		}
	}
}

// WithLogger sets the cluster logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cluster) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers a connectivity observer.
func WithObserver(o Observer) Option {
	return func(c *Cluster) { c.observer = o }
}

// Cluster is the fixed leader table of this process. Pools are opened lazily
// and cached per leader.
type Cluster struct {
	leaders  []config.LeaderConfig
	local    []string
	settings config.ReplicationConfig
	open     Opener
	observer Observer
	logger   *zap.Logger

	mu    sync.Mutex
	pools map[string]*sqlx.DB
}

// New builds a Cluster from configuration.
func New(cfg config.ClusterConfig, settings config.ReplicationConfig, opts ...Option) (*Cluster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cluster configuration")
	}
	leaders := make([]config.LeaderConfig, len(cfg.Leaders))
	copy(leaders, cfg.Leaders)
	local := make([]string, len(cfg.LocalLeaders))
	copy(local, cfg.LocalLeaders)

	c := &Cluster{
		leaders:  leaders,
		local:    local,
		settings: settings,
		open:     PostgresOpener,
		logger:   zap.NewNop(),
		pools:    make(map[string]*sqlx.DB, len(leaders)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.Component(c.logger, "cluster")
	return c, nil
}

// IDs returns every leader id in configuration order.
func (c *Cluster) IDs() []string {
	ids := make([]string, 0, len(c.leaders))
	for _, l := range c.leaders {
		ids = append(ids, l.ID)
	}
	return ids
}

// Local returns the default entry leader of this process.
func (c *Cluster) Local() string {
	return c.local[0]
}

// IsLocal reports whether id is one of this process' entry leaders.
func (c *Cluster) IsLocal(id string) bool {
	for _, l := range c.local {
		if l == id {
			return true
		}
	}
	return false
}

// Has reports whether id is a configured leader.
func (c *Cluster) Has(id string) bool {
	_, ok := c.leader(id)
	return ok
}

// Others returns every leader except id, in configuration order.
func (c *Cluster) Others(id string) []string {
	ids := make([]string, 0, len(c.leaders))
	for _, l := range c.leaders {
		if l.ID != id {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

// Settings exposes the replication timeouts and tuning.
func (c *Cluster) Settings() config.ReplicationConfig {
	return c.settings
}

func (c *Cluster) leader(id string) (config.LeaderConfig, bool) {
	for _, l := range c.leaders {
		if l.ID == id {
			return l, true
		}
	}
	return config.LeaderConfig{}, false
}

// Connect returns a live pool for the leader. Any failure to reach it within
// the connect timeout is reported as ErrLeaderUnreachable.
func (c *Cluster) Connect(ctx context.Context, id string) (*sqlx.DB, error) {
	leader, ok := c.leader(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnknownLeader, fmt.Sprintf("leader %s is not configured", id))
	}

	connectCtx := ctx
	if c.settings.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, c.settings.ConnectTimeout)
		defer cancel()
	}

	c.mu.Lock()
	pool := c.pools[id]
	c.mu.Unlock()

	if pool != nil {
		if err := pool.PingContext(connectCtx); err != nil {
			return nil, c.unreachable(id, err)
		}
		c.reachable(id)
		return pool, nil
	}

	pool, err := c.open(connectCtx, leader, c.settings.ConnectTimeout)
	if err != nil {
		return nil, c.unreachable(id, err)
	}

	c.mu.Lock()
	if existing := c.pools[id]; existing != nil {
		c.mu.Unlock()
		_ = pool.Close()
		c.reachable(id)
		return existing, nil
	}
	c.pools[id] = pool
	c.mu.Unlock()

	c.reachable(id)
	return pool, nil
}

func (c *Cluster) unreachable(id string, err error) error {
	c.logger.Warn("leader unreachable", logger.Leader(id), zap.Error(err))
	if c.observer != nil {
		c.observer.ObserveLeaderReachability(id, false)
	}
	return appErrors.WrapAs(appErrors.ErrLeaderUnreachable, err, fmt.Sprintf("leader %s unreachable", id))
}

func (c *Cluster) reachable(id string) {
	if c.observer != nil {
		c.observer.ObserveLeaderReachability(id, true)
	}
}

// FirstReachable returns the first leader, in configuration order, that
// accepts a connection.
func (c *Cluster) FirstReachable(ctx context.Context) (string, *sqlx.DB, error) {
	for _, id := range c.IDs() {
		db, err := c.Connect(ctx, id)
		if err == nil {
			return id, db, nil
		}
	}
	return "", nil, appErrors.ErrNoLeaderReachable
}

// Now reads the leader's database clock as a UTC wall-clock time.
func (c *Cluster) Now(ctx context.Context, id string) (time.Time, error) {
	db, err := c.Connect(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	opCtx, cancel := c.OperationContext(ctx)
	defer cancel()

	var now time.Time
	if err := db.GetContext(opCtx, &now, `SELECT NOW() AT TIME ZONE 'UTC'`); err != nil {
		return time.Time{}, c.unreachable(id, err)
	}
	return models.NormalizeTime(now), nil
}

// NowAny reads the clock of the first leader that answers.
func (c *Cluster) NowAny(ctx context.Context) (time.Time, string, error) {
	for _, id := range c.IDs() {
		now, err := c.Now(ctx, id)
		if err == nil {
			return now, id, nil
		}
	}
	return time.Time{}, "", appErrors.ErrNoLeaderReachable
}

// Ping checks connectivity to every leader.
func (c *Cluster) Ping(ctx context.Context) []models.LeaderStatus {
	results := c.FanOut(ctx, c.IDs(), func(context.Context, string, *sqlx.DB) error { return nil })
	statuses := make([]models.LeaderStatus, 0, len(results))
	for _, r := range results {
		status := models.LeaderStatus{Leader: r.Leader, Reachable: r.Err == nil, Latency: r.Elapsed}
		if r.Err != nil {
			status.Error = r.Err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// OperationContext bounds a single leader interaction by the operation
// timeout.
func (c *Cluster) OperationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.settings.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.settings.OperationTimeout)
}

// Close releases every cached pool.
func (c *Cluster) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for id, pool := range c.pools {
		if err := pool.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close leader %s: %w", id, err)
		}
		delete(c.pools, id)
	}
	return firstErr
}
