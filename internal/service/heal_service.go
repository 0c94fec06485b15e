package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
	"github.com/noah-isme/sma-enrollment-sync/pkg/jobs"
)

const healJobType = "heal"

// Healer runs one heal pass from the local leader.
type Healer interface {
	HealAll(ctx context.Context) (models.HealReport, error)
}

// HealConfig governs background healing.
type HealConfig struct {
	OnStartup  bool
	Interval   time.Duration
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// HealService runs heal passes on demand, at startup and periodically. Only
// one pass runs at a time.
type HealService struct {
	healer  Healer
	metrics *MetricsService
	queue   *jobs.Queue
	cfg     HealConfig
	logger  *zap.Logger

	running sync.Mutex
	mu      sync.RWMutex
	last    *models.HealReport
	stop    context.CancelFunc
	done    chan struct{}
}

// NewHealService constructs the service and its retrying job queue.
func NewHealService(healer Healer, metrics *MetricsService, cfg HealConfig, l *zap.Logger) *HealService {
	if l == nil {
		l = zap.NewNop()
	}
	s := &HealService{healer: healer, metrics: metrics, cfg: cfg, logger: l}
	s.queue = jobs.NewQueue(healJobType, s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: 1,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     l,
	})
	return s
}

// RunNow runs a heal pass synchronously. A pass already in progress yields
// ErrConflict.
func (s *HealService) RunNow(ctx context.Context) (*models.HealReport, error) {
	if !s.running.TryLock() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "heal already running")
	}
	defer s.running.Unlock()

	report, err := s.healer.HealAll(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveHealCompleted(report.FinishedAt)

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	s.logger.Info("heal pass finished",
		zap.String("local", report.Local),
		zap.Int("imported", report.Imported()),
		zap.String("outcome", string(report.Outcome())),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	return &report, nil
}

// Last returns the report of the most recent completed pass.
func (s *HealService) Last() *models.HealReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Trigger schedules a background pass. A pass already waiting absorbs the
// request.
func (s *HealService) Trigger(reason string) error {
	err := s.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: healJobType, Payload: reason})
	if errors.Is(err, jobs.ErrQueueFull) {
		s.logger.Debug("heal already pending", zap.String("reason", reason))
		return nil
	}
	return err
}

// Start launches the job workers, the startup pass and the periodic ticker.
func (s *HealService) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	s.done = make(chan struct{})
	s.queue.Start(ctx)

	if s.cfg.OnStartup {
		if err := s.Trigger("startup"); err != nil {
			s.logger.Warn("failed to schedule startup heal", zap.Error(err))
		}
	}

	go func() {
		defer close(s.done)
		if s.cfg.Interval <= 0 {
			<-ctx.Done()
			return
		}
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Trigger("interval"); err != nil {
					s.logger.Warn("failed to schedule periodic heal", zap.Error(err))
				}
			}
		}
	}()
}

// Stop halts the ticker and waits for running jobs.
func (s *HealService) Stop() {
	if s.stop == nil {
		return
	}
	s.stop()
	<-s.done
	s.queue.Stop()
}

func (s *HealService) handle(ctx context.Context, job jobs.Job) error {
	report, err := s.RunNow(ctx)
	switch {
	case errors.Is(err, appErrors.ErrConflict):
		return nil
	case err != nil:
		return err
	case report.Outcome() == models.OutcomeFailed:
		return fmt.Errorf("heal %v reached no remote leader", job.Payload)
	}
	return nil
}
