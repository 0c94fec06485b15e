package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
)

type stubHealer struct {
	calls   int32
	block   chan struct{}
	entered chan struct{}
	results []error
	mu      sync.Mutex
}

func (h *stubHealer) HealAll(context.Context) (models.HealReport, error) {
	n := atomic.AddInt32(&h.calls, 1)
	if h.entered != nil {
		h.entered <- struct{}{}
	}
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(n) <= len(h.results) && h.results[n-1] != nil {
		return models.HealReport{}, h.results[n-1]
	}
	return models.HealReport{
		Local:      "A",
		StartedAt:  t1,
		FinishedAt: t2,
		Remotes: []models.RemoteHeal{{
			Leader: "B",
			Merges: []models.TableMerge{{Table: "enrollments", Direction: models.DirectionPull, Imported: 2}},
		}},
	}, nil
}

func TestHealRunNowRecordsLastReport(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewHealService(&stubHealer{}, metrics, HealConfig{}, nil)
	assert.Nil(t, svc.Last())

	report, err := svc.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported())
	require.NotNil(t, svc.Last())
	assert.Equal(t, "A", svc.Last().Local)
}

func TestHealRunNowRejectsConcurrentPass(t *testing.T) {
	healer := &stubHealer{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	svc := NewHealService(healer, nil, HealConfig{}, nil)

	errs := make(chan error, 1)
	go func() {
		_, err := svc.RunNow(context.Background())
		errs <- err
	}()
	<-healer.entered

	_, err := svc.RunNow(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	close(healer.block)
	require.NoError(t, <-errs)
}

func TestHealStartupPassRetriesOnError(t *testing.T) {
	healer := &stubHealer{results: []error{appErrors.ErrLeaderUnreachable}}
	svc := NewHealService(healer, nil, HealConfig{OnStartup: true, MaxRetries: 2, RetryDelay: time.Millisecond}, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	assert.Eventually(t, func() bool { return svc.Last() != nil }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&healer.calls))
}

func TestHealIntervalTriggersPasses(t *testing.T) {
	healer := &stubHealer{}
	svc := NewHealService(healer, nil, HealConfig{Interval: 5 * time.Millisecond}, nil)
	svc.Start(context.Background())

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&healer.calls) >= 2 }, 2*time.Second, 5*time.Millisecond)
	svc.Stop()
}

func TestHealErrorIsReturned(t *testing.T) {
	svc := NewHealService(&stubHealer{results: []error{errors.New("boom")}}, nil, HealConfig{}, nil)

	_, err := svc.RunNow(context.Background())
	assert.EqualError(t, err, "boom")
	assert.Nil(t, svc.Last())
}
