package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/solutionhub/platform/pkg/common/logger"
)

// Scheduler owns the service's periodic work: the incremental sync run
// and the notification retry sweep.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine
}

// SweepFunc is the notification sweeper's entry point.
type SweepFunc func(ctx context.Context) (retried, expired int)

func NewScheduler(engine *Engine) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		engine: engine,
	}
}

// Start registers the jobs and kicks off the cron loop. An initial sync
// runs immediately so a freshly deployed service does not wait a full
// interval for data.
func (s *Scheduler) Start(ctx context.Context, syncInterval, sweepInterval time.Duration, sweep SweepFunc) error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", syncInterval), func() {
		s.runSync(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling sync job: %w", err)
	}

	if sweep != nil {
		_, err = s.cron.AddFunc(fmt.Sprintf("@every %s", sweepInterval), func() {
			retried, expired := sweep(ctx)
			if retried > 0 || expired > 0 {
				logger.Log.WithFields(map[string]interface{}{
					"retried": retried,
					"expired": expired,
				}).Info("notification sweep finished")
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling sweep job: %w", err)
		}
	}

	s.cron.Start()
	go s.runSync(ctx)

	logger.Log.WithFields(map[string]interface{}{
		"sync_interval":  syncInterval.String(),
		"sweep_interval": sweepInterval.String(),
	}).Info("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runSync(ctx context.Context) {
	if _, err := s.engine.RunScheduled(ctx); err != nil {
		if errors.Is(err, ErrSyncRunning) {
			logger.Log.Warn("scheduled sync skipped, previous run still in flight")
			return
		}
		logger.Log.WithError(err).Error("scheduled sync failed")
	}
}
