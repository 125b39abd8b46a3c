package session

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/pkg/logger"
)

// Sweeper periodically evicts in-process fallback sessions older than the
// store TTL, since the fallback has no expiry of its own.
type Sweeper struct {
	store    *Store
	schedule string
	cron     *cron.Cron
}

func NewSweeper(store *Store, schedule string) *Sweeper {
	return &Sweeper{
		store:    store,
		schedule: schedule,
		cron:     cron.New(),
	}
}

func (sw *Sweeper) Start() error {
	_, err := sw.cron.AddFunc(sw.schedule, func() {
		sw.RunOnce()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}

	sw.cron.Start()
	logger.Info("Session fallback sweeper started", zap.String("schedule", sw.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (sw *Sweeper) Stop() {
	<-sw.cron.Stop().Done()
	logger.Info("Session fallback sweeper stopped")
}

func (sw *Sweeper) RunOnce() int {
	removed := sw.store.SweepFallback(sw.store.TTL())
	if removed > 0 {
		logger.Info("Expired fallback sessions removed", zap.Int("removed", removed))
	}
	return removed
}
