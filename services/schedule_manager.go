package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ScheduleManager runs the periodic background jobs.
type ScheduleManager struct {
	cron *cron.Cron
}

func NewScheduleManager() *ScheduleManager {
	return &ScheduleManager{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

// AddLogMaintenance schedules LogArchiveService.RunMaintenance on spec, a
// standard cron expression or descriptor such as "@hourly".
func (sm *ScheduleManager) AddLogMaintenance(spec string, las *LogArchiveService, archiveDays int) error {
	_, err := sm.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		las.RunMaintenance(ctx, archiveDays)
	})
	if err != nil {
		return fmt.Errorf("schedule log maintenance %q: %w", spec, err)
	}
	return nil
}

// Len reports the number of scheduled jobs.
func (sm *ScheduleManager) Len() int {
	return len(sm.cron.Entries())
}

func (sm *ScheduleManager) Start() {
	sm.cron.Start()
	logrus.WithField("jobs", sm.Len()).Info("Schedulers started")
}

// Stop waits for running jobs to finish or ctx to expire.
func (sm *ScheduleManager) Stop(ctx context.Context) {
	select {
	case <-sm.cron.Stop().Done():
	case <-ctx.Done():
	}
}
