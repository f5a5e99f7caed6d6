package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"coldchain-rental-core/internal/config"
	"coldchain-rental-core/internal/jobs"
	"coldchain-rental-core/internal/logger"

	"github.com/robfig/cron/v3"
)

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
	log  *slog.Logger
}

// NewScheduler creates a scheduler and registers every job from cfg. A run
// still in progress when its next tick fires is skipped.
func NewScheduler(cfg config.SchedulerConfig, jobRunner *jobs.JobRunner) (*Scheduler, error) {
	log := logger.WithComponent("scheduler")
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
		log:  log,
	}
	if err := s.registerJobs(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs(cfg config.SchedulerConfig) error {
	entries := []struct {
		name string
		spec string
		run  func() error
	}{
		{jobs.JobExpireStaleRentals, cfg.ExpireStaleRentals, s.jobs.ExpireStaleRentals},
		{jobs.JobExpireStalePayments, cfg.ExpireStalePayments, s.jobs.ExpireStalePayments},
	}
	for _, e := range entries {
		run := e.run
		// Failures are already logged and counted by the runner.
		if _, err := s.cron.AddFunc(e.spec, func() { _ = run() }); err != nil {
			return fmt.Errorf("registering %s with schedule %q: %w", e.name, e.spec, err)
		}
		s.log.Info("Registered job", "job", e.name, "schedule", e.spec)
	}
	return nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Cron scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.log.Info("Stopping cron scheduler...")
	<-s.cron.Stop().Done()
	s.log.Info("Cron scheduler stopped")
}

// Entries lists the next run time of each registered job.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}
