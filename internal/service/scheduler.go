package service

import (
	"context"
	"errors"
	"fmt"

	gocron "github.com/go-co-op/gocron/v2"
)

// Start schedules the periodic update check on a background goroutine. The
// first check happens one interval after Start. Starting a running
// supervisor does nothing.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.running.Load() {
		s.logger.DebugContext(ctx, "scheduled updates already running")
		return nil
	}

	scheduler, job, err := s.newScheduler(ctx)
	if err != nil {
		return err
	}
	s.scheduler = scheduler
	s.running.Store(true)
	scheduler.Start()

	s.statusMx.Lock()
	s.job = job
	s.status.Starts++
	s.statusMx.Unlock()

	s.logger.InfoContext(ctx, "scheduled updates started",
		"interval_hours", s.cfg.Interval.Hours(),
		"cron", s.cfg.Cron,
		"repository", s.cfg.Repository)
	return nil
}

// Stop clears the running flag and waits up to StopTimeout for an in-flight
// check. The check itself is never interrupted.
func (s *Supervisor) Stop() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.scheduler == nil {
		return nil
	}

	s.running.Store(false)
	scheduler := s.scheduler
	s.scheduler = nil
	s.statusMx.Lock()
	s.job = nil
	s.statusMx.Unlock()

	if err := scheduler.Shutdown(); err != nil {
		s.logger.Warn("scheduled updates did not stop in time", "timeout", s.cfg.StopTimeout, "error", err)
		if errors.Is(err, gocron.ErrStopJobsTimedOut) {
			return fmt.Errorf("%w: %w", ErrStopTimeout, err)
		}
		return fmt.Errorf("shutting down gocron: %w", err)
	}
	s.logger.Info("scheduled updates stopped")
	return nil
}

func (s *Supervisor) tick(ctx context.Context) {
	// Stop may have been called while the job was waiting
	if !s.running.Load() {
		return
	}
	s.logger.InfoContext(ctx, "scheduled update check triggered")
	s.CheckAndUpdate(ctx)
}

func (s *Supervisor) newScheduler(ctx context.Context) (gocron.Scheduler, gocron.Job, error) {
	var def gocron.JobDefinition
	if s.cfg.Cron != "" {
		def = gocron.CronJob(s.cfg.Cron, false)
	} else {
		def = gocron.DurationJob(s.cfg.Interval)
	}

	scheduler, err := gocron.NewScheduler(gocron.WithStopTimeout(s.cfg.StopTimeout))
	if err != nil {
		return nil, nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	job, err := scheduler.NewJob(
		def,
		gocron.NewTask(func() { s.tick(ctx) }),
		gocron.WithName("update-check"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return scheduler, job, nil
}
