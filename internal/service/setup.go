package service

import (
	"context"
)

// Setup is the entry point for a host application: it builds a supervisor
// checking every intervalHours hours, runs one check right away when
// pullOnStartup is set and starts the schedule. If that first check pulls
// changes the process is replaced and Setup never returns.
func Setup(ctx context.Context, intervalHours int, pullOnStartup bool, opts ...Option) (*Supervisor, error) {
	cfg, err := NewConfig(intervalHours, pullOnStartup)
	if err != nil {
		return nil, err
	}
	return SetupWithConfig(ctx, cfg, opts...)
}

// SetupWithConfig is Setup for a full Config.
func SetupWithConfig(ctx context.Context, cfg Config, opts ...Option) (*Supervisor, error) {
	s, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	if s.cfg.PullOnStartup {
		s.logger.InfoContext(ctx, "performing initial update check")
		s.CheckAndUpdate(ctx)
	}

	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
