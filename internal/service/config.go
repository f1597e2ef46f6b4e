package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/CZERTAINLY/Updater/internal/model"
)

// DefaultStopTimeout bounds how long Stop waits for an in-flight cycle.
const DefaultStopTimeout = 5 * time.Second

var ErrInvalidInterval = errors.New("invalid update interval")

// Config is the immutable supervisor configuration.
type Config struct {
	Interval      time.Duration
	Cron          string // when set, used instead of Interval
	PullOnStartup bool
	Repository    string // work tree, empty => current directory
	StopTimeout   time.Duration
}

// NewConfig returns a Config checking every intervalHours hours.
func NewConfig(intervalHours int, pullOnStartup bool) (Config, error) {
	if intervalHours <= 0 {
		return Config{}, fmt.Errorf("%w: got %d hours, must be positive", ErrInvalidInterval, intervalHours)
	}
	if int64(intervalHours) > model.MaxIntervalHours {
		return Config{}, fmt.Errorf("%w: got %d hours, at most %d supported", ErrInvalidInterval, intervalHours, model.MaxIntervalHours)
	}
	return Config{
		Interval:      time.Duration(intervalHours) * time.Hour,
		PullOnStartup: pullOnStartup,
		StopTimeout:   DefaultStopTimeout,
	}, nil
}

// ConfigFromModel converts the supervisor section of a config file.
func ConfigFromModel(cfg model.Supervisor) (Config, error) {
	plan, err := cfg.Plan()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Interval:      plan.Interval,
		Cron:          plan.Cron,
		PullOnStartup: cfg.PullOnStartup,
		Repository:    cfg.Repository,
		StopTimeout:   DefaultStopTimeout,
	}, nil
}

func (c Config) IntervalSeconds() int64 {
	return int64(c.Interval / time.Second)
}

// resolve validates c and fills in the defaults.
func (c Config) resolve() (Config, error) {
	if c.Interval <= 0 && c.Cron == "" {
		return Config{}, fmt.Errorf("%w: got %s, must be positive", ErrInvalidInterval, c.Interval)
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}

	repo := c.Repository
	if repo == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("getting working directory: %w", err)
		}
		repo = cwd
	}
	repo, err := filepath.Abs(repo)
	if err != nil {
		return Config{}, fmt.Errorf("resolving repository path: %w", err)
	}
	c.Repository = repo
	return c, nil
}
