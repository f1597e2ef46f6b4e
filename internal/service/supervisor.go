package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gocron "github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/CZERTAINLY/Updater/internal/gitsync"
	"github.com/CZERTAINLY/Updater/internal/log"
	"github.com/CZERTAINLY/Updater/internal/restart"
)

var ErrStopTimeout = errors.New("timed out waiting for the update check to finish")

// SourceSync brings a repository up to date with its remote.
type SourceSync interface {
	Sync(ctx context.Context, repo string) gitsync.Result
}

// Status is a snapshot of the supervisor state.
type Status struct {
	Running     bool
	Starts      int
	Cycles      int
	Failures    int
	Restarts    int
	LastOutcome gitsync.Outcome
	LastReason  string
	LastCheck   time.Time
	NextRun     time.Time
}

type Supervisor struct {
	cfg      Config
	syncer   SourceSync
	replacer restart.ProcessReplacer
	path      string
	argv      []string
	logger    *slog.Logger
	noRestart bool

	// running is the only flag shared with the scheduled job
	running   atomic.Bool
	mx        sync.Mutex // serializes Start and Stop
	scheduler gocron.Scheduler
	flight    singleflight.Group

	statusMx sync.Mutex // guards status and job, never held across Shutdown
	status   Status
	job      gocron.Job
}

type Option func(*Supervisor)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithSyncer(syncer SourceSync) Option {
	return func(s *Supervisor) {
		s.syncer = syncer
	}
}

func WithReplacer(replacer restart.ProcessReplacer) Option {
	return func(s *Supervisor) {
		s.replacer = replacer
	}
}

// WithoutRestart leaves the pulled changes for the next start instead of
// replacing the process.
func WithoutRestart() Option {
	return func(s *Supervisor) {
		s.noRestart = true
	}
}

// WithSelf sets the executable and arguments used for the restart,
// restart.Self() is used by default.
func WithSelf(path string, argv []string) Option {
	return func(s *Supervisor) {
		s.path = path
		s.argv = append([]string(nil), argv...)
	}
}

// New returns a stopped supervisor.
func New(cfg Config, opts ...Option) (*Supervisor, error) {
	cfg, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	s := &Supervisor{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.syncer == nil {
		s.syncer = gitsync.New(gitsync.WithLogger(s.logger))
	}
	if s.replacer == nil {
		s.replacer = restart.NewExec(restart.WithLogger(s.logger))
	}
	if s.path == "" {
		s.path, s.argv, err = restart.Self()
		if err != nil {
			return nil, fmt.Errorf("locating current executable: %w", err)
		}
	}
	return s, nil
}

func (s *Supervisor) Config() Config {
	return s.cfg
}

// CheckAndUpdate runs one sync and restarts the process when it pulled
// changes, in which case it does not return. Calls overlapping an in-flight
// check wait for it and share its result.
func (s *Supervisor) CheckAndUpdate(ctx context.Context) gitsync.Result {
	v, _, _ := s.flight.Do("check", func() (any, error) {
		ctx := log.ContextAttrs(ctx, slog.String("cycle_id", uuid.NewString()))
		res := s.syncer.Sync(ctx, s.cfg.Repository)
		s.record(res)
		switch {
		case res.Outcome != gitsync.Updated:
		case s.noRestart:
			s.logger.InfoContext(ctx, "updates pulled: restart skipped", "path", s.path)
		default:
			s.logger.InfoContext(ctx, "updates pulled: restarting program")
			s.statusMx.Lock()
			s.status.Restarts++
			s.statusMx.Unlock()
			s.replacer.Replace(ctx, s.path, s.argv)
		}
		return res, nil
	})
	return v.(gitsync.Result)
}

func (s *Supervisor) record(res gitsync.Result) {
	s.statusMx.Lock()
	defer s.statusMx.Unlock()
	s.status.Cycles++
	if res.Outcome.Failed() {
		s.status.Failures++
	}
	s.status.LastOutcome = res.Outcome
	s.status.LastReason = res.Reason
	s.status.LastCheck = time.Now().UTC()
}

// Status returns a copy of the current state.
func (s *Supervisor) Status() Status {
	s.statusMx.Lock()
	st, job := s.status, s.job
	s.statusMx.Unlock()

	st.Running = s.running.Load()
	if job != nil {
		st.NextRun, _ = job.NextRun()
	}
	return st
}
