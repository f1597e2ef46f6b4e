package gitsync

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"
)

// BehindMarker is the text git status prints when the local branch trails
// its upstream. It is the only thing parsed from the status output.
const BehindMarker = "branch is behind"

const (
	DefaultFetchTimeout  = 30 * time.Second
	DefaultStatusTimeout = 10 * time.Second
	DefaultPullTimeout   = 30 * time.Second
)

// gitEnv keeps git from prompting for credentials and from translating the
// status output.
var gitEnv = []string{"GIT_TERMINAL_PROMPT=0", "LC_ALL=C"}

// Syncer brings a work tree up to date with its upstream.
type Syncer struct {
	exec          Executor
	git           string
	fetchTimeout  time.Duration
	statusTimeout time.Duration
	pullTimeout   time.Duration
	logger        *slog.Logger
}

type Option func(*Syncer)

func WithExecutor(e Executor) Option {
	return func(s *Syncer) {
		s.exec = e
	}
}

func WithGitBinary(path string) Option {
	return func(s *Syncer) {
		if path != "" {
			s.git = path
		}
	}
}

// WithTimeouts overrides the per step deadlines, zero values keep the defaults.
func WithTimeouts(fetch, status, pull time.Duration) Option {
	return func(s *Syncer) {
		if fetch > 0 {
			s.fetchTimeout = fetch
		}
		if status > 0 {
			s.statusTimeout = status
		}
		if pull > 0 {
			s.pullTimeout = pull
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(opts ...Option) *Syncer {
	s := &Syncer{
		exec:          NewRunner(),
		git:           "git",
		fetchTimeout:  DefaultFetchTimeout,
		statusTimeout: DefaultStatusTimeout,
		pullTimeout:   DefaultPullTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs fetch, status and, when the branch is behind, pull inside repo.
// Each step has its own timeout and the first failing step ends the sync.
// Failures are logged and reported through the returned Outcome only.
//
// A pull over local modifications or diverged history may fail half way and
// leave the work tree partially merged. This is reported as PullFailed and
// nothing is rolled back.
func (s *Syncer) Sync(ctx context.Context, repo string) Result {
	s.logger.InfoContext(ctx, "checking for updates", "repository", repo)

	fetch := s.exec.Run(ctx, s.command(repo, s.fetchTimeout, "fetch"))
	if fetch.Err != nil {
		return s.fail(ctx, FetchFailed, "git fetch failed", fetch)
	}

	status := s.exec.Run(ctx, s.command(repo, s.statusTimeout, "status", "-uno"))
	if status.TimedOut() {
		return s.fail(ctx, TimedOut, "git status failed", status)
	}
	if status.Err != nil {
		s.logger.WarnContext(ctx, "git status failed: assuming up to date",
			"error", status.Err,
			"stderr", text(status.Stderr))
	}

	if !strings.Contains(text(status.Stdout), BehindMarker) {
		s.logger.InfoContext(ctx, "already up to date", "repository", repo)
		return Result{Outcome: NoChange}
	}

	s.logger.InfoContext(ctx, "updates available: pulling changes", "repository", repo)
	pull := s.exec.Run(ctx, s.command(repo, s.pullTimeout, "pull"))
	if pull.Err != nil {
		return s.fail(ctx, PullFailed, "git pull failed", pull)
	}

	s.logger.InfoContext(ctx, "successfully pulled updates",
		"repository", repo,
		"output", strings.TrimSpace(text(pull.Stdout)))
	return Result{Outcome: Updated}
}

func (s *Syncer) command(repo string, timeout time.Duration, args ...string) Command {
	return Command{
		Path:    s.git,
		Args:    args,
		Dir:     repo,
		Env:     gitEnv,
		Timeout: timeout,
	}
}

func (s *Syncer) fail(ctx context.Context, outcome Outcome, msg string, r RunResult) Result {
	level := slog.LevelError
	switch {
	case r.TimedOut():
		outcome = TimedOut
		msg = "git operation timed out"
	case outcome == FetchFailed:
		level = slog.LevelWarn
	}

	reason := diagnostic(r)
	s.logger.Log(ctx, level, msg,
		"outcome", outcome.String(),
		"exit_code", r.ExitCode(),
		"reason", reason)
	return Result{Outcome: outcome, Reason: reason}
}

// diagnostic prefers captured stderr and falls back to the error text.
func diagnostic(r RunResult) string {
	if !r.TimedOut() {
		if s := strings.TrimSpace(text(r.Stderr)); s != "" {
			return s
		}
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}

func text(b *bytes.Buffer) string {
	if b == nil {
		return ""
	}
	return b.String()
}
