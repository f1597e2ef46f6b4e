package model

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	DefaultIntervalHours = 24
	DefaultGitBinary     = "git"
	DefaultFetchTimeout  = 30 * time.Second
	DefaultStatusTimeout = 10 * time.Second
	DefaultPullTimeout   = 30 * time.Second
)

// MaxIntervalHours is the largest hour count a time.Duration can hold.
const MaxIntervalHours = math.MaxInt64 / int64(time.Hour)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
}

type Config struct {
	Version    int        `json:"version" yaml:"version"` // fixed 0 for now
	Supervisor Supervisor `json:"supervisor" yaml:"supervisor"`
	Git        Git        `json:"git,omitempty" yaml:"git,omitempty"`
}

// Supervisor configures the update check loop.
type Supervisor struct {
	Repository    string    `json:"repository,omitempty" yaml:"repository,omitempty"` // empty => CWD
	IntervalHours int       `json:"interval_hours" yaml:"interval_hours"`
	Schedule      *Schedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	PullOnStartup bool      `json:"pull_on_startup" yaml:"pull_on_startup"`
	Verbose       bool      `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Log           string    `json:"log,omitempty" yaml:"log,omitempty"` // "stderr"|"stdout"|"discard"|path
}

// Schedule overrides interval_hours. Cron wins over Duration.
type Schedule struct {
	Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"` // ISO-8601, e.g. PT6H
}

type Git struct {
	Binary        string `json:"binary,omitempty" yaml:"binary,omitempty"`
	FetchTimeout  string `json:"fetch_timeout,omitempty" yaml:"fetch_timeout,omitempty"`
	StatusTimeout string `json:"status_timeout,omitempty" yaml:"status_timeout,omitempty"`
	PullTimeout   string `json:"pull_timeout,omitempty" yaml:"pull_timeout,omitempty"`
}

// Timeouts returns the fetch, status and pull timeouts, using defaults for
// unset values.
func (g Git) Timeouts() (fetch, status, pull time.Duration, err error) {
	fetch, err = durationOr(g.FetchTimeout, DefaultFetchTimeout)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("git.fetch_timeout: %w", err)
	}
	status, err = durationOr(g.StatusTimeout, DefaultStatusTimeout)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("git.status_timeout: %w", err)
	}
	pull, err = durationOr(g.PullTimeout, DefaultPullTimeout)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("git.pull_timeout: %w", err)
	}
	return fetch, status, pull, nil
}

func (g Git) BinaryOrDefault() string {
	if g.Binary == "" {
		return DefaultGitBinary
	}
	return g.Binary
}

func durationOr(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, ErrNonPositive
	}
	return d, nil
}

func DefaultConfig(_ context.Context) Config {
	return Config{
		Version: 0,
		Supervisor: Supervisor{
			IntervalHours: DefaultIntervalHours,
			PullOnStartup: true,
			Log:           LogStderr,
		},
		Git: Git{
			Binary:        DefaultGitBinary,
			FetchTimeout:  DefaultFetchTimeout.String(),
			StatusTimeout: DefaultStatusTimeout.String(),
			PullTimeout:   DefaultPullTimeout.String(),
		},
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("updater.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),
		cue.Concrete(true),
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}
	if out.Version != 0 {
		return Config{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, out.Version)
	}

	return out, nil
}
