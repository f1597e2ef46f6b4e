package gitsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

var ErrTimeout = errors.New("command timed out")

// waitDelay bounds how long Wait blocks on inherited pipes after the
// process was killed, e.g. by an ssh helper spawned by git.
const waitDelay = 2 * time.Second

type Command struct {
	Path    string
	Args    []string
	Dir     string
	Env     []string // appended to the current environment
	Timeout time.Duration
}

func (c Command) String() string {
	return fmt.Sprintf("%s %v", c.Path, c.Args)
}

type RunResult struct {
	Path    string
	Args    []string
	Started time.Time
	Stopped time.Time
	State   *os.ProcessState
	Stdout  *bytes.Buffer
	Stderr  *bytes.Buffer
	Err     error
}

// TimedOut reports if the command was killed because of its timeout.
func (r RunResult) TimedOut() bool {
	return errors.Is(r.Err, ErrTimeout)
}

// ExitCode returns the process exit code, -1 when it did not exit on its own.
func (r RunResult) ExitCode() int {
	if r.State == nil {
		return -1
	}
	return r.State.ExitCode()
}

// Executor runs a command synchronously. Runner is the only production
// implementation, tests replace it with a scripted one.
type Executor interface {
	Run(ctx context.Context, cmd Command) RunResult
}

// Runner is a thin wrapper around os/exec. Every run gets its own deadline
// and captured stdout and stderr.
type Runner struct{}

func NewRunner() Runner {
	return Runner{}
}

// Run starts the command and waits for it. Err is non-nil for exec errors,
// non-zero exits (*exec.ExitError) and timeouts (ErrTimeout).
func (Runner) Run(ctx context.Context, proto Command) RunResult {
	result := RunResult{
		Path:   proto.Path,
		Args:   append([]string(nil), proto.Args...),
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
	}

	if proto.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, proto.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, proto.Path, proto.Args...)
	cmd.Dir = proto.Dir
	if len(proto.Env) > 0 {
		cmd.Env = append(os.Environ(), proto.Env...)
	}
	cmd.Stdout = result.Stdout
	cmd.Stderr = result.Stderr
	cmd.WaitDelay = waitDelay

	result.Started = time.Now().UTC()
	err := cmd.Run()
	result.Stopped = time.Now().UTC()
	result.State = cmd.ProcessState

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %s", ErrTimeout, proto.Timeout, proto)
	}
	result.Err = err
	return result
}
