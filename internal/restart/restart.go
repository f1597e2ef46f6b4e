// Package restart replaces the running process with a fresh copy of itself.
package restart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var ErrUnsupported = errors.New("process replacement is not supported on this platform")

// ProcessReplacer swaps the current process image for path started with
// argv. Implementations must not return control on success.
type ProcessReplacer interface {
	Replace(ctx context.Context, path string, argv []string)
}

// Self returns the resolved path of the running executable and the original
// argument vector, argv[0] included.
func Self() (string, []string, error) {
	path, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("get executable path: %w", err)
	}
	path, err = filepath.EvalSymlinks(path)
	if err != nil {
		return "", nil, fmt.Errorf("resolve symlinks: %w", err)
	}
	return path, append([]string(nil), os.Args...), nil
}

// Exec replaces the process via execve(2). The PID is kept, every goroutine
// and all in-memory state are gone. When execve fails the process exits with
// status 0 and restarting is left to whatever manages it.
type Exec struct {
	logger *slog.Logger
	exec   func(path string, argv []string, env []string) error
	exit   func(code int)
}

type ExecOption func(*Exec)

func WithLogger(logger *slog.Logger) ExecOption {
	return func(e *Exec) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithExit replaces os.Exit on the failure path.
func WithExit(exit func(int)) ExecOption {
	return func(e *Exec) {
		e.exit = exit
	}
}

func withExecFunc(fn func(string, []string, []string) error) ExecOption {
	return func(e *Exec) {
		e.exec = fn
	}
}

func NewExec(opts ...ExecOption) *Exec {
	e := &Exec{
		logger: slog.Default(),
		exec:   execve,
		exit:   os.Exit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exec) Replace(ctx context.Context, path string, argv []string) {
	e.logger.InfoContext(ctx, "restarting program", "path", path, "args", argv)
	err := e.exec(path, argv, os.Environ())
	// only reachable when execve failed
	e.logger.ErrorContext(ctx, "error restarting program: exiting", "path", path, "error", err)
	e.exit(0)
}

// Call is one recorded Replace invocation.
type Call struct {
	Path string
	Argv []string
}

// Recorder is a ProcessReplacer for tests: it records calls and returns.
type Recorder struct {
	mx    sync.Mutex
	calls []Call
}

func (r *Recorder) Replace(_ context.Context, path string, argv []string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.calls = append(r.calls, Call{Path: path, Argv: append([]string(nil), argv...)})
}

func (r *Recorder) Calls() []Call {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]Call(nil), r.calls...)
}
