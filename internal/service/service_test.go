package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CZERTAINLY/Updater/internal/gitsync"
	"github.com/CZERTAINLY/Updater/internal/log"
	"github.com/CZERTAINLY/Updater/internal/restart"
	"github.com/CZERTAINLY/Updater/internal/service"

	"github.com/stretchr/testify/require"
)

const (
	selfPath = "/usr/local/bin/app"
)

var selfArgv = []string{"app", "run", "--verbose"}

type fakeSyncer struct {
	result  gitsync.Result
	calls   atomic.Int32
	entered chan struct{} // receives on every call when not nil
	release chan struct{} // blocks every call until closed when not nil
	mx      sync.Mutex
	repos   []string
}

func (f *fakeSyncer) Sync(_ context.Context, repo string) gitsync.Result {
	f.calls.Add(1)
	f.mx.Lock()
	f.repos = append(f.repos, repo)
	f.mx.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.result
}

func testOptions(syncer service.SourceSync, replacer restart.ProcessReplacer) []service.Option {
	if replacer == nil {
		replacer = &restart.Recorder{}
	}
	return []service.Option{
		service.WithLogger(log.Discard()),
		service.WithSyncer(syncer),
		service.WithReplacer(replacer),
		service.WithSelf(selfPath, selfArgv),
	}
}

func TestCheckAndUpdate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		outcome  gitsync.Outcome
		restarts int
		failures int
	}{
		{gitsync.NoChange, 0, 0},
		{gitsync.Updated, 1, 0},
		{gitsync.FetchFailed, 0, 1},
		{gitsync.PullFailed, 0, 1},
		{gitsync.TimedOut, 0, 1},
	}

	for _, tc := range cases {
		t.Run(tc.outcome.String(), func(t *testing.T) {
			t.Parallel()
			syncer := &fakeSyncer{result: gitsync.Result{Outcome: tc.outcome, Reason: "why"}}
			var rec restart.Recorder
			cfg, err := service.NewConfig(1, false)
			require.NoError(t, err)
			cfg.Repository = "/srv/app"

			s, err := service.New(cfg, testOptions(syncer, &rec)...)
			require.NoError(t, err)

			res := s.CheckAndUpdate(t.Context())
			require.Equal(t, tc.outcome, res.Outcome)
			require.EqualValues(t, 1, syncer.calls.Load())
			require.Equal(t, []string{"/srv/app"}, syncer.repos)

			calls := rec.Calls()
			require.Len(t, calls, tc.restarts)
			for _, c := range calls {
				require.Equal(t, selfPath, c.Path)
				require.Equal(t, selfArgv, c.Argv)
			}

			st := s.Status()
			require.Equal(t, 1, st.Cycles)
			require.Equal(t, tc.failures, st.Failures)
			require.Equal(t, tc.restarts, st.Restarts)
			require.Equal(t, tc.outcome, st.LastOutcome)
			require.Equal(t, "why", st.LastReason)
			require.False(t, st.LastCheck.IsZero())
			require.False(t, st.Running)
		})
	}
}

func TestCheckAndUpdateWithoutRestart(t *testing.T) {
	t.Parallel()
	syncer := &fakeSyncer{result: gitsync.Result{Outcome: gitsync.Updated}}
	var rec restart.Recorder
	cfg, err := service.NewConfig(1, false)
	require.NoError(t, err)

	s, err := service.New(cfg, append(testOptions(syncer, &rec), service.WithoutRestart())...)
	require.NoError(t, err)

	res := s.CheckAndUpdate(t.Context())
	require.Equal(t, gitsync.Updated, res.Outcome)
	require.Empty(t, rec.Calls())

	st := s.Status()
	require.Equal(t, 1, st.Cycles)
	require.Zero(t, st.Restarts)
	require.Equal(t, gitsync.Updated, st.LastOutcome)
}

func TestCheckAndUpdateShared(t *testing.T) {
	t.Parallel()
	syncer := &fakeSyncer{
		result:  gitsync.Result{Outcome: gitsync.Updated},
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	var rec restart.Recorder
	cfg, err := service.NewConfig(1, false)
	require.NoError(t, err)
	s, err := service.New(cfg, testOptions(syncer, &rec)...)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]gitsync.Result, 2)
	wg.Go(func() { results[0] = s.CheckAndUpdate(t.Context()) })
	<-syncer.entered
	wg.Go(func() { results[1] = s.CheckAndUpdate(t.Context()) })
	time.Sleep(100 * time.Millisecond)
	close(syncer.release)
	wg.Wait()

	require.EqualValues(t, 1, syncer.calls.Load())
	require.Len(t, rec.Calls(), 1)
	require.Equal(t, gitsync.Updated, results[0].Outcome)
	require.Equal(t, gitsync.Updated, results[1].Outcome)
}

func TestSetupPullOnStartup(t *testing.T) {
	t.Parallel()
	syncer := &fakeSyncer{result: gitsync.Result{Outcome: gitsync.Updated}}
	var rec restart.Recorder

	s, err := service.Setup(t.Context(), 1, true, testOptions(syncer, &rec)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })

	require.EqualValues(t, 1, syncer.calls.Load())
	require.Len(t, rec.Calls(), 1)
	require.Equal(t, int64(3600), s.Config().IntervalSeconds())

	st := s.Status()
	require.True(t, st.Running)
	require.Equal(t, 1, st.Starts)
}

func TestSetupWithoutPull(t *testing.T) {
	t.Parallel()
	syncer := &fakeSyncer{result: gitsync.Result{Outcome: gitsync.Updated}}
	var rec restart.Recorder

	s, err := service.Setup(t.Context(), 2, false, testOptions(syncer, &rec)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })

	require.Zero(t, syncer.calls.Load())
	require.Empty(t, rec.Calls())
	require.Equal(t, int64(7200), s.Config().IntervalSeconds())

	st := s.Status()
	require.True(t, st.Running)
	require.Equal(t, 1, st.Starts)
}

func TestSetupInvalidInterval(t *testing.T) {
	t.Parallel()
	syncer := &fakeSyncer{}
	_, err := service.Setup(t.Context(), 0, true, testOptions(syncer, nil)...)
	require.ErrorIs(t, err, service.ErrInvalidInterval)
	require.Zero(t, syncer.calls.Load())
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	cfg, err := service.NewConfig(1, false)
	require.NoError(t, err)
	s, err := service.New(cfg, testOptions(&fakeSyncer{}, nil)...)
	require.NoError(t, err)

	require.NoError(t, s.Start(t.Context()))
	require.NoError(t, s.Start(t.Context()))
	st := s.Status()
	require.True(t, st.Running)
	require.Equal(t, 1, st.Starts)

	start := time.Now()
	require.NoError(t, s.Stop())
	require.Less(t, time.Since(start), service.DefaultStopTimeout)
	st = s.Status()
	require.False(t, st.Running)
	require.True(t, st.NextRun.IsZero())

	// stopping twice is fine, a stopped supervisor can be started again
	require.NoError(t, s.Stop())
	require.NoError(t, s.Start(t.Context()))
	require.Equal(t, 2, s.Status().Starts)
	require.NoError(t, s.Stop())
}

func TestScheduledChecks(t *testing.T) {
	t.Parallel()
	syncer := &fakeSyncer{result: gitsync.Result{Outcome: gitsync.NoChange}}
	var rec restart.Recorder
	s, err := service.New(service.Config{Interval: 50 * time.Millisecond}, testOptions(syncer, &rec)...)
	require.NoError(t, err)

	require.NoError(t, s.Start(t.Context()))
	require.Eventually(t, func() bool {
		return syncer.calls.Load() >= 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	after := syncer.calls.Load()
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, after, syncer.calls.Load())
	require.Empty(t, rec.Calls())
	require.GreaterOrEqual(t, s.Status().Cycles, 2)
}

func TestScheduledUpdateRestarts(t *testing.T) {
	t.Parallel()
	syncer := &fakeSyncer{result: gitsync.Result{Outcome: gitsync.Updated}}
	var rec restart.Recorder
	s, err := service.New(service.Config{Interval: 50 * time.Millisecond}, testOptions(syncer, &rec)...)
	require.NoError(t, err)

	require.NoError(t, s.Start(t.Context()))
	t.Cleanup(func() { _ = s.Stop() })
	require.Eventually(t, func() bool {
		return len(rec.Calls()) >= 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, selfPath, rec.Calls()[0].Path)
}

func TestStopTimeout(t *testing.T) {
	t.Parallel()
	syncer := &fakeSyncer{
		result:  gitsync.Result{Outcome: gitsync.NoChange},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	t.Cleanup(func() { close(syncer.release) })

	s, err := service.New(service.Config{
		Interval:    50 * time.Millisecond,
		StopTimeout: 100 * time.Millisecond,
	}, testOptions(syncer, nil)...)
	require.NoError(t, err)

	require.NoError(t, s.Start(t.Context()))
	<-syncer.entered

	start := time.Now()
	err = s.Stop()
	require.ErrorIs(t, err, service.ErrStopTimeout)
	require.Less(t, time.Since(start), 2*time.Second)
	require.False(t, s.Status().Running)
}

func TestStatusDuringStop(t *testing.T) {
	t.Parallel()
	syncer := &fakeSyncer{
		result:  gitsync.Result{Outcome: gitsync.NoChange},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	t.Cleanup(func() { close(syncer.release) })

	s, err := service.New(service.Config{
		Interval:    50 * time.Millisecond,
		StopTimeout: time.Second,
	}, testOptions(syncer, nil)...)
	require.NoError(t, err)

	require.NoError(t, s.Start(t.Context()))
	<-syncer.entered

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop() }()

	require.Eventually(t, func() bool {
		return !s.Status().Running
	}, 500*time.Millisecond, 5*time.Millisecond)

	start := time.Now()
	st := s.Status()
	require.Less(t, time.Since(start), 100*time.Millisecond)
	require.True(t, st.NextRun.IsZero())
	select {
	case err := <-stopped:
		t.Fatalf("Stop returned before the in-flight check finished: %v", err)
	default:
	}

	require.ErrorIs(t, <-stopped, service.ErrStopTimeout)
}
