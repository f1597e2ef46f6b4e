// Package service implements the self-update supervisor.
//
// Overview
// A Supervisor periodically asks a SourceSync (gitsync.Syncer in production)
// to bring a git work tree up to date. When the sync reports Updated, the
// running process is replaced by a fresh copy of itself through a
// restart.ProcessReplacer, so the pulled code takes effect without any
// external process manager.
//
// Data flow:
//
//	Setup ----> CheckAndUpdate (optional, caller goroutine)
//	  |               |
//	  |               +--> SourceSync.Sync: fetch -> status -> pull
//	  |               |
//	  |               +--> Updated ? ProcessReplacer.Replace (no return)
//	  |
//	  +-------> Start: gocron job, every Interval (or Cron)
//	                  |
//	                  +--> running ? CheckAndUpdate
//
// Invariants:
//   - At most one scheduler per Supervisor; Start on a running supervisor is a no-op.
//   - The scheduler handle is non-nil iff running is set.
//   - Checks never overlap; concurrent callers share one in-flight check.
//   - Failed checks are logged and counted, the next scheduled check retries
//     from scratch. There is no backoff.
//   - Stop is cooperative: it clears running and waits up to StopTimeout.
package service
