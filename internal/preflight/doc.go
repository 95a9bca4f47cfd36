// Package preflight checks that the host can run indexgen before the daemon
// starts: free disk space where the task store and local index live, a
// writable state directory, the file descriptor limit, and reachability of
// the configured backends.
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, preflight.Target{StateDir: dir})
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
