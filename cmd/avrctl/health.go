package main

import (
	"context"
	"time"
)

const healthCheckTimeout = 5 * time.Second

// dependency is one backend the daemon checks periodically.
type dependency struct {
	name  string
	check func(context.Context) error
}

// checkHealth runs every dependency check and logs failures along with the
// database pool figures. It returns the number of failed checks; none of
// them stop the daemon.
func (a *app) checkHealth(ctx context.Context, deps []dependency) int {
	failed := 0
	for _, dep := range deps {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := dep.check(checkCtx)
		cancel()
		if err != nil {
			failed++
			a.log.Warn("health check failed", "dependency", dep.name, "error", err)
		}
	}

	stats := a.db.Stats()
	a.log.Debug("health check finished",
		"checks", len(deps),
		"failed", failed,
		"db_open", stats.OpenConnections,
		"db_in_use", stats.InUse,
		"db_wait_count", stats.WaitCount,
	)
	return failed
}
