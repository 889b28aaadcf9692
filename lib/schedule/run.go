// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package schedule

import (
	"context"
	"log/slog"

	"github.com/xchange-foundation/msglog/lib/clock"
)

// Run calls fn at every occurrence of schedule until ctx is done. Runs
// never overlap: an occurrence that passes while fn is running is
// skipped, and the next wait starts from the time fn returns. An error
// from fn is logged and does not stop the loop. Run returns ctx.Err(),
// or the error from Next when the schedule has no further occurrence.
func Run(ctx context.Context, name string, schedule Schedule, c clock.Clock, logger *slog.Logger, fn func(context.Context) error) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	for {
		now := c.Now()
		next, err := schedule.Next(now)
		if err != nil {
			return err
		}
		logger.Debug("next scheduled run", "job", name, "at", next)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.After(next.Sub(now)):
		}

		started := c.Now()
		if err := fn(ctx); err != nil {
			logger.Error("scheduled job failed",
				"job", name,
				"error", err,
				"duration", c.Now().Sub(started),
			)
			continue
		}
		logger.Info("scheduled job finished", "job", name, "duration", c.Now().Sub(started))
	}
}
