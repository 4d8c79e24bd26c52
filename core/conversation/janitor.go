package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/propbot/core/logger"
	"github.com/m3rciful/propbot/core/state"

	"github.com/gorhill/cronexpr"
)

// Janitor evicts idle sessions on a cron schedule.
type Janitor struct {
	store state.Store
	idle  time.Duration
	expr  *cronexpr.Expression
	now   func() time.Time
}

// NewJanitor parses schedule (standard five-field cron syntax). A non-positive
// idle duration yields a janitor whose Run returns immediately.
func NewJanitor(store state.Store, schedule string, idle time.Duration) (*Janitor, error) {
	if store == nil {
		return nil, fmt.Errorf("janitor: nil store")
	}
	expr, err := cronexpr.Parse(strings.TrimSpace(schedule))
	if err != nil {
		return nil, fmt.Errorf("janitor: parse schedule %q: %w", schedule, err)
	}
	return &Janitor{store: store, idle: idle, expr: expr, now: time.Now}, nil
}

// Enabled reports whether the janitor evicts anything.
func (j *Janitor) Enabled() bool { return j.idle > 0 }

// Next returns the first sweep time after from, or the zero time when the
// schedule has no further occurrence.
func (j *Janitor) Next(from time.Time) time.Time {
	return j.expr.Next(from)
}

// Run sweeps on schedule until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	if !j.Enabled() {
		return
	}
	for {
		next := j.Next(j.now())
		if next.IsZero() {
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		j.SweepOnce(ctx)
	}
}

// SweepOnce evicts idle sessions now and returns how many were removed.
func (j *Janitor) SweepOnce(ctx context.Context) int {
	start := time.Now()
	n := j.store.Sweep(j.idle)
	level := slog.LevelDebug
	if n > 0 {
		level = slog.LevelInfo
	}
	logger.LogEvent(ctx, logger.Component(component), level, "sessions.swept",
		slog.Int("count", n),
		slog.Int("sessions", j.store.Len()),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return n
}
