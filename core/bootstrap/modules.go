package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/propbot/core/logger"
)

// Module is a long-running part of the application.
type Module struct {
	Name string
	Run  func(ctx context.Context) error
}

// RunModules starts every module and waits for all of them to return.
// The first failure cancels the others. Errors are joined.
func RunModules(ctx context.Context, modules ...Module) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, m := range modules {
		if m.Run == nil {
			continue
		}
		wg.Add(1)
		go func(m Module) {
			defer wg.Done()
			start := time.Now()
			logger.LogEvent(ctx, logger.App, slog.LevelDebug, "module.start", slog.String("module", m.Name))

			err := m.Run(ctx)
			logger.LogEvent(ctx, logger.App, slog.LevelDebug, "module.stop",
				slog.String("module", m.Name),
				slog.String("status", logger.Status(err)),
				slog.Duration("duration", logger.RoundMS(time.Since(start))),
			)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", m.Name, err))
				mu.Unlock()
				cancel()
			}
		}(m)
	}
	wg.Wait()
	return errors.Join(errs...)
}
