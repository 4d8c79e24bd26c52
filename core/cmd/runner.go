// Package cmd runs the bot process: environment, configuration, bootstrap and
// signal-driven shutdown.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/propbot/core/bootstrap"
	"github.com/m3rciful/propbot/core/buildinfo"
	"github.com/m3rciful/propbot/core/config"
	"github.com/m3rciful/propbot/core/logger"

	"github.com/joho/godotenv"
)

// Options describe how to load configuration, bootstrap the app, and run it.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string
	// EnvFiles are loaded into the environment before configuration; missing files are skipped.
	EnvFiles []string

	LoadConfig     func(path string) (*config.Config, error)
	Bootstrap      func(ctx context.Context, cfg *config.Config) (Application, error)
	ShutdownLogger func() error
	// Signals stop the process; defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// Application is what Run drives after bootstrap.
type Application interface {
	Run(ctx context.Context) error
	Close() error
}

// Run loads configuration, bootstraps the app, and serves until a signal arrives.
func Run(opts Options) error {
	if err := loadEnv(opts.EnvFiles); err != nil {
		return err
	}

	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}

	loadConfig := opts.LoadConfig
	if loadConfig == nil {
		loadConfig = config.Load
	}
	log.Printf("loading config: %s", cfgPath)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, cancel := signal.NotifyContext(context.Background(), signals...)
	defer cancel()

	build := opts.Bootstrap
	if build == nil {
		build = func(ctx context.Context, cfg *config.Config) (Application, error) {
			app, err := bootstrap.Build(ctx, bootstrap.Options{Config: cfg})
			if err != nil {
				return nil, err
			}
			return app, nil
		}
	}

	startedAt := time.Now()
	app, err := build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	logger.LogEvent(ctx, logger.App, slog.LevelInfo, "app.ready",
		slog.String("version", buildinfo.String()),
		slog.String("provider", cfg.Channel.Provider),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)

	runErr := app.Run(ctx)

	logger.LogEvent(context.Background(), logger.App, slog.LevelInfo, "app.shutdown",
		slog.String("status", logger.Status(runErr)),
	)
	// The dispatcher drains after the server stops accepting deliveries.
	closeErr := app.Close()
	return errors.Join(runErr, closeErr)
}

func loadEnv(files []string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("cmd: load %s: %w", f, err)
		}
	}
	return nil
}
