// Package bootstrap assembles the application from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/m3rciful/propbot/core/catalog"
	"github.com/m3rciful/propbot/core/channel"
	"github.com/m3rciful/propbot/core/channel/gupshup"
	"github.com/m3rciful/propbot/core/channel/meta"
	"github.com/m3rciful/propbot/core/channel/telegram"
	"github.com/m3rciful/propbot/core/config"
	"github.com/m3rciful/propbot/core/conversation"
	"github.com/m3rciful/propbot/core/database"
	"github.com/m3rciful/propbot/core/dialog"
	"github.com/m3rciful/propbot/core/logger"
	"github.com/m3rciful/propbot/core/sender"
	"github.com/m3rciful/propbot/core/server"
	"github.com/m3rciful/propbot/core/state"

	"github.com/jmoiron/sqlx"
)

// Options control the bootstrap pipeline. Zero hooks select the production implementations.
type Options struct {
	Config     *config.Config
	HTTPClient *http.Client

	LoggerInit func(*config.Config) error
	Connect    func(context.Context, config.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(context.Context, config.DatabaseConfig) error
}

// App holds the wired components.
type App struct {
	Config       *config.Config
	Catalog      *catalog.Catalog
	Store        state.Store
	Dispatcher   *sender.Dispatcher
	Conversation *conversation.Service
	Janitor      *conversation.Janitor
	Server       *server.Server
	DB           *sqlx.DB
}

// Build initializes the logger, the optional lead database and every
// component on the webhook path.
func Build(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: catalog: %w", err)
	}
	logger.LogEvent(ctx, logger.App, slog.LevelInfo, "catalog.loaded",
		slog.Int("count", cat.Len()),
		slog.String("path", cfg.Catalog.Path),
	)

	client := opts.HTTPClient
	if client == nil {
		client = channel.BuildHTTPClient()
	}
	normalizer, messenger, err := providerChannel(cfg.Channel, client)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Catalog: cat}

	var leads conversation.LeadRecorder
	if cfg.Database.Enabled {
		db, err := openDatabase(ctx, cfg.Database, opts)
		if err != nil {
			return nil, err
		}
		app.DB = db
		leads = database.NewLeadRepository(db)
	}

	app.Store = state.NewMemoryStore(dialog.Initial)
	app.Dispatcher = sender.NewDispatcher(sender.Options{
		QueueSize:    cfg.Dispatcher.QueueSize,
		Workers:      cfg.Dispatcher.Workers,
		MaxRetries:   cfg.Dispatcher.MaxRetries,
		RetryBackoff: time.Duration(cfg.Dispatcher.RetryBackoffMS) * time.Millisecond,
		Timeout:      time.Duration(cfg.Dispatcher.TimeoutMS) * time.Millisecond,
	})

	app.Conversation, err = conversation.NewService(conversation.Options{
		Store:      app.Store,
		Engine:     dialog.New(cat, dialog.WithSearchLimit(cfg.Catalog.SearchLimit)),
		Messenger:  messenger,
		Dispatcher: app.Dispatcher,
		Leads:      leads,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("bootstrap: conversation: %w", err), app.Close())
	}

	app.Janitor, err = conversation.NewJanitor(app.Store, cfg.Sessions.SweepSchedule,
		time.Duration(cfg.Sessions.IdleTTLMinutes)*time.Minute)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("bootstrap: %w", err), app.Close())
	}

	app.Server, err = server.New(server.Options{
		Server:       cfg.Server,
		Channel:      cfg.Channel,
		Normalizer:   normalizer,
		Conversation: app.Conversation,
		Stats:        stats{app},
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("bootstrap: %w", err), app.Close())
	}
	return app, nil
}

func providerChannel(cfg config.ChannelConfig, client *http.Client) (channel.Normalizer, channel.Messenger, error) {
	switch cfg.Provider {
	case config.ProviderMeta:
		return meta.NewNormalizer(), meta.NewMessenger(cfg, client), nil
	case config.ProviderGupshup:
		return gupshup.NewNormalizer(), gupshup.NewMessenger(cfg, client), nil
	case config.ProviderTelegram:
		m, err := telegram.NewMessenger(cfg, client)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: telegram messenger: %w", err)
		}
		return telegram.NewNormalizer(), m, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unsupported provider %q", cfg.Provider)
	}
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, opts Options) (*sqlx.DB, error) {
	connect := opts.Connect
	if connect == nil {
		connect = database.Connect
	}
	db, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = database.RunMigrations
	}
	if err := migrate(ctx, cfg); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}
	return db, nil
}

// Run serves webhooks and sweeps idle sessions until ctx is done.
func (a *App) Run(ctx context.Context) error {
	return RunModules(ctx,
		Module{Name: "server", Run: a.Server.Run},
		Module{Name: "janitor", Run: func(ctx context.Context) error {
			a.Janitor.Run(ctx)
			return nil
		}},
	)
}

// Close drains the dispatcher and releases the database.
func (a *App) Close() error {
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("bootstrap: close database: %w", err)
		}
	}
	return nil
}

type stats struct{ app *App }

func (s stats) Sessions() int          { return s.app.Store.Len() }
func (s stats) DispatchErrors() uint64 { return s.app.Dispatcher.ErrorCount() }
