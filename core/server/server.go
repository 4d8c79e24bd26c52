// Package server exposes the provider webhook over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/propbot/core/channel"
	"github.com/m3rciful/propbot/core/config"
	"github.com/m3rciful/propbot/core/dialog"
	"github.com/m3rciful/propbot/core/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	component              = "http"
	maxBodyBytes           = 1 << 20
	defaultShutdownTimeout = 10 * time.Second
)

// Conversation handles one normalized inbound message.
type Conversation interface {
	Handle(ctx context.Context, msg channel.Message) (dialog.Outcome, error)
}

// Stats feeds the health endpoint.
type Stats interface {
	Sessions() int
	DispatchErrors() uint64
}

// Options wires the HTTP surface.
type Options struct {
	Server       config.ServerConfig
	Channel      config.ChannelConfig
	Normalizer   channel.Normalizer
	Conversation Conversation
	Stats        Stats
}

// Server serves the webhook, ping and health routes.
type Server struct {
	opts   Options
	router chi.Router
}

// New validates opts and builds the router.
func New(opts Options) (*Server, error) {
	if opts.Normalizer == nil {
		return nil, errors.New("server: nil normalizer")
	}
	if opts.Conversation == nil {
		return nil, errors.New("server: nil conversation")
	}
	if opts.Server.WebhookPath == "" {
		opts.Server.WebhookPath = "/webhook"
	}
	s := &Server{opts: opts}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(correlate)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(s.opts.Server.AllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", signatureHeader, telegramSecretHeader},
		MaxAge:         300,
	}))

	r.Get(s.opts.Server.WebhookPath, s.verifyWebhook)
	r.Post(s.opts.Server.WebhookPath, s.receiveWebhook)
	r.Get("/ping", ping)
	r.Get("/healthz", s.health)
	return r
}

func allowedOrigins(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// Addr returns the listen address derived from the server config.
func Addr(cfg config.ServerConfig) string {
	return net.JoinHostPort(strings.TrimSpace(cfg.Listen), strconv.Itoa(cfg.Port))
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := Addr(s.opts.Server)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, component, "server.listen",
			slog.String("listen", addr),
			slog.String("path", s.opts.Server.WebhookPath),
			slog.String("provider", s.opts.Channel.Provider),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := defaultShutdownTimeout
	if secs := s.opts.Server.ShutdownTimeoutSeconds; secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	start := time.Now()
	err := srv.Shutdown(shutdownCtx)
	logger.Info(ctx, component, "server.stop",
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	if err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
