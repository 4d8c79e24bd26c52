// Package logger provides the structured slog pipeline: one line per event,
// fixed leading keys, correlation values taken from the context.
package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/propbot/core/buildinfo"
	"github.com/m3rciful/propbot/core/config"
)

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	closed   bool

	out     *sink
	files   []io.Closer
	level   slog.LevelVar
	sampled = newSampler(defaultSampleNum, defaultSampleDen)
	trace   bool

	// L is the base logger. Until InitLogger runs it discards everything.
	L = slog.New(slog.NewTextHandler(io.Discard, nil))

	// HTTP logs webhook transport events.
	HTTP = L
	// Dialog logs state machine transitions.
	Dialog = L
	// Sender logs outbound dispatch activity.
	Sender = L
	// DB logs database-related events.
	DB = L
	// MIG logs database migration events.
	MIG = L
	// App logs process lifecycle events.
	App = L
)

type settings struct {
	level      slog.Level
	format     format
	order      []string
	sampleNum  int
	sampleDen  int
	profile    string
	file       string
	traceDebug bool
}

func settingsFrom(cfg *config.Config) settings {
	s := settings{
		level:      slog.LevelInfo,
		format:     formatJSON,
		order:      defaultKeyOrder,
		sampleNum:  defaultSampleNum,
		sampleDen:  defaultSampleDen,
		profile:    "prod",
		traceDebug: envFlag("TRACE") || envFlag("LOG_TRACE"),
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	s.level = parseLevel(lc.Level)
	s.format = parseFormat(lc.Format, lc.Profile)
	s.order = parseKeyOrder(lc.KeysOrder)
	s.sampleNum, s.sampleDen = parseSample(lc.DebugSample)
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	if dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.File); dir != "" && name != "" {
		s.file = filepath.Join(dir, name)
	}
	return s
}

func parseKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return defaultKeyOrder
	}
	var order []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			order = append(order, k)
		}
	}
	if len(order) == 0 {
		return defaultKeyOrder
	}
	return order
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// InitLogger configures the global structured logger. Only the first call has an effect.
func InitLogger(cfg *config.Config) error {
	initOnce.Do(func() {
		s := settingsFrom(cfg)
		level.Set(s.level)
		sampled.set(s.sampleNum, s.sampleDen)
		trace = s.traceDebug

		outputs := []io.Writer{os.Stdout}
		if f := openLogFile(s.file); f != nil {
			outputs = append(outputs, f)
			files = append(files, f)
		}
		out = newSink(outputs, 256)

		L = slog.New(newLineHandler(handlerOptions{
			level:  &level,
			out:    out,
			format: s.format,
			order:  s.order,
		}))
		slog.SetDefault(L)
		HTTP = Component("http")
		Dialog = Component("dialog")
		Sender = Component("sender")
		DB = Component("db")
		MIG = Component("db.migrate")
		App = Component("app")

		attrs := []slog.Attr{
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", s.profile),
		}
		if cfg != nil {
			attrs = append(attrs, slog.String("provider", cfg.Channel.Provider))
		}
		LogEvent(context.Background(), App, slog.LevelInfo, "startup", attrs...)
	})
	return nil
}

func openLogFile(path string) *os.File {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("logger: create log dir for %s: %v", path, err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("logger: open log file %s: %v", path, err)
		return nil
	}
	return f
}

// Shutdown flushes buffered log output and closes opened files.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if out != nil {
		errs = append(errs, out.sync(), out.close())
	}
	for _, f := range files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

// LogEvent logs event at level, with correlation values from ctx.
// A nil logger falls back to the one stored in ctx.
func LogEvent(ctx context.Context, logg *slog.Logger, lvl slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, lvl, "", attrs...)
}

// Component returns L scoped to a component name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug event should be logged.
// TRACE=1 disables sampling.
func ShouldSampleDebug() bool {
	return trace || sampled.allow()
}
