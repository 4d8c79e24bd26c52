package logger

import (
	"log/slog"
	"slices"
	"strings"
)

// Vocabularies for the status and outcome keys. Unknown statuses are kept
// lowercased; unknown outcomes are dropped.
var (
	statusValues  = []string{"ok", "fail", "skip", "retry", "cancelled", "ignored", "dropped"}
	outcomeValues = []string{"ok", "fail", "cancelled", "ended", "ignored"}
)

func levelName(lvl slog.Level) string {
	switch {
	case lvl < slog.LevelInfo:
		return "DEBUG"
	case lvl < slog.LevelWarn:
		return "INFO"
	case lvl < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func enumValue(v string, allowed []string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	return v, v != "" && slices.Contains(allowed, v)
}

// defaultKeyOrder fixes the leading columns of every line. Keys not listed
// follow in alphabetical order.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"provider", "message_id", "user_id", "kind", "handler",
	"route", "from_stage", "to_stage", "created", "outcome", "directives",
	"duration_ms", "action", "endpoint", "method", "path", "http_code",
	"payload", "count", "sessions", "lead_kind", "lead_id",
	"listen", "mode", "db", "host", "port",
	"err", "error", "error_kind", "err_code", "cause",
	"attempt", "attempts", "delay_ms", "elapsed_ms",
}
