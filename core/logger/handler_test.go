package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/propbot/core/config"
)

func newTestLogger(buf *bytes.Buffer, f format) (*slog.Logger, *sink) {
	s := newSink([]io.Writer{buf}, 16)
	h := newLineHandler(handlerOptions{level: slog.LevelDebug, out: s, format: f})
	return slog.New(h), s
}

func output(t *testing.T, s *sink, buf *bytes.Buffer) string {
	t.Helper()
	if err := s.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return strings.TrimSpace(buf.String())
}

func TestKVLineKeyOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	log, s := newTestLogger(buf, formatKV)
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithMessageMeta(ctx, "meta", "wamid.1", "919800012345")

	LogEvent(ctx, log.With("component", "dialog"), slog.LevelInfo, "dialog.transition",
		slog.String("status", "OK"),
		slog.String("route", "start.buy"),
	)

	line := output(t, s, buf)
	want := []string{"ts=", "level=INFO", "component=dialog", "event=dialog.transition", "status=ok", "rid=rid-123", "provider=meta", "message_id=wamid.1", "user_id=********2345"}
	tokens := strings.Fields(line)
	if len(tokens) < len(want) {
		t.Fatalf("too few tokens in %q", line)
	}
	for i, prefix := range want {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %q, want prefix %q (line %s)", i, tokens[i], prefix, line)
		}
	}
}

func TestJSONLineKeyOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	log, s := newTestLogger(buf, formatJSON)
	ctx := WithRID(context.Background(), "rid-json")

	LogEvent(ctx, log.With("component", "sender"), slog.LevelError, "send.fail",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
		slog.String("error_kind", "http_5xx"),
	)

	line := output(t, s, buf)
	pos := -1
	for _, part := range []string{`{"ts":`, `"level":"ERROR"`, `"component":"sender"`, `"event":"send.fail"`, `"status":"fail"`, `"rid":"rid-json"`, `"ts_unix_nano":`, `"err":"boom"`} {
		idx := strings.Index(line, part)
		if idx < 0 || idx < pos {
			t.Fatalf("%s missing or out of order in %s", part, line)
		}
		pos = idx
	}
}

func TestUUIDRequestIDsAreShortened(t *testing.T) {
	rid := NewRID()

	buf := &bytes.Buffer{}
	log, s := newTestLogger(buf, formatKV)
	LogEvent(WithRID(context.Background(), rid), log, slog.LevelInfo, "rid.test")
	line := output(t, s, buf)
	if !containsToken(line, "rid="+rid[:8]) || strings.Contains(line, "rid_full=") {
		t.Fatalf("kv line = %s", line)
	}
	if !strings.Contains(line, "component=app") {
		t.Fatalf("expected default component in %s", line)
	}

	buf.Reset()
	log, s = newTestLogger(buf, formatJSON)
	LogEvent(WithRID(context.Background(), rid), log, slog.LevelInfo, "rid.test")
	line = output(t, s, buf)
	if !strings.Contains(line, `"rid":"`+rid[:8]+`"`) || !strings.Contains(line, `"rid_full":"`+rid+`"`) {
		t.Fatalf("json line = %s", line)
	}
}

func containsToken(line, token string) bool {
	for _, f := range strings.Fields(line) {
		if f == token {
			return true
		}
	}
	return false
}

func TestDurationsBecomeMilliseconds(t *testing.T) {
	buf := &bytes.Buffer{}
	log, s := newTestLogger(buf, formatKV)
	log.Info("send.success",
		slog.Duration("elapsed", 1500*time.Millisecond),
		slog.Duration("duration", 0),
		slog.Duration("delay_ms", 20*time.Millisecond),
		slog.Any("startup_duration", 2*time.Second),
	)

	line := output(t, s, buf)
	for _, want := range []string{"elapsed_ms=1500", "duration_ms=0", "delay_ms=20", "startup_duration_ms=2000", "event=send.success"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %s in %s", want, line)
		}
	}
}

func TestGroupsAndPresetAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	log, s := newTestLogger(buf, formatKV)
	log.With("component", "http").WithGroup("req").With("method", "POST").Info("http.request",
		slog.Group("body", slog.Int("bytes", 42)),
		slog.Any("err", errors.New("short read")),
	)

	line := output(t, s, buf)
	for _, want := range []string{"component=http", "req.method=POST", "req.body.bytes=42", `req.err="short read"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %s in %s", want, line)
		}
	}
}

func TestEnumeratedKeysAreNormalized(t *testing.T) {
	buf := &bytes.Buffer{}
	log, s := newTestLogger(buf, formatKV)
	log.Info("x", slog.String("status", "Custom"), slog.String("outcome", "bogus"), slog.String("empty", " "))

	line := output(t, s, buf)
	if !strings.Contains(line, "status=custom") {
		t.Fatalf("status not lowercased: %s", line)
	}
	if strings.Contains(line, "outcome=") || strings.Contains(line, "empty=") {
		t.Fatalf("invalid outcome or blank value kept: %s", line)
	}
}

func TestHandlerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	s := newSink([]io.Writer{buf}, 4)
	log := slog.New(newLineHandler(handlerOptions{level: slog.LevelWarn, out: s, format: formatKV}))
	log.Info("hidden")
	log.Warn("shown")
	line := output(t, s, buf)
	if strings.Contains(line, "hidden") || !strings.Contains(line, "level=WARN") {
		t.Fatalf("unexpected output %q", line)
	}
}

func TestSinkRejectsWritesAfterClose(t *testing.T) {
	buf := &bytes.Buffer{}
	s := newSink([]io.Writer{buf}, 4)
	if err := s.write([]byte("a\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if buf.String() != "a\n" {
		t.Fatalf("buffer = %q", buf.String())
	}
	if err := s.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.write([]byte("b\n")); !errors.Is(err, errSinkClosed) {
		t.Fatalf("write after close = %v", err)
	}
	if err := s.sync(); err != nil {
		t.Fatalf("sync after close: %v", err)
	}
}

func TestSamplerRatio(t *testing.T) {
	s := newSampler(2, 5)
	passed := 0
	for i := 0; i < 50; i++ {
		if s.allow() {
			passed++
		}
	}
	if passed != 20 {
		t.Fatalf("passed %d of 50, want 20", passed)
	}

	s.set(0, 0)
	for i := 0; i < 5; i++ {
		if !s.allow() {
			t.Fatal("disabled sampler must pass everything")
		}
	}
}

func TestParseSample(t *testing.T) {
	cases := map[string][2]int{
		"":      {1, 50},
		"1/10":  {1, 10},
		"20":    {1, 20},
		"5%":    {5, 100},
		"off":   {0, 0},
		"0":     {0, 0},
		"x/y":   {1, 50},
		"-3":    {1, 50},
		"bogus": {1, 50},
	}
	for spec, want := range cases {
		num, den := parseSample(spec)
		if num != want[0] || den != want[1] {
			t.Fatalf("parseSample(%q) = %d/%d, want %d/%d", spec, num, den, want[0], want[1])
		}
	}
}

func TestSettingsFromConfig(t *testing.T) {
	s := settingsFrom(&config.Config{Logging: config.LoggingConfig{
		Level:     "debug",
		Profile:   "Dev",
		KeysOrder: "event, ts",
		Dir:       "/var/log/propbot",
		File:      "bot.log",
	}})
	if s.level != slog.LevelDebug || s.format != formatKV || s.profile != "dev" {
		t.Fatalf("unexpected settings %+v", s)
	}
	if len(s.order) != 2 || s.order[0] != "event" {
		t.Fatalf("order = %v", s.order)
	}
	if s.file != "/var/log/propbot/bot.log" {
		t.Fatalf("file = %q", s.file)
	}

	def := settingsFrom(nil)
	if def.format != formatJSON || def.level != slog.LevelInfo || def.file != "" {
		t.Fatalf("unexpected defaults %+v", def)
	}
}

func TestHelpers(t *testing.T) {
	if got := MaskPhone("12"); got != "12" {
		t.Fatalf("short ids stay intact, got %q", got)
	}
	if got := MaskPhone("15550001111"); got != "*******1111" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := RoundMS(-time.Second); got != 0 {
		t.Fatalf("RoundMS(negative) = %v", got)
	}
	if got := RoundMS(1499 * time.Microsecond); got != time.Millisecond {
		t.Fatalf("RoundMS = %v", got)
	}
	if s, cut := SummarizeStrings([]string{"a", "b", "c"}, 2); s != "a, b" || !cut {
		t.Fatalf("SummarizeStrings = %q %v", s, cut)
	}
	if s, cut := SummarizeStrings(nil, 3); s != "" || cut {
		t.Fatalf("SummarizeStrings(nil) = %q %v", s, cut)
	}
	if got := SanitizeLimit("ab\x00cdef", 4); got != "abcd" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
}
