package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

const tsLayout = "2006-01-02T15:04:05.000Z07:00"

type handlerOptions struct {
	level  slog.Leveler
	out    *sink
	format format
	order  []string
}

type field struct {
	key string
	val any
}

// lineHandler renders each record as one flat line. Groups become dotted
// key prefixes and durations become *_ms integers.
type lineHandler struct {
	opts   handlerOptions
	preset []field
	prefix string
}

func newLineHandler(opts handlerOptions) *lineHandler {
	if opts.level == nil {
		opts.level = slog.LevelInfo
	}
	if opts.order == nil {
		opts.order = defaultKeyOrder
	}
	return &lineHandler{opts: opts}
}

func (h *lineHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.opts.level.Level()
}

func (h *lineHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.opts.out == nil {
		return errors.New("logger: no output configured")
	}
	ts := r.Time.UTC()
	fields := make(map[string]any, 16+len(h.preset))
	fields["ts"] = ts.Truncate(time.Millisecond).Format(tsLayout)
	fields["level"] = levelName(r.Level)
	for _, f := range h.preset {
		fields[f.key] = f.val
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(h.prefix, a, func(f field) { fields[f.key] = f.val })
		return true
	})
	fromContext(ctx, fields)

	isJSON := h.opts.format == formatJSON
	finish(fields, r.Message, isJSON)
	if isJSON {
		fields["ts_unix_nano"] = ts.UnixNano()
	}

	keys := layout(fields, h.opts.order)
	buf := make([]byte, 0, 256)
	if isJSON {
		line, err := appendJSON(buf, fields, keys)
		if err != nil {
			return err
		}
		return h.opts.out.write(line)
	}
	return h.opts.out.write(appendKV(buf, fields, keys))
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.preset = append([]field(nil), h.preset...)
	for _, a := range attrs {
		flatten(h.prefix, a, func(f field) { next.preset = append(next.preset, f) })
	}
	return &next
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = joinKey(h.prefix, name)
	return &next
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

// flatten emits the leaves of a, with group members keyed by dotted path.
func flatten(prefix string, a slog.Attr, emit func(field)) {
	v := a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			flatten(key, child, emit)
		}
		return
	}
	if key == "" {
		return
	}
	if f, ok := toField(key, v); ok {
		emit(f)
	}
}

func toField(key string, v slog.Value) (field, bool) {
	switch v.Kind() {
	case slog.KindString:
		return field{key, strings.TrimSpace(v.String())}, true
	case slog.KindBool:
		return field{key, v.Bool()}, true
	case slog.KindInt64:
		return field{key, v.Int64()}, true
	case slog.KindUint64:
		if u := v.Uint64(); u > math.MaxInt64 {
			return field{key, u}, true
		}
		return field{key, int64(v.Uint64())}, true
	case slog.KindFloat64:
		return field{key, v.Float64()}, true
	case slog.KindDuration:
		return millis(key, v.Duration()), true
	case slog.KindTime:
		return field{key, v.Time().UTC().Format(time.RFC3339Nano)}, true
	}
	switch x := v.Any().(type) {
	case nil:
		return field{}, false
	case error:
		return field{key, x.Error()}, true
	case string:
		return field{key, strings.TrimSpace(x)}, true
	case time.Duration:
		return millis(key, x), true
	case fmt.Stringer:
		return field{key, x.String()}, true
	default:
		return field{key, fmt.Sprint(x)}, true
	}
}

// millis renders d in whole milliseconds under a key that names the unit.
func millis(key string, d time.Duration) field {
	if !strings.HasSuffix(key, "_ms") {
		key += "_ms"
	}
	return field{key, RoundMS(d).Milliseconds()}
}

// finish fills required keys, shortens UUID request ids, normalizes the
// enumerated keys and drops empty values.
func finish(fields map[string]any, msg string, keepFullRID bool) {
	if rid, _ := fields["rid"].(string); rid != "" {
		if short := CompactRID(rid); short != rid {
			if _, ok := fields["rid_full"]; keepFullRID && !ok {
				fields["rid_full"] = rid
			}
			fields["rid"] = short
		}
	}
	if ev, _ := fields["event"].(string); ev == "" {
		fields["event"] = msg
		if msg == "" {
			fields["event"] = "unknown"
		}
	}
	if c, _ := fields["component"].(string); c == "" {
		fields["component"] = "app"
	}
	if s, ok := fields["status"].(string); ok {
		fields["status"], _ = enumValue(s, statusValues)
	}
	if o, ok := fields["outcome"].(string); ok {
		if v, valid := enumValue(o, outcomeValues); valid {
			fields["outcome"] = v
		} else {
			delete(fields, "outcome")
		}
	}
	for k, v := range fields {
		if s, ok := v.(string); ok && s == "" {
			delete(fields, k)
		}
	}
}

// fromContext adds correlation values carried by ctx unless the record set them.
func fromContext(ctx context.Context, fields map[string]any) {
	if ctx == nil {
		return
	}
	add := func(key, value string) {
		if _, ok := fields[key]; !ok && value != "" {
			fields[key] = value
		}
	}
	add("rid", RIDFrom(ctx))
	add("provider", ProviderFrom(ctx))
	add("message_id", MessageIDFrom(ctx))
	add("user_id", MaskPhone(UserIDFrom(ctx)))
	add("handler", HandlerFrom(ctx))
}
