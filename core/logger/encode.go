package logger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type format int

const (
	formatJSON format = iota
	formatKV
)

// parseFormat picks the line format. Without an explicit choice, debug and
// dev profiles get key=value lines and everything else JSON.
func parseFormat(name, profile string) format {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	switch strings.ToLower(strings.TrimSpace(profile)) {
	case "debug", "dev":
		return formatKV
	}
	return formatJSON
}

// layout lists the keys of fields: those named in order first, the rest sorted.
func layout(fields map[string]any, order []string) []string {
	keys := make([]string, 0, len(fields))
	placed := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := fields[k]; ok && !placed[k] {
			keys = append(keys, k)
			placed[k] = true
		}
	}
	head := len(keys)
	for k := range fields {
		if !placed[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys[head:])
	return keys
}

func appendJSON(dst []byte, fields map[string]any, keys []string) ([]byte, error) {
	dst = append(dst, '{')
	for i, k := range keys {
		if i > 0 {
			dst = append(dst, ',')
		}
		v, err := json.Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %q: %w", k, err)
		}
		dst = strconv.AppendQuote(dst, k)
		dst = append(dst, ':')
		dst = append(dst, v...)
	}
	return append(dst, '}', '\n'), nil
}

func appendKV(dst []byte, fields map[string]any, keys []string) []byte {
	for i, k := range keys {
		if i > 0 {
			dst = append(dst, ' ')
		}
		dst = append(dst, k...)
		dst = append(dst, '=')
		dst = appendKVValue(dst, fields[k])
	}
	return append(dst, '\n')
}

func appendKVValue(dst []byte, v any) []byte {
	var s string
	switch x := v.(type) {
	case bool:
		return strconv.AppendBool(dst, x)
	case int64:
		return strconv.AppendInt(dst, x, 10)
	case uint64:
		return strconv.AppendUint(dst, x, 10)
	case float64:
		return strconv.AppendFloat(dst, x, 'g', -1, 64)
	case string:
		s = x
	default:
		s = fmt.Sprint(x)
	}
	if strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.AppendQuote(dst, s)
	}
	return append(dst, s...)
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
