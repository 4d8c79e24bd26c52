package dialog

import "strings"

// matcher inspects the normalized input and the session context.
type matcher func(in input, ctx map[string]string) bool

// rule is one row of a stage table: the first rule whose matcher accepts the input fires.
type rule struct {
	name  string
	match matcher
	run   func(e *Engine, t Turn, in input) Outcome
}

// table is the ordered rule list of a stage plus its mandatory fallback.
type table struct {
	rules    []rule
	fallback rule
}

// input carries the trimmed text and its lowercase form.
type input struct {
	text  string
	lower string
}

func newInput(text string) input {
	text = strings.TrimSpace(text)
	return input{text: text, lower: strings.ToLower(text)}
}

func (in input) empty() bool { return in.text == "" }

// keywords matches when any word occurs in the input, ignoring case.
func keywords(words ...string) matcher {
	return func(in input, _ map[string]string) bool {
		return containsAny(in.lower, words)
	}
}

// exact matches when the whole input equals one of values, ignoring case.
func exact(values ...string) matcher {
	return func(in input, _ map[string]string) bool {
		for _, v := range values {
			if in.lower == v {
				return true
			}
		}
		return false
	}
}

// anyOf matches when at least one of ms does.
func anyOf(ms ...matcher) matcher {
	return func(in input, ctx map[string]string) bool {
		for _, m := range ms {
			if m(in, ctx) {
				return true
			}
		}
		return false
	}
}

// with guards m by the presence of a non-empty context key.
func with(key string, m matcher) matcher {
	return func(in input, ctx map[string]string) bool {
		return ctx[key] != "" && m(in, ctx)
	}
}

func containsAny(s string, words []string) bool {
	if s == "" {
		return false
	}
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// pick returns the rule that handles in for table tb.
func (tb table) pick(in input, ctx map[string]string) rule {
	for _, r := range tb.rules {
		if r.match(in, ctx) {
			return r
		}
	}
	return tb.fallback
}
