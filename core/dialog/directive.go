package dialog

// Kind distinguishes plain text from text with quick-reply options.
type Kind string

const (
	KindPlain  Kind = "plain"
	KindChoice Kind = "choice"
)

// MaxOptions is the number of quick replies every supported channel can render.
const MaxOptions = 3

// Directive is a single outbound message produced by the engine.
type Directive struct {
	Kind      Kind
	Recipient string
	Body      string
	Options   []string
}

// Plain builds a text-only directive.
func Plain(to, body string) Directive {
	return Directive{Kind: KindPlain, Recipient: to, Body: body}
}

// Choice builds a directive with quick-reply options.
// Options beyond MaxOptions are dropped; no options yields a plain directive.
func Choice(to, body string, options ...string) Directive {
	if len(options) == 0 {
		return Plain(to, body)
	}
	if len(options) > MaxOptions {
		options = options[:MaxOptions]
	}
	opts := make([]string, len(options))
	copy(opts, options)
	return Directive{Kind: KindChoice, Recipient: to, Body: body, Options: opts}
}

// IsChoice reports whether the directive carries quick-reply options.
func (d Directive) IsChoice() bool { return d.Kind == KindChoice && len(d.Options) > 0 }
