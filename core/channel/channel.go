// Package channel defines the provider-neutral inbound message and the ports
// each messaging provider implements.
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m3rciful/propbot/core/dialog"
)

// InputKind tells typed text apart from a tapped quick reply.
type InputKind string

const (
	KindText      InputKind = "text"
	KindSelection InputKind = "selection"
)

// Message is a normalized inbound user message.
type Message struct {
	ID         string
	Sender     string
	Text       string
	Kind       InputKind
	Provider   string
	ReceivedAt time.Time
}

// ErrNotUserMessage classifies events with nothing to act on, such as delivery statuses.
var ErrNotUserMessage = errors.New("channel: not a user message")

// Normalizer turns a provider webhook body into user messages.
// It returns ErrNotUserMessage when the body is valid but carries no actionable message.
type Normalizer interface {
	Normalize(body []byte) ([]Message, error)
}

// Messenger delivers a single directive through the provider REST API.
type Messenger interface {
	Send(ctx context.Context, d dialog.Directive) error
}

// APIError is a non-2xx provider response.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: api error (%d)", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: api error: %s (%d)", e.Provider, e.Body, e.Status)
}

const maxErrorBody = 512

// Do executes req and converts a non-2xx response into *APIError.
// The response body is always drained and closed.
func Do(client *http.Client, provider string, req *http.Request) error {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request: %w", provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{Provider: provider, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}

// Accept appends a message when it has both a sender and non-blank text.
func Accept(out []Message, m Message) []Message {
	m.Sender = strings.TrimSpace(m.Sender)
	m.Text = strings.TrimSpace(m.Text)
	if m.Sender == "" || m.Text == "" {
		return out
	}
	if m.Kind == "" {
		m.Kind = KindText
	}
	return append(out, m)
}

// Result returns msgs, or ErrNotUserMessage when there are none.
func Result(msgs []Message) ([]Message, error) {
	if len(msgs) == 0 {
		return nil, ErrNotUserMessage
	}
	return msgs, nil
}

// ClipRunes shortens s to at most n runes.
func ClipRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Numbered renders a choice as plain text for surfaces that cannot show buttons.
func Numbered(d dialog.Directive) string {
	if !d.IsChoice() {
		return d.Body
	}
	var b strings.Builder
	b.WriteString(d.Body)
	b.WriteString("\n")
	for i, opt := range d.Options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
	}
	return b.String()
}
