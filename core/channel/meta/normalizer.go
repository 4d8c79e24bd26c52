// Package meta adapts the WhatsApp Cloud API (graph.facebook.com).
package meta

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/m3rciful/propbot/core/channel"
)

// Provider is the name recorded on normalized messages.
const Provider = "meta"

type webhook struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string `json:"field"`
	Value value  `json:"value"`
}

type value struct {
	MessagingProduct string            `json:"messaging_product"`
	Messages         []inbound         `json:"messages"`
	Statuses         []json.RawMessage `json:"statuses"`
}

type inbound struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *reply `json:"button_reply"`
		ListReply   *reply `json:"list_reply"`
	} `json:"interactive"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button"`
}

type reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Normalizer parses WhatsApp Cloud API webhook notifications.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer returns a Normalizer stamping messages with the wall clock when
// the payload carries no timestamp.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize extracts every actionable message in delivery order.
// Status callbacks and unsupported message types are skipped.
func (n *Normalizer) Normalize(body []byte) ([]channel.Message, error) {
	var w webhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("meta: decode webhook: %w", err)
	}

	var out []channel.Message
	for _, e := range w.Entry {
		for _, c := range e.Changes {
			for _, m := range c.Value.Messages {
				text, kind, ok := extract(m)
				if !ok {
					continue
				}
				out = channel.Accept(out, channel.Message{
					ID:         m.ID,
					Sender:     m.From,
					Text:       text,
					Kind:       kind,
					Provider:   Provider,
					ReceivedAt: n.timestamp(m.Timestamp),
				})
			}
		}
	}
	return channel.Result(out)
}

func extract(m inbound) (string, channel.InputKind, bool) {
	switch m.Type {
	case "text":
		if m.Text != nil {
			return m.Text.Body, channel.KindText, true
		}
	case "interactive":
		if m.Interactive == nil {
			return "", "", false
		}
		if r := m.Interactive.ButtonReply; r != nil {
			return r.Title, channel.KindSelection, true
		}
		if r := m.Interactive.ListReply; r != nil {
			return r.Title, channel.KindSelection, true
		}
	case "button":
		if m.Button != nil {
			return m.Button.Text, channel.KindSelection, true
		}
	}
	return "", "", false
}

func (n *Normalizer) timestamp(raw string) time.Time {
	if sec, err := strconv.ParseInt(raw, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0).UTC()
	}
	if n.now == nil {
		return time.Now()
	}
	return n.now()
}
