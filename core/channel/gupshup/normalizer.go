// Package gupshup adapts the Gupshup WhatsApp API.
package gupshup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/m3rciful/propbot/core/channel"
)

// Provider is the name recorded on normalized messages.
const Provider = "gupshup"

type event struct {
	App       string  `json:"app"`
	Type      string  `json:"type"`
	Timestamp int64   `json:"timestamp"`
	Payload   payload `json:"payload"`
}

type payload struct {
	ID     string          `json:"id"`
	Source string          `json:"source"`
	Type   string          `json:"type"`
	Text   string          `json:"text"`
	Sender json.RawMessage `json:"sender"`
	Inner  *inner          `json:"payload"`
}

type inner struct {
	Text         string `json:"text"`
	Title        string `json:"title"`
	PostbackText string `json:"postbackText"`
}

type senderObject struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// Normalizer parses Gupshup inbound message callbacks.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer returns a Normalizer using the wall clock for missing timestamps.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize accepts both the sandbox shape (payload.sender as a string and
// payload.text) and the v2 shape (payload.sender.phone and payload.payload.text).
func (n *Normalizer) Normalize(body []byte) ([]channel.Message, error) {
	var ev event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("gupshup: decode webhook: %w", err)
	}
	if ev.Type != "" && ev.Type != "message" {
		return nil, channel.ErrNotUserMessage
	}

	p := ev.Payload
	text, kind := extract(p)
	out := channel.Accept(nil, channel.Message{
		ID:         p.ID,
		Sender:     sender(p),
		Text:       text,
		Kind:       kind,
		Provider:   Provider,
		ReceivedAt: n.timestamp(ev.Timestamp),
	})
	return channel.Result(out)
}

func extract(p payload) (string, channel.InputKind) {
	switch p.Type {
	case "button_reply", "quick_reply", "list_reply":
		if p.Inner != nil {
			if p.Inner.Title != "" {
				return p.Inner.Title, channel.KindSelection
			}
			return p.Inner.Text, channel.KindSelection
		}
	}
	if p.Text != "" {
		return p.Text, channel.KindText
	}
	if p.Inner != nil {
		return p.Inner.Text, channel.KindText
	}
	return "", channel.KindText
}

func sender(p payload) string {
	raw := bytes.TrimSpace(p.Sender)
	if len(raw) > 0 {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var obj senderObject
		if err := json.Unmarshal(raw, &obj); err == nil && obj.Phone != "" {
			return obj.Phone
		}
	}
	return p.Source
}

func (n *Normalizer) timestamp(ms int64) time.Time {
	if ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	if n.now == nil {
		return time.Now()
	}
	return n.now()
}
