package gupshup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/m3rciful/propbot/core/channel"
	"github.com/m3rciful/propbot/core/config"
	"github.com/m3rciful/propbot/core/dialog"
)

const (
	defaultBaseURL = "https://api.gupshup.io"
	sendPath       = "/wa/api/v1/msg"
	maxOptionTitle = 20
)

// Messenger sends directives through the Gupshup form-encoded message API.
type Messenger struct {
	client   *http.Client
	endpoint string
	apiKey   string
	source   string
	appName  string
}

// NewMessenger builds a Messenger from channel settings.
func NewMessenger(cfg config.ChannelConfig, client *http.Client) *Messenger {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Messenger{
		client:   client,
		endpoint: base + sendPath,
		apiKey:   cfg.GupshupAPIKey,
		source:   cfg.GupshupSource,
		appName:  cfg.GupshupAppName,
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type quickReply struct {
	Type    string `json:"type"`
	MsgID   string `json:"msgid"`
	Content struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Options []option `json:"options"`
}

type option struct {
	Type  string `json:"type"`
	Title string `json:"title"`
}

// Send posts d; choices are sent as quick_reply messages.
func (m *Messenger) Send(ctx context.Context, d dialog.Directive) error {
	msg, err := encodeMessage(d)
	if err != nil {
		return fmt.Errorf("gupshup: encode message: %w", err)
	}
	form := url.Values{}
	form.Set("channel", "whatsapp")
	form.Set("source", m.source)
	form.Set("destination", d.Recipient)
	if m.appName != "" {
		form.Set("src.name", m.appName)
	}
	form.Set("message", msg)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("gupshup: build request: %w", err)
	}
	req.Header.Set("apikey", m.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return channel.Do(m.client, Provider, req)
}

func encodeMessage(d dialog.Directive) (string, error) {
	var v any
	if d.IsChoice() {
		qr := quickReply{Type: "quick_reply", MsgID: "qr"}
		qr.Content.Type = "text"
		qr.Content.Text = d.Body
		for _, opt := range d.Options {
			qr.Options = append(qr.Options, option{Type: "text", Title: channel.ClipRunes(opt, maxOptionTitle)})
		}
		v = qr
	} else {
		v = textMessage{Type: "text", Text: d.Body}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
