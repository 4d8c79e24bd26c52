package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/m3rciful/propbot/core/channel"
	"github.com/m3rciful/propbot/core/config"
	"github.com/m3rciful/propbot/core/dialog"
)

const (
	defaultBaseURL = "https://graph.facebook.com"
	// Cloud API limits for reply buttons.
	maxButtonTitle  = 20
	maxButtonsBody  = 1024
	messagingSystem = "whatsapp"
)

// Messenger sends directives through the Graph API messages endpoint.
type Messenger struct {
	client   *http.Client
	endpoint string
	token    string
}

// NewMessenger builds a Messenger from channel settings.
func NewMessenger(cfg config.ChannelConfig, client *http.Client) *Messenger {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Messenger{
		client:   client,
		endpoint: fmt.Sprintf("%s/%s/%s/messages", base, cfg.GraphVersion, cfg.PhoneNumberID),
		token:    cfg.AccessToken,
	}
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type interactiveBody struct {
	Type string `json:"type"`
	Body struct {
		Text string `json:"text"`
	} `json:"body"`
	Action struct {
		Buttons []button `json:"buttons"`
	} `json:"action"`
}

type button struct {
	Type  string `json:"type"`
	Reply reply  `json:"reply"`
}

type outbound struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             *textBody        `json:"text,omitempty"`
	Interactive      *interactiveBody `json:"interactive,omitempty"`
}

// Send posts d. Choices become reply buttons unless the body exceeds the
// interactive limit, in which case the options are appended as numbered text.
func (m *Messenger) Send(ctx context.Context, d dialog.Directive) error {
	payload, err := json.Marshal(buildPayload(d))
	if err != nil {
		return fmt.Errorf("meta: encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("meta: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Content-Type", "application/json")
	return channel.Do(m.client, Provider, req)
}

func buildPayload(d dialog.Directive) outbound {
	msg := outbound{
		MessagingProduct: messagingSystem,
		RecipientType:    "individual",
		To:               d.Recipient,
	}
	if !d.IsChoice() || len([]rune(d.Body)) > maxButtonsBody {
		msg.Type = "text"
		msg.Text = &textBody{Body: channel.Numbered(d)}
		return msg
	}
	ib := &interactiveBody{Type: "button"}
	ib.Body.Text = d.Body
	for i, opt := range d.Options {
		ib.Action.Buttons = append(ib.Action.Buttons, button{
			Type:  "reply",
			Reply: reply{ID: "opt_" + strconv.Itoa(i+1), Title: channel.ClipRunes(opt, maxButtonTitle)},
		})
	}
	msg.Type = "interactive"
	msg.Interactive = ib
	return msg
}
