package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/m3rciful/propbot/core/config"
	"github.com/m3rciful/propbot/core/dialog"

	tele "gopkg.in/telebot.v4"
)

// Messenger sends directives with a telebot Bot that never polls; updates
// arrive through the shared webhook endpoint instead.
type Messenger struct {
	bot *tele.Bot
}

// NewMessenger creates an offline telebot Bot for outbound calls only.
func NewMessenger(cfg config.ChannelConfig, client *http.Client) (*Messenger, error) {
	settings := tele.Settings{
		Token:   cfg.TelegramToken,
		Offline: true,
		Client:  client,
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"); base != "" {
		settings.URL = base
	}
	bot, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return &Messenger{bot: bot}, nil
}

// Send delivers d to the private chat of its recipient. Choices are rendered
// as a reply keyboard; plain messages remove any keyboard left over.
func (m *Messenger) Send(ctx context.Context, d dialog.Directive) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(d.Recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid recipient %q: %w", d.Recipient, err)
	}
	markup := RemoveKeyboard()
	if d.IsChoice() {
		markup = ReplyButtons(d.Options...)
	}
	_, err = m.bot.Send(tele.ChatID(chatID), d.Body, markup)
	return err
}
