// Package telegram adapts the Telegram Bot API through telebot.
package telegram

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/propbot/core/channel"

	tele "gopkg.in/telebot.v4"
)

// Provider is the name recorded on normalized messages.
const Provider = "telegram"

// Normalizer parses Telegram webhook updates.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer returns a Normalizer using the wall clock for callback queries.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize handles text messages and callback queries. Updates from bots,
// edits and non-text content are not user messages.
func (n *Normalizer) Normalize(body []byte) ([]channel.Message, error) {
	var u tele.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("telegram: decode update: %w", err)
	}

	var out []channel.Message
	switch {
	case u.Message != nil:
		m := u.Message
		if m.Sender == nil || m.Sender.IsBot {
			break
		}
		out = channel.Accept(out, channel.Message{
			ID:         strconv.Itoa(m.ID),
			Sender:     strconv.FormatInt(m.Sender.ID, 10),
			Text:       m.Text,
			Kind:       channel.KindText,
			Provider:   Provider,
			ReceivedAt: n.timestamp(m.Unixtime),
		})
	case u.Callback != nil:
		cb := u.Callback
		if cb.Sender == nil || cb.Sender.IsBot {
			break
		}
		out = channel.Accept(out, channel.Message{
			ID:         cb.ID,
			Sender:     strconv.FormatInt(cb.Sender.ID, 10),
			Text:       callbackText(cb.Data),
			Kind:       channel.KindSelection,
			Provider:   Provider,
			ReceivedAt: n.timestamp(0),
		})
	}
	return channel.Result(out)
}

// callbackText strips telebot's "\f<unique>|" prefix from callback data.
func callbackText(data string) string {
	if strings.HasPrefix(data, "\f") {
		data = strings.TrimPrefix(data, "\f")
		if _, rest, ok := strings.Cut(data, "|"); ok {
			return rest
		}
	}
	return data
}

func (n *Normalizer) timestamp(unix int64) time.Time {
	if unix > 0 {
		return time.Unix(unix, 0).UTC()
	}
	if n.now == nil {
		return time.Now()
	}
	return n.now()
}
