package telegram

import tele "gopkg.in/telebot.v4"

// ReplyButtons builds a one-time reply keyboard with one option per row.
func ReplyButtons(options ...string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	rows := make([]tele.Row, 0, len(options))
	for _, label := range options {
		rows = append(rows, markup.Row(markup.Text(label)))
	}
	markup.Reply(rows...)
	return markup
}

// RemoveKeyboard returns a markup that hides a previously shown keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}
