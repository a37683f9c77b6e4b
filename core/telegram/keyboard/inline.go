package keyboard

import (
	"github.com/m3rciful/chartbot/chart/reply"

	tele "gopkg.in/telebot.v4"
)

// Inline converts a reply keyboard into Telegram inline markup.
// Button data is sent as is, without telebot's unique prefix. Empty layouts yield nil.
func Inline(kb reply.Keyboard) *tele.ReplyMarkup {
	rows := make([][]tele.InlineButton, 0, len(kb))
	for _, row := range kb {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for i, b := range row {
			r[i] = tele.InlineButton{Text: b.Text, Data: b.Data}
		}
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		return nil
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
