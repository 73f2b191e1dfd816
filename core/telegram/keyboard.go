package telegram

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/menubot/core/message"
)

// maxCallbackData is the Telegram limit for callback_data in bytes.
const maxCallbackData = 64

// MenuMarkup builds an inline keyboard with one option per row. The callback
// data is the bare option id so replies map straight to InteractiveReply.
func MenuMarkup(m message.Menu) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	rows := make([][]tele.InlineButton, 0, len(m.Options))
	for _, opt := range m.Options {
		if opt.ID == "" || len(opt.ID) > maxCallbackData {
			continue
		}
		rows = append(rows, []tele.InlineButton{{Text: opt.Title, Data: opt.ID}})
	}
	markup.InlineKeyboard = rows
	return markup
}
