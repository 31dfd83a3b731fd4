package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn describes one inline button. Exactly one of Data, URL or WebApp
// should be set; Data is sent back verbatim as the callback payload.
type InlineBtn struct {
	Text   string
	Data   string
	URL    string
	WebApp string
}

func (b InlineBtn) inline() tele.InlineButton {
	btn := tele.InlineButton{Text: b.Text}
	switch {
	case b.WebApp != "":
		btn.WebApp = &tele.WebApp{URL: b.WebApp}
	case b.URL != "":
		btn.URL = b.URL
	default:
		btn.Data = b.Data
	}
	return btn
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn. Empty rows are dropped.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = btn.inline()
		}
		inline = append(inline, r)
	}
	return &tele.ReplyMarkup{InlineKeyboard: inline}
}

// Grid splits a flat list of buttons into rows with up to n buttons per row.
// If n <= 1, every button gets its own row.
func Grid(buttons []InlineBtn, n int) [][]InlineBtn {
	if n <= 1 {
		n = 1
	}
	rows := make([][]InlineBtn, 0, (len(buttons)+n-1)/n)
	for i := 0; i < len(buttons); i += n {
		end := i + n
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}

// ReplyButtons builds a resized reply keyboard, one row per argument.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	kb := make([][]tele.ReplyButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.ReplyButton, len(row))
		for j, text := range row {
			r[j] = tele.ReplyButton{Text: text}
		}
		kb = append(kb, r)
	}
	return &tele.ReplyMarkup{ReplyKeyboard: kb, ResizeKeyboard: true}
}
