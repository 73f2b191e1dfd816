package whatsapp

import (
	"errors"
	"fmt"

	"github.com/m3rciful/menubot/core/catalog"
	"github.com/m3rciful/menubot/core/message"
)

// Cloud API limits for interactive messages.
const (
	maxButtons         = 3
	maxButtonTitle     = 20
	maxListRows        = 10
	maxRowTitle        = 24
	maxRowDescription  = 72
	listActionButton   = "Выбрать"
	listSectionTitle   = "Опции"
	messagingProductWA = "whatsapp"
)

// ErrUnsupportedMessage is returned by Render for outbound types it cannot encode.
var ErrUnsupportedMessage = errors.New("whatsapp: unsupported outbound message")

// Payload is the request body of POST /{phone-number-id}/messages.
type Payload struct {
	MessagingProduct string              `json:"messaging_product"`
	RecipientType    string              `json:"recipient_type"`
	To               string              `json:"to"`
	Type             string              `json:"type"`
	Text             *TextPayload        `json:"text,omitempty"`
	Interactive      *InteractivePayload `json:"interactive,omitempty"`
}

// TextPayload is a plain text body.
type TextPayload struct {
	Body string `json:"body"`
}

// InteractivePayload is a button or list message.
type InteractivePayload struct {
	Type   string            `json:"type"`
	Body   TextPayload       `json:"body"`
	Action InteractiveAction `json:"action"`
}

// InteractiveAction carries either Buttons or Button+Sections.
type InteractiveAction struct {
	Buttons  []ReplyButton `json:"buttons,omitempty"`
	Button   string        `json:"button,omitempty"`
	Sections []ListSection `json:"sections,omitempty"`
}

// ReplyButton is one quick-reply button.
type ReplyButton struct {
	Type  string     `json:"type"`
	Reply ReplyTitle `json:"reply"`
}

// ReplyTitle identifies a button by option id.
type ReplyTitle struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ListSection groups list rows.
type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// ListRow is one selectable list entry.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Render maps an outbound message to the Cloud API wire format.
func Render(to string, out message.Outbound) (Payload, error) {
	p := Payload{
		MessagingProduct: messagingProductWA,
		RecipientType:    "individual",
		To:               to,
	}
	switch m := out.(type) {
	case message.PlainText:
		p.Type = "text"
		p.Text = &TextPayload{Body: m.Body}
	case message.Menu:
		p.Type = "interactive"
		p.Interactive = renderMenu(m)
	default:
		return Payload{}, fmt.Errorf("%w: %T", ErrUnsupportedMessage, out)
	}
	return p, nil
}

func renderMenu(m message.Menu) *InteractivePayload {
	ip := &InteractivePayload{Body: TextPayload{Body: m.Title}}
	if m.Kind == catalog.KindButton {
		ip.Type = "button"
		for i, opt := range m.Options {
			if i == maxButtons {
				break
			}
			ip.Action.Buttons = append(ip.Action.Buttons, ReplyButton{
				Type:  "reply",
				Reply: ReplyTitle{ID: opt.ID, Title: truncate(opt.Title, maxButtonTitle)},
			})
		}
		return ip
	}

	ip.Type = "list"
	ip.Action.Button = listActionButton
	section := ListSection{Title: listSectionTitle, Rows: []ListRow{}}
	for i, opt := range m.Options {
		if i == maxListRows {
			break
		}
		section.Rows = append(section.Rows, ListRow{
			ID:          opt.ID,
			Title:       truncate(opt.Title, maxRowTitle),
			Description: truncate(opt.Description, maxRowDescription),
		})
	}
	ip.Action.Sections = []ListSection{section}
	return ip
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
