// Package message defines the channel-neutral inbound and outbound message shapes
// exchanged between transports and the session engine.
package message

import "github.com/m3rciful/menubot/core/catalog"

// Inbound is a normalized user message: Text, InteractiveReply or Unhandled.
type Inbound interface {
	inbound()
}

// Text is a free-form text body.
type Text struct {
	Body string
}

// InteractiveReply is a button or list selection carrying the chosen option id.
type InteractiveReply struct {
	OptionID string
}

// Unhandled marks a message type the bot does not understand.
type Unhandled struct {
	RawType string
}

func (Text) inbound()             {}
func (InteractiveReply) inbound() {}
func (Unhandled) inbound()        {}

// Outbound is a normalized reply: PlainText or Menu.
type Outbound interface {
	outbound()
}

// PlainText is a text reply.
type PlainText struct {
	Body string
}

// Menu is a fresh snapshot of a catalog menu ready for rendering.
type Menu struct {
	ID      string
	Title   string
	Kind    catalog.Kind
	Options []catalog.Option
}

func (PlainText) outbound() {}
func (Menu) outbound()      {}

// MenuFrom builds an outbound menu from catalog data. Kind defaults to list.
func MenuFrom(m catalog.Menu) Menu {
	kind := m.Kind
	if kind == "" {
		kind = catalog.KindList
	}
	return Menu{
		ID:      m.ID,
		Title:   m.Title,
		Kind:    kind,
		Options: append([]catalog.Option(nil), m.Options...),
	}
}

// Kind names an inbound or outbound message for logging.
func Kind(v any) string {
	switch v.(type) {
	case Text:
		return "text"
	case InteractiveReply:
		return "interactive"
	case Unhandled:
		return "unhandled"
	case PlainText:
		return "plain_text"
	case Menu:
		return "menu"
	default:
		return "unknown"
	}
}
