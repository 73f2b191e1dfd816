// Package whatsapp adapts the WhatsApp Cloud API webhook and send endpoint to
// the channel-neutral message types used by the engine.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/message"
)

const component = "whatsapp"

// ObjectBusinessAccount is the only webhook object the bot handles.
const ObjectBusinessAccount = "whatsapp_business_account"

// ErrEmptyBody is returned by ParseWebhook for an empty request body.
var ErrEmptyBody = errors.New("whatsapp: empty webhook body")

// Event is one normalized inbound message.
type Event struct {
	SenderID  string
	MessageID string
	Message   message.Inbound
}

type webhookPayload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Contacts         []contact        `json:"contacts"`
	Messages         []inboundMessage `json:"messages"`
}

type contact struct {
	WaID string `json:"wa_id"`
}

type inboundMessage struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	Type        string       `json:"type"`
	Text        *textBody    `json:"text,omitempty"`
	Interactive *interactive `json:"interactive,omitempty"`
	Button      *buttonEcho  `json:"button,omitempty"`
}

type textBody struct {
	Body string `json:"body"`
}

type interactive struct {
	Type        string     `json:"type"`
	ButtonReply *replyItem `json:"button_reply,omitempty"`
	ListReply   *replyItem `json:"list_reply,omitempty"`
}

type replyItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type buttonEcho struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// ParseWebhook decodes a webhook body into events, at most one per "messages"
// change. Changes without a sender are dropped and logged. A body for another
// object type yields no events and no error.
func ParseWebhook(ctx context.Context, body []byte) ([]Event, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, ErrEmptyBody
	}
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("whatsapp: decode webhook: %w", err)
	}
	if p.Object != ObjectBusinessAccount {
		logger.Warn(ctx, component, "webhook.ignored",
			slog.String("payload", logger.SanitizeLimit(p.Object, 64)),
			slog.String("cause", "unexpected_object"),
		)
		return nil, nil
	}

	var events []Event
	for _, e := range p.Entry {
		for _, ch := range e.Changes {
			if ch.Field != "messages" || len(ch.Value.Messages) == 0 {
				continue
			}
			ev, ok := parseChange(ctx, ch.Value)
			if ok {
				events = append(events, ev)
			}
		}
	}
	return events, nil
}

func parseChange(ctx context.Context, v changeValue) (Event, bool) {
	msg := v.Messages[0]
	var sender string
	if len(v.Contacts) > 0 {
		sender = strings.TrimSpace(v.Contacts[0].WaID)
	}
	if sender == "" {
		logger.Warn(ctx, component, "webhook.drop",
			slog.String("msg_id", msg.ID),
			slog.String("cause", "missing_sender"),
		)
		return Event{}, false
	}
	return Event{SenderID: sender, MessageID: msg.ID, Message: normalize(msg)}, true
}

func normalize(m inboundMessage) message.Inbound {
	switch m.Type {
	case "text":
		if m.Text == nil {
			return message.Unhandled{RawType: "text"}
		}
		return message.Text{Body: m.Text.Body}
	case "interactive":
		if m.Interactive == nil {
			return message.Unhandled{RawType: "interactive"}
		}
		switch m.Interactive.Type {
		case "button_reply":
			if m.Interactive.ButtonReply != nil {
				return message.InteractiveReply{OptionID: m.Interactive.ButtonReply.ID}
			}
		case "list_reply":
			if m.Interactive.ListReply != nil {
				return message.InteractiveReply{OptionID: m.Interactive.ListReply.ID}
			}
		}
		return message.Unhandled{RawType: "interactive:" + m.Interactive.Type}
	case "button":
		if m.Button == nil {
			return message.Unhandled{RawType: "button"}
		}
		return message.Text{Body: m.Button.Text}
	default:
		return message.Unhandled{RawType: m.Type}
	}
}
