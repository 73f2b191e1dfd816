package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/message"
	"github.com/m3rciful/menubot/core/sender"
	tghelpers "github.com/m3rciful/menubot/core/telegram/helpers"
)

const (
	component = "tg"
	channel   = "telegram"
)

// Engine runs one conversational turn.
type Engine interface {
	Handle(ctx context.Context, userID string, in message.Inbound) ([]message.Outbound, error)
}

// botSender is the subset of *tele.Bot used to deliver replies.
type botSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Bridge feeds Telegram updates into the engine and sends the replies back.
type Bridge struct {
	engine Engine
	bot    botSender
	queue  *sender.Dispatcher
}

// NewBridge wires a bridge. A nil queue sends synchronously.
func NewBridge(engine Engine, bot botSender, queue *sender.Dispatcher) *Bridge {
	return &Bridge{engine: engine, bot: bot, queue: queue}
}

// SessionKey namespaces Telegram user ids so they never collide with WhatsApp ids.
func SessionKey(userID int64) string {
	return "tg:" + strconv.FormatInt(userID, 10)
}

// Register binds the bridge handlers on bot.
func (b *Bridge) Register(bot *tele.Bot) {
	bot.Handle(tele.OnText, b.OnText)
	bot.Handle(tele.OnCallback, b.OnCallback)
	for _, ep := range []string{tele.OnMedia, tele.OnSticker, tele.OnLocation, tele.OnContact} {
		bot.Handle(ep, b.OnOther)
	}
}

// OnText handles plain text, including commands such as /start.
func (b *Bridge) OnText(c tele.Context) error {
	return b.turn(c, "on_text", message.Text{Body: c.Text()})
}

// OnCallback handles inline keyboard presses.
func (b *Bridge) OnCallback(c tele.Context) error {
	_ = c.Respond()
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	return b.turn(c, "on_callback", message.InteractiveReply{OptionID: callbackOptionID(cb)})
}

// OnOther handles media and other unsupported message kinds.
func (b *Bridge) OnOther(c tele.Context) error {
	return b.turn(c, "on_other", message.Unhandled{RawType: updateKind(c.Update())})
}

func (b *Bridge) turn(c tele.Context, handler string, in message.Inbound) error {
	user := c.Sender()
	if user == nil {
		return nil
	}
	ctx := tghelpers.WithHandler(c, handler)
	key := SessionKey(user.ID)

	out, err := b.engine.Handle(ctx, key, in)
	if err != nil {
		logger.Error(ctx, component, "turn.fail", slog.String("err", err.Error()))
	}
	if len(out) == 0 {
		return nil
	}
	to := c.Recipient()
	if chat := c.Chat(); chat != nil {
		to = chat
	}
	if derr := b.Deliver(ctx, to, out); derr != nil {
		logger.Error(ctx, component, "send.enqueue",
			slog.String("err", sender.SanitizeError(derr)),
			slog.Int("messages", len(out)),
		)
	}
	return nil
}

// Deliver sends msgs to recipient in order as a single queue job.
func (b *Bridge) Deliver(ctx context.Context, to tele.Recipient, msgs []message.Outbound) error {
	var (
		mu   sync.Mutex
		next int
	)
	run := func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		for next < len(msgs) {
			if err := b.send(to, msgs[next]); err != nil {
				return fmt.Errorf("message %d/%d: %w", next+1, len(msgs), err)
			}
			next++
		}
		return nil
	}
	if b.queue == nil {
		return run(ctx)
	}
	return b.queue.Enqueue(ctx, "send_messages", "sendMessage", run)
}

func (b *Bridge) send(to tele.Recipient, out message.Outbound) error {
	switch m := out.(type) {
	case message.PlainText:
		_, err := b.bot.Send(to, m.Body)
		return err
	case message.Menu:
		_, err := b.bot.Send(to, m.Title, MenuMarkup(m))
		return err
	default:
		return fmt.Errorf("telegram: unsupported outbound %T", out)
	}
}

// callbackOptionID returns the option id carried by a keyboard press.
func callbackOptionID(cb *tele.Callback) string {
	if cb.Unique != "" {
		return cb.Data
	}
	return strings.TrimPrefix(cb.Data, "\f")
}

func updateKind(upd tele.Update) string {
	m := upd.Message
	if m == nil {
		return "other"
	}
	switch {
	case m.Photo != nil:
		return "photo"
	case m.Sticker != nil:
		return "sticker"
	case m.Voice != nil:
		return "voice"
	case m.Video != nil:
		return "video"
	case m.Document != nil:
		return "document"
	case m.Location != nil:
		return "location"
	case m.Contact != nil:
		return "contact"
	default:
		return "other"
	}
}
