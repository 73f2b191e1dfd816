// Package engine runs one conversational turn: it resolves the user's reply
// against the menu graph, updates the session and produces the outbound messages.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/menubot/core/catalog"
	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/message"
	"github.com/m3rciful/menubot/core/orders"
	"github.com/m3rciful/menubot/core/session"
)

const component = "engine"

// DefaultSinkTimeout bounds one order sink call.
const DefaultSinkTimeout = 10 * time.Second

// DefaultResetKeywords return the user to the root menu.
var DefaultResetKeywords = []string{"меню", "menu", "start", "/start", "привет", "здравствуйте", "hi", "hello"}

// Outcome labels the transition taken by a turn.
type Outcome string

const (
	OutcomeReset     Outcome = "reset"
	OutcomeGreeting  Outcome = "greeting"
	OutcomeNavigate  Outcome = "navigate"
	OutcomeSelect    Outcome = "select_item"
	OutcomeContact   Outcome = "contact_manager"
	OutcomeStale     Outcome = "stale_option"
	OutcomeMalformed Outcome = "malformed_option"
	OutcomeFallback  Outcome = "fallback"
	OutcomeUnhandled Outcome = "unhandled"
)

// Engine is safe for concurrent use; turns for the same user are serialized.
type Engine struct {
	catalog     *catalog.Catalog
	store       session.Store
	sink        orders.Sink
	locker      *session.Locker
	now         func() time.Time
	sinkTimeout time.Duration
	resetWords  map[string]struct{}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for order timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSinkTimeout sets the per-call order sink timeout. Zero disables it.
func WithSinkTimeout(d time.Duration) Option {
	return func(e *Engine) { e.sinkTimeout = d }
}

// WithResetKeywords replaces the reset keyword set. Matching is case-insensitive.
func WithResetKeywords(words ...string) Option {
	return func(e *Engine) {
		e.resetWords = make(map[string]struct{}, len(words))
		for _, w := range words {
			if w = normalize(w); w != "" {
				e.resetWords[w] = struct{}{}
			}
		}
	}
}

// WithLocker shares a per-user locker with other components.
func WithLocker(l *session.Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// New wires an engine. A nil sink records nothing.
func New(cat *catalog.Catalog, store session.Store, sink orders.Sink, opts ...Option) *Engine {
	if sink == nil {
		sink = orders.LogSink{}
	}
	e := &Engine{
		catalog:     cat,
		store:       store,
		sink:        sink,
		locker:      session.NewLocker(),
		now:         time.Now,
		sinkTimeout: DefaultSinkTimeout,
	}
	WithResetKeywords(DefaultResetKeywords...)(e)
	for _, opt := range opts {
		opt(e)
	}
	e.sink = orders.WithTimeout(e.sink, e.sinkTimeout)
	return e
}

// Handle processes one inbound message for userID and returns the replies in
// send order. Catalog misses and sink failures never surface as errors; only a
// session store failure does.
func (e *Engine) Handle(ctx context.Context, userID string, in message.Inbound) ([]message.Outbound, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("engine: empty user id")
	}
	start := time.Now()

	unlock := e.locker.Lock(userID)
	defer unlock()

	t := &turn{Engine: e, ctx: ctx, userID: userID}
	out, err := t.run(in)

	attrs := []slog.Attr{
		slog.String("action", message.Kind(in)),
		slog.String("outcome", string(t.outcome)),
		slog.Int("messages", len(out)),
		slog.Duration("duration_ms", logger.Took(start)),
	}
	if t.sess != nil {
		attrs = append(attrs,
			slog.String("menu_id", t.sess.CurrentMenuID),
			slog.Int("cart_size", len(t.sess.Cart)),
		)
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		logger.Error(ctx, component, "turn.fail", attrs...)
		return out, err
	}
	logger.Debug(ctx, component, "turn.done", attrs...)
	return out, nil
}

type turn struct {
	*Engine
	ctx     context.Context
	userID  string
	sess    *session.Session
	outcome Outcome
}

func (t *turn) run(in message.Inbound) ([]message.Outbound, error) {
	switch m := in.(type) {
	case message.Unhandled:
		t.outcome = OutcomeUnhandled
		logger.Info(t.ctx, component, "message.unhandled", slog.String("payload", m.RawType))
		return t.fallback(), nil
	case message.Text, message.InteractiveReply:
	default:
		t.outcome = OutcomeUnhandled
		return t.fallback(), nil
	}

	sess, found, err := t.store.Get(t.ctx, t.userID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !found {
		sess = session.New(t.userID, catalog.RootMenuID)
	}
	if _, ok := t.catalog.Menu(sess.CurrentMenuID); !ok {
		logger.Warn(t.ctx, component, "session.repair",
			slog.String("menu_id", sess.CurrentMenuID),
		)
		sess.CurrentMenuID = catalog.RootMenuID
	}
	t.sess = sess

	var out []message.Outbound
	switch m := in.(type) {
	case message.Text:
		switch {
		case t.isReset(m.Body):
			t.outcome = OutcomeReset
			sess.CurrentMenuID = catalog.RootMenuID
			out = t.menu(catalog.RootMenuID)
		case !found:
			t.outcome = OutcomeGreeting
			out = t.menu(catalog.RootMenuID)
		default:
			t.outcome = OutcomeFallback
			out = t.fallback()
		}
	case message.InteractiveReply:
		if !found {
			t.outcome = OutcomeGreeting
			out = t.menu(catalog.RootMenuID)
		} else {
			out = t.reply(m.OptionID)
		}
	}

	if err := t.store.Upsert(t.ctx, sess); err != nil {
		return out, fmt.Errorf("save session: %w", err)
	}
	return out, nil
}

func (t *turn) reply(optionID string) []message.Outbound {
	current := t.sess.CurrentMenuID
	opt, ok := t.catalog.Option(current, optionID)
	if !ok {
		t.outcome = OutcomeStale
		logger.Warn(t.ctx, component, "option.unknown",
			slog.String("menu_id", current),
			slog.String("option_id", optionID),
		)
		return t.menu(current)
	}

	switch {
	case opt.NextMenuID != "":
		if _, ok := t.catalog.Menu(opt.NextMenuID); !ok {
			t.outcome = OutcomeMalformed
			logger.Warn(t.ctx, component, "menu.unknown",
				slog.String("menu_id", opt.NextMenuID),
				slog.String("option_id", opt.ID),
			)
			return t.menu(current)
		}
		t.outcome = OutcomeNavigate
		t.sess.CurrentMenuID = opt.NextMenuID
		return t.menu(opt.NextMenuID)

	case opt.Action == catalog.ActionSelectItem:
		t.outcome = OutcomeSelect
		return t.selectItem(opt)

	case opt.Action == catalog.ActionContactManager:
		t.outcome = OutcomeContact
		return t.template(catalog.TemplateContactManager)

	default:
		t.outcome = OutcomeMalformed
		logger.Warn(t.ctx, component, "option.malformed",
			slog.String("menu_id", current),
			slog.String("option_id", opt.ID),
			slog.String("action", string(opt.Action)),
		)
		return t.menu(current)
	}
}

func (t *turn) selectItem(opt catalog.Option) []message.Outbound {
	line := session.CartLine{
		ItemID:      opt.ID,
		Name:        opt.Title,
		Price:       opt.Price,
		Description: opt.Description,
	}
	t.sess.Cart = append(t.sess.Cart, line)

	rec := orders.NewRecord(t.userID, line, t.now())
	if err := t.sink.Record(t.ctx, rec); err != nil {
		logger.Error(t.ctx, component, "order.record",
			slog.String("item_id", line.ItemID),
			slog.Int("price", line.Price),
			slog.String("err", err.Error()),
		)
	} else {
		logger.Info(t.ctx, component, "order.record",
			slog.String("item_id", line.ItemID),
			slog.Int("price", line.Price),
			slog.Int("cart_size", len(t.sess.Cart)),
		)
	}

	out := []message.Outbound{message.PlainText{Body: t.catalog.Confirmation(line.Name, line.Price)}}
	return append(out, t.menu(t.sess.CurrentMenuID)...)
}

func (t *turn) menu(id string) []message.Outbound {
	m, ok := t.catalog.Menu(id)
	if !ok {
		logger.Warn(t.ctx, component, "menu.unknown", slog.String("menu_id", id))
		return nil
	}
	return []message.Outbound{message.MenuFrom(m)}
}

func (t *turn) template(id string) []message.Outbound {
	text, ok := t.catalog.Template(id)
	if !ok {
		logger.Warn(t.ctx, component, "template.unknown", slog.String("item_id", id))
		return nil
	}
	return []message.Outbound{message.PlainText{Body: text}}
}

func (t *turn) fallback() []message.Outbound {
	return t.template(catalog.TemplateFallback)
}

func (e *Engine) isReset(body string) bool {
	_, ok := e.resetWords[normalize(body)]
	return ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
