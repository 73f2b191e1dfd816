package engine

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/menubot/core/catalog"
	"github.com/m3rciful/menubot/core/message"
	"github.com/m3rciful/menubot/core/orders"
	"github.com/m3rciful/menubot/core/session"
)

type recordingSink struct {
	mu   sync.Mutex
	recs []orders.Record
	err  error
}

func (s *recordingSink) Record(_ context.Context, rec orders.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) (*session.Session, bool, error) {
	return nil, false, f.err
}
func (f failingStore) Upsert(context.Context, *session.Session) error { return f.err }

func newTestEngine(t *testing.T, sink orders.Sink) (*Engine, session.Store) {
	t.Helper()
	store := session.NewMemoryStore(0)
	fixed := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)
	return New(catalog.Default(), store, sink, WithClock(func() time.Time { return fixed })), store
}

func mustHandle(t *testing.T, e *Engine, user string, in message.Inbound) []message.Outbound {
	t.Helper()
	out, err := e.Handle(context.Background(), user, in)
	if err != nil {
		t.Fatalf("handle %T: %v", in, err)
	}
	return out
}

func mustSession(t *testing.T, st session.Store, user string) *session.Session {
	t.Helper()
	s, ok, err := st.Get(context.Background(), user)
	if err != nil || !ok {
		t.Fatalf("session for %s: ok=%v err=%v", user, ok, err)
	}
	return s
}

func menuOf(t *testing.T, out message.Outbound) message.Menu {
	t.Helper()
	m, ok := out.(message.Menu)
	if !ok {
		t.Fatalf("expected menu, got %T", out)
	}
	return m
}

func TestEndToEndPurchase(t *testing.T) {
	sink := &recordingSink{}
	e, store := newTestEngine(t, sink)
	const user = "79990001122"

	out := mustHandle(t, e, user, message.Text{Body: "меню"})
	if len(out) != 1 {
		t.Fatalf("greeting produced %d messages", len(out))
	}
	root := menuOf(t, out[0])
	var ids []string
	for _, o := range root.Options {
		ids = append(ids, o.ID)
	}
	if !reflect.DeepEqual(ids, []string{"cat_kits", "cat_threads", "contact_manager"}) {
		t.Fatalf("root options = %v", ids)
	}

	out = mustHandle(t, e, user, message.InteractiveReply{OptionID: "cat_kits"})
	kits := menuOf(t, out[0])
	if kits.ID != "menu_kits" || len(kits.Options) != 4 {
		t.Fatalf("kits menu = %+v", kits)
	}

	out = mustHandle(t, e, user, message.InteractiveReply{OptionID: "kit_sf"})
	if len(out) != 2 {
		t.Fatalf("selection produced %d messages, want 2", len(out))
	}
	conf, ok := out[0].(message.PlainText)
	if !ok {
		t.Fatalf("first message = %T, want PlainText", out[0])
	}
	if !strings.Contains(conf.Body, "Весенние цветы") || !strings.Contains(conf.Body, "1500") {
		t.Fatalf("confirmation = %q", conf.Body)
	}
	if again := menuOf(t, out[1]); again.ID != "menu_kits" {
		t.Fatalf("second message menu = %s", again.ID)
	}

	s := mustSession(t, store, user)
	if len(s.Cart) != 1 || s.Cart[0].ItemID != "kit_sf" || s.Cart[0].Price != 1500 {
		t.Fatalf("cart = %+v", s.Cart)
	}
	if s.CurrentMenuID != "menu_kits" {
		t.Fatalf("current menu = %s", s.CurrentMenuID)
	}
	if sink.count() != 1 {
		t.Fatalf("sink records = %d", sink.count())
	}
	rec := sink.recs[0]
	if rec.ClientID != user || rec.Price != 1500 || rec.Status != orders.StatusNew || rec.Details != "Яркий и красивый набор." {
		t.Fatalf("record = %+v", rec)
	}
	if rec.FormattedTimestamp() != "2024-03-08 12:00:00" {
		t.Fatalf("timestamp = %s", rec.FormattedTimestamp())
	}
}

func TestNavigationTransitions(t *testing.T) {
	cat := catalog.Default()
	pairs := map[string][]string{
		catalog.RootMenuID: {"cat_kits", "cat_threads"},
		"menu_kits":        {"back_to_main_kits"},
		"menu_threads":     {"back_to_main_threads"},
	}
	for menuID, optionIDs := range pairs {
		for _, optionID := range optionIDs {
			opt, ok := cat.Option(menuID, optionID)
			if !ok || opt.NextMenuID == "" {
				t.Fatalf("%s/%s is not a navigation option", menuID, optionID)
			}
			t.Run(menuID+"/"+optionID, func(t *testing.T) {
				e, store := newTestEngine(t, &recordingSink{})
				ctx := context.Background()
				seed := session.New("u", menuID)
				seed.Cart = []session.CartLine{{ItemID: "x", Price: 1}}
				if err := store.Upsert(ctx, seed); err != nil {
					t.Fatalf("seed: %v", err)
				}
				out := mustHandle(t, e, "u", message.InteractiveReply{OptionID: optionID})
				if got := menuOf(t, out[0]).ID; got != opt.NextMenuID {
					t.Fatalf("emitted %s, want %s", got, opt.NextMenuID)
				}
				s := mustSession(t, store, "u")
				if s.CurrentMenuID != opt.NextMenuID {
					t.Fatalf("current = %s, want %s", s.CurrentMenuID, opt.NextMenuID)
				}
				if len(s.Cart) != 1 {
					t.Fatalf("cart changed: %+v", s.Cart)
				}
			})
		}
	}
}

func TestSelectItemAppendsRegardlessOfSink(t *testing.T) {
	items := []struct{ menu, option string }{
		{"menu_kits", "kit_sf"},
		{"menu_kits", "kit_wl"},
		{"menu_kits", "kit_mg"},
		{"menu_threads", "thread_dmc_24"},
		{"menu_threads", "thread_anchor_mix"},
	}
	cat := catalog.Default()
	for _, sinkErr := range []error{nil, errors.New("sheets down")} {
		for _, it := range items {
			opt, _ := cat.Option(it.menu, it.option)
			name := it.option
			if sinkErr != nil {
				name += "/sink_failure"
			}
			t.Run(name, func(t *testing.T) {
				sink := &recordingSink{err: sinkErr}
				e, store := newTestEngine(t, sink)
				if err := store.Upsert(context.Background(), session.New("u", it.menu)); err != nil {
					t.Fatalf("seed: %v", err)
				}
				out := mustHandle(t, e, "u", message.InteractiveReply{OptionID: it.option})
				if len(out) != 2 {
					t.Fatalf("messages = %d", len(out))
				}
				body := out[0].(message.PlainText).Body
				if !strings.Contains(body, opt.Title) {
					t.Fatalf("confirmation %q lacks title %q", body, opt.Title)
				}
				s := mustSession(t, store, "u")
				want := session.CartLine{ItemID: opt.ID, Name: opt.Title, Price: opt.Price, Description: opt.Description}
				if len(s.Cart) != 1 || s.Cart[0] != want {
					t.Fatalf("cart = %+v, want %+v", s.Cart, want)
				}
				if sink.count() != 1 {
					t.Fatalf("sink calls = %d", sink.count())
				}
			})
		}
	}
}

func TestSlowSinkTimesOut(t *testing.T) {
	slow := orders.SinkFunc(func(ctx context.Context, _ orders.Record) error {
		<-ctx.Done()
		return ctx.Err()
	})
	store := session.NewMemoryStore(0)
	e := New(catalog.Default(), store, slow, WithSinkTimeout(20*time.Millisecond))
	if err := store.Upsert(context.Background(), session.New("u", "menu_kits")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	out := mustHandle(t, e, "u", message.InteractiveReply{OptionID: "kit_sf"})
	if len(out) != 2 {
		t.Fatalf("messages = %d", len(out))
	}
	if s := mustSession(t, store, "u"); len(s.Cart) != 1 {
		t.Fatalf("cart = %+v", s.Cart)
	}
}

func TestResetIsIdempotentAndKeepsCart(t *testing.T) {
	e, store := newTestEngine(t, &recordingSink{})
	ctx := context.Background()
	seed := session.New("u", "menu_threads")
	seed.Cart = []session.CartLine{{ItemID: "thread_dmc_24", Price: 900}}
	if err := store.Upsert(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	first := mustHandle(t, e, "u", message.Text{Body: "  MENU "})
	second := mustHandle(t, e, "u", message.Text{Body: "menu"})
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("reset payloads differ:\n%#v\n%#v", first, second)
	}
	if menuOf(t, first[0]).ID != catalog.RootMenuID {
		t.Fatalf("reset emitted %s", menuOf(t, first[0]).ID)
	}
	s := mustSession(t, store, "u")
	if s.CurrentMenuID != catalog.RootMenuID || len(s.Cart) != 1 {
		t.Fatalf("session after reset = %+v", s)
	}
}

func TestResetKeywords(t *testing.T) {
	for _, kw := range []string{"меню", "Меню", "menu", "start", "/start", "привет", "Здравствуйте", "hi", "HELLO"} {
		t.Run(kw, func(t *testing.T) {
			e, store := newTestEngine(t, &recordingSink{})
			if err := store.Upsert(context.Background(), session.New("u", "menu_kits")); err != nil {
				t.Fatalf("seed: %v", err)
			}
			out := mustHandle(t, e, "u", message.Text{Body: kw})
			if menuOf(t, out[0]).ID != catalog.RootMenuID {
				t.Fatalf("%q did not reset", kw)
			}
		})
	}
}

func TestUnknownOptionReshowsCurrentMenu(t *testing.T) {
	e, store := newTestEngine(t, &recordingSink{})
	if err := store.Upsert(context.Background(), session.New("u", "menu_threads")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	for _, stale := range []string{"kit_sf", "cat_kits", "nope", ""} {
		out := mustHandle(t, e, "u", message.InteractiveReply{OptionID: stale})
		if len(out) != 1 || menuOf(t, out[0]).ID != "menu_threads" {
			t.Fatalf("stale %q: out = %#v", stale, out)
		}
		if s := mustSession(t, store, "u"); s.CurrentMenuID != "menu_threads" || len(s.Cart) != 0 {
			t.Fatalf("stale %q mutated session: %+v", stale, s)
		}
	}
}

func TestContactManager(t *testing.T) {
	e, store := newTestEngine(t, &recordingSink{})
	if err := store.Upsert(context.Background(), session.New("u", catalog.RootMenuID)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	out := mustHandle(t, e, "u", message.InteractiveReply{OptionID: "contact_manager"})
	text, ok := out[0].(message.PlainText)
	if len(out) != 1 || !ok || !strings.Contains(text.Body, "Менеджер") {
		t.Fatalf("out = %#v", out)
	}
	if s := mustSession(t, store, "u"); s.CurrentMenuID != catalog.RootMenuID {
		t.Fatalf("current = %s", s.CurrentMenuID)
	}
}

func TestMalformedOptionReshowsMenu(t *testing.T) {
	cat, err := catalog.New([]catalog.Menu{{
		ID: catalog.RootMenuID,
		Options: []catalog.Option{
			{ID: "broken", Title: "Broken"},
		},
	}}, map[string]string{
		catalog.TemplateContactManager: "c",
		catalog.TemplateItemSelected:   "{item_name}",
		catalog.TemplateFallback:       "f",
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store := session.NewMemoryStore(0)
	e := New(cat, store, nil)
	if err := store.Upsert(context.Background(), session.New("u", catalog.RootMenuID)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	out := mustHandle(t, e, "u", message.InteractiveReply{OptionID: "broken"})
	m := menuOf(t, out[0])
	if m.ID != catalog.RootMenuID || m.Kind != catalog.KindList {
		t.Fatalf("menu = %+v", m)
	}
}

func TestFreeTextFallback(t *testing.T) {
	e, store := newTestEngine(t, &recordingSink{})
	if err := store.Upsert(context.Background(), session.New("u", "menu_kits")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	out := mustHandle(t, e, "u", message.Text{Body: "сколько стоит доставка?"})
	fallback, _ := catalog.Default().Template(catalog.TemplateFallback)
	if len(out) != 1 || out[0] != (message.PlainText{Body: fallback}) {
		t.Fatalf("out = %#v", out)
	}
	if s := mustSession(t, store, "u"); s.CurrentMenuID != "menu_kits" {
		t.Fatalf("fallback moved user to %s", s.CurrentMenuID)
	}
}

func TestFirstContactShowsRoot(t *testing.T) {
	for _, in := range []message.Inbound{message.Text{Body: "добрый день"}, message.InteractiveReply{OptionID: "kit_sf"}} {
		e, store := newTestEngine(t, &recordingSink{})
		out := mustHandle(t, e, "new", in)
		if menuOf(t, out[0]).ID != catalog.RootMenuID {
			t.Fatalf("%T: first contact emitted %#v", in, out)
		}
		if s := mustSession(t, store, "new"); len(s.Cart) != 0 {
			t.Fatalf("cart = %+v", s.Cart)
		}
	}
}

func TestUnhandledDoesNotCreateSession(t *testing.T) {
	e, store := newTestEngine(t, &recordingSink{})
	out := mustHandle(t, e, "u", message.Unhandled{RawType: "image"})
	if len(out) != 1 {
		t.Fatalf("out = %#v", out)
	}
	if _, ok := out[0].(message.PlainText); !ok {
		t.Fatalf("out = %#v", out)
	}
	if _, ok, _ := store.Get(context.Background(), "u"); ok {
		t.Fatal("unhandled message created a session")
	}
}

func TestStoreErrorSurfaces(t *testing.T) {
	boom := errors.New("redis down")
	e := New(catalog.Default(), failingStore{err: boom}, nil)
	if _, err := e.Handle(context.Background(), "u", message.Text{Body: "menu"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, err := e.Handle(context.Background(), "", message.Text{Body: "menu"}); err == nil {
		t.Fatal("empty user id accepted")
	}
}

func TestConcurrentSelectionsForOneUser(t *testing.T) {
	sink := &recordingSink{}
	e, store := newTestEngine(t, sink)
	if err := store.Upsert(context.Background(), session.New("u", "menu_kits")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Handle(context.Background(), "u", message.InteractiveReply{OptionID: "kit_mg"}); err != nil {
				t.Errorf("handle: %v", err)
			}
		}()
	}
	wg.Wait()
	if s := mustSession(t, store, "u"); len(s.Cart) != 20 {
		t.Fatalf("cart lines = %d, want 20", len(s.Cart))
	}
	if sink.count() != 20 {
		t.Fatalf("sink records = %d", sink.count())
	}
}
