package whatsapp

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/m3rciful/menubot/core/catalog"
	"github.com/m3rciful/menubot/core/message"
)

func TestRenderText(t *testing.T) {
	p, err := Render("123", message.PlainText{Body: "hello"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	data, _ := json.Marshal(p)
	want := `{"messaging_product":"whatsapp","recipient_type":"individual","to":"123","type":"text","text":{"body":"hello"}}`
	if string(data) != want {
		t.Fatalf("payload = %s", data)
	}
}

func TestRenderListMenu(t *testing.T) {
	m, _ := catalog.Default().Menu("menu_threads")
	p, err := Render("123", message.MenuFrom(m))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	ip := p.Interactive
	if p.Type != "interactive" || ip == nil || ip.Type != "list" {
		t.Fatalf("payload = %+v", p)
	}
	if ip.Action.Button != "Выбрать" || len(ip.Action.Sections) != 1 || ip.Action.Sections[0].Title != "Опции" {
		t.Fatalf("action = %+v", ip.Action)
	}
	rows := ip.Action.Sections[0].Rows
	if len(rows) != 3 || rows[0].ID != "thread_dmc_24" {
		t.Fatalf("rows = %+v", rows)
	}
	for _, r := range rows {
		if utf8.RuneCountInString(r.Title) > 24 || utf8.RuneCountInString(r.Description) > 72 {
			t.Fatalf("row exceeds limits: %+v", r)
		}
	}
	if rows[0].Title != "Набор мулине DMC (24 цве" {
		t.Fatalf("title cut = %q", rows[0].Title)
	}
	if strings.Contains(string(mustJSON(t, rows[2])), "description") {
		t.Fatalf("empty description serialized: %s", mustJSON(t, rows[2]))
	}
}

func TestRenderButtonMenuLimits(t *testing.T) {
	var opts []catalog.Option
	for _, id := range []string{"a", "b", "c", "d"} {
		opts = append(opts, catalog.Option{ID: id, Title: "Очень длинное название кнопки " + id})
	}
	p, err := Render("1", message.Menu{ID: "m", Title: "Pick", Kind: catalog.KindButton, Options: opts})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	btns := p.Interactive.Action.Buttons
	if p.Interactive.Type != "button" || len(btns) != 3 {
		t.Fatalf("buttons = %+v", btns)
	}
	for _, b := range btns {
		if b.Type != "reply" || utf8.RuneCountInString(b.Reply.Title) > 20 {
			t.Fatalf("button = %+v", b)
		}
	}
	if p.Interactive.Action.Sections != nil {
		t.Fatal("button menu has sections")
	}
}

func TestRenderListCapsRows(t *testing.T) {
	var opts []catalog.Option
	for i := 0; i < 12; i++ {
		opts = append(opts, catalog.Option{ID: string(rune('a' + i)), Title: "x"})
	}
	p, _ := Render("1", message.Menu{Kind: catalog.KindList, Options: opts})
	if n := len(p.Interactive.Action.Sections[0].Rows); n != 10 {
		t.Fatalf("rows = %d, want 10", n)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
