package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalogShape(t *testing.T) {
	c := Default()

	root, ok := c.Menu(RootMenuID)
	if !ok {
		t.Fatal("root menu missing")
	}
	if len(root.Options) != 3 {
		t.Fatalf("root options = %d, want 3", len(root.Options))
	}
	wantIDs := []string{"cat_kits", "cat_threads", "contact_manager"}
	for i, id := range wantIDs {
		if root.Options[i].ID != id {
			t.Fatalf("root option %d = %s, want %s", i, root.Options[i].ID, id)
		}
	}

	kits, ok := c.Menu("menu_kits")
	if !ok || len(kits.Options) != 4 {
		t.Fatalf("menu_kits = %+v", kits)
	}
}

func TestLookupsFailSoftly(t *testing.T) {
	c := Default()
	if _, ok := c.Menu("nope"); ok {
		t.Fatal("unknown menu resolved")
	}
	if _, ok := c.Option("menu_kits", "nope"); ok {
		t.Fatal("unknown option resolved")
	}
	if _, ok := c.Option("nope", "kit_sf"); ok {
		t.Fatal("option on unknown menu resolved")
	}
	var empty *Catalog
	if _, ok := empty.Menu(RootMenuID); ok {
		t.Fatal("nil catalog resolved a menu")
	}
}

func TestMenuReturnsCopy(t *testing.T) {
	c := Default()
	m, _ := c.Menu(RootMenuID)
	m.Options[0].Title = "mutated"
	m.Kind = KindButton

	again, _ := c.Menu(RootMenuID)
	if again.Options[0].Title == "mutated" || again.Kind == KindButton {
		t.Fatal("catalog data was mutated through a returned menu")
	}
}

func TestConfirmationSubstitutesNameAndPrice(t *testing.T) {
	c := Default()
	opt, ok := c.Option("menu_kits", "kit_sf")
	if !ok {
		t.Fatal("kit_sf missing")
	}
	text := c.Confirmation(opt.Title, opt.Price)
	if !strings.Contains(text, "Весенние цветы") || !strings.Contains(text, "1500") {
		t.Fatalf("confirmation = %q", text)
	}
	if strings.Contains(text, "{item_") {
		t.Fatalf("unfilled placeholder in %q", text)
	}
}

func TestValidateReportsBrokenGraph(t *testing.T) {
	menus := []Menu{
		{ID: RootMenuID, Options: []Option{
			{ID: "a", Title: "A", NextMenuID: "missing"},
			{ID: "b", Title: "", Action: ActionSelectItem},
			{ID: "a", Title: "dup", Action: ActionContactManager},
		}},
	}
	_, err := New(menus, defaultTemplates())
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown next_menu_id", "select_item needs title and price", "duplicate option"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	data := `
menus:
  main_menu:
    title: Root
    type: button
    options:
      - id: go
        title: Go
        next_menu_id: shop
  shop:
    title: Shop
    options:
      - id: item
        title: Item
        price: 10
        action: select_item
templates:
  contact_manager_message: call us
  item_selected_confirmation: "{item_name} for {item_price}"
  default_fallback_message: what?
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	root, _ := c.Menu(RootMenuID)
	if root.Kind != KindButton || root.ID != RootMenuID {
		t.Fatalf("root = %+v", root)
	}
	if got := c.Confirmation("Item", 10); got != "Item for 10" {
		t.Fatalf("confirmation = %q", got)
	}
}
