// Package catalog holds the static menu graph and text templates shown by the bot.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// RootMenuID is the well-known entry point of the menu graph.
const RootMenuID = "main_menu"

// Template ids fetched explicitly by the engine.
const (
	TemplateContactManager = "contact_manager_message"
	TemplateItemSelected   = "item_selected_confirmation"
	TemplateFallback       = "default_fallback_message"
	TemplateCartView       = "cart_view_message"
)

// Kind selects how a menu is presented by the messaging provider.
type Kind string

const (
	KindList   Kind = "list"
	KindButton Kind = "button"
)

// Action is a terminal option behaviour.
type Action string

const (
	ActionSelectItem     Action = "select_item"
	ActionContactManager Action = "contact_manager"
)

// Option is one selectable entry of a menu.
type Option struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	NextMenuID  string `yaml:"next_menu_id,omitempty"`
	Action      Action `yaml:"action,omitempty"`
	Price       int    `yaml:"price,omitempty"`
}

// Menu is a named screen of the navigation graph.
type Menu struct {
	ID      string   `yaml:"-"`
	Title   string   `yaml:"title"`
	Kind    Kind     `yaml:"type"`
	Options []Option `yaml:"options"`
}

// Catalog is a read-only menu graph. The zero value is empty; use Default or Load.
type Catalog struct {
	menus     map[string]Menu
	templates map[string]string
}

type document struct {
	Menus     map[string]Menu   `yaml:"menus"`
	Templates map[string]string `yaml:"templates"`
}

// New builds a catalog from menus and templates and validates the graph.
func New(menus []Menu, templates map[string]string) (*Catalog, error) {
	c := &Catalog{
		menus:     make(map[string]Menu, len(menus)),
		templates: make(map[string]string, len(templates)),
	}
	for _, m := range menus {
		if m.ID == "" {
			return nil, errors.New("catalog: menu without id")
		}
		if _, dup := c.menus[m.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate menu %q", m.ID)
		}
		m.Options = append([]Option(nil), m.Options...)
		c.menus[m.ID] = m
	}
	for k, v := range templates {
		c.templates[k] = v
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads a catalog from a YAML file with top-level "menus" and "templates" maps.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	menus := make([]Menu, 0, len(doc.Menus))
	for id, m := range doc.Menus {
		m.ID = id
		menus = append(menus, m)
	}
	return New(menus, doc.Templates)
}

// Validate checks the graph invariants: the root exists, option ids are unique per
// menu, navigation targets resolve, select_item options carry a title and price, and
// the templates used by the engine are present.
func (c *Catalog) Validate() error {
	var errs []error
	if _, ok := c.menus[RootMenuID]; !ok {
		errs = append(errs, fmt.Errorf("root menu %q is missing", RootMenuID))
	}
	for id, m := range c.menus {
		switch m.Kind {
		case "", KindList, KindButton:
		default:
			errs = append(errs, fmt.Errorf("menu %q: unknown type %q", id, m.Kind))
		}
		seen := make(map[string]struct{}, len(m.Options))
		for _, opt := range m.Options {
			if opt.ID == "" {
				errs = append(errs, fmt.Errorf("menu %q: option without id", id))
				continue
			}
			if _, dup := seen[opt.ID]; dup {
				errs = append(errs, fmt.Errorf("menu %q: duplicate option %q", id, opt.ID))
			}
			seen[opt.ID] = struct{}{}
			if opt.NextMenuID != "" && opt.Action != "" {
				errs = append(errs, fmt.Errorf("menu %q option %q: both next_menu_id and action set", id, opt.ID))
			}
			if opt.NextMenuID != "" {
				if _, ok := c.menus[opt.NextMenuID]; !ok {
					errs = append(errs, fmt.Errorf("menu %q option %q: unknown next_menu_id %q", id, opt.ID, opt.NextMenuID))
				}
			}
			switch opt.Action {
			case "", ActionContactManager:
			case ActionSelectItem:
				if strings.TrimSpace(opt.Title) == "" || opt.Price <= 0 {
					errs = append(errs, fmt.Errorf("menu %q option %q: select_item needs title and price", id, opt.ID))
				}
			default:
				errs = append(errs, fmt.Errorf("menu %q option %q: unknown action %q", id, opt.ID, opt.Action))
			}
		}
	}
	for _, key := range []string{TemplateContactManager, TemplateItemSelected, TemplateFallback} {
		if _, ok := c.templates[key]; !ok {
			errs = append(errs, fmt.Errorf("template %q is missing", key))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("catalog: invalid: %w", errors.Join(errs...))
	}
	return nil
}

// Menu returns a copy of the menu with the given id. The option slice is never shared
// with the catalog.
func (c *Catalog) Menu(id string) (Menu, bool) {
	if c == nil {
		return Menu{}, false
	}
	m, ok := c.menus[id]
	if !ok {
		return Menu{}, false
	}
	m.Options = append([]Option(nil), m.Options...)
	return m, true
}

// Option resolves an option id within a menu.
func (c *Catalog) Option(menuID, optionID string) (Option, bool) {
	if c == nil {
		return Option{}, false
	}
	m, ok := c.menus[menuID]
	if !ok {
		return Option{}, false
	}
	for _, opt := range m.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return Option{}, false
}

// Template returns a plain-text template by id.
func (c *Catalog) Template(id string) (string, bool) {
	if c == nil {
		return "", false
	}
	t, ok := c.templates[id]
	return t, ok
}

// Confirmation renders the item-selected template for the given item.
func (c *Catalog) Confirmation(itemName string, price int) string {
	tpl, ok := c.Template(TemplateItemSelected)
	if !ok {
		return ""
	}
	r := strings.NewReplacer(
		"{item_name}", itemName,
		"{item_price}", strconv.Itoa(price),
	)
	return r.Replace(tpl)
}
