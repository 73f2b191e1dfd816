package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	coreconfig "github.com/m3rciful/menubot/core/config"
	"github.com/m3rciful/menubot/core/message"
	"github.com/m3rciful/menubot/core/orders"
	"github.com/m3rciful/menubot/core/session"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunBuildsWebhookHandler(t *testing.T) {
	cfg := &coreconfig.Config{
		WhatsApp: coreconfig.WhatsAppConfig{VerifyToken: "secret"},
		HTTP:     coreconfig.HTTPConfig{WebhookPath: "/webhook"},
		Orders:   coreconfig.OrdersConfig{Backend: coreconfig.OrdersSQLite, SQLitePath: filepath.Join(t.TempDir(), "orders.db")},
	}
	res, err := Run(context.Background(), Options{Config: cfg, LoggerInit: noLogger})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	defer res.Close()

	if res.DB == nil {
		t.Fatal("sqlite backend did not open a database")
	}
	if _, ok := res.Sink.(*orders.SQLSink); !ok {
		t.Fatalf("sink = %T", res.Sink)
	}

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=42", nil)
	rec := httptest.NewRecorder()
	res.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "42" {
		t.Fatalf("verify = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRunNilConfig(t *testing.T) {
	if _, err := Run(context.Background(), Options{LoggerInit: noLogger}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestOpenStoreDefaultsToMemory(t *testing.T) {
	store, rdb, err := OpenStore(context.Background(), coreconfig.SessionConfig{})
	if err != nil || rdb != nil {
		t.Fatalf("store = %v, rdb = %v, err = %v", store, rdb, err)
	}
	if err := store.Upsert(context.Background(), session.New("u", "main_menu")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, _, err := OpenStore(context.Background(), coreconfig.SessionConfig{Backend: "etcd"}); err == nil {
		t.Fatal("unknown backend accepted")
	}
}

func TestOpenSinkLogAndUnknown(t *testing.T) {
	sink, db, err := OpenSink(context.Background(), &coreconfig.Config{}, SinkDeps{})
	if err != nil || db != nil {
		t.Fatalf("sink = %v, db = %v, err = %v", sink, db, err)
	}
	if _, ok := sink.(orders.LogSink); !ok {
		t.Fatalf("sink = %T", sink)
	}
	cfg := &coreconfig.Config{Orders: coreconfig.OrdersConfig{Backend: "excel"}}
	if _, _, err := OpenSink(context.Background(), cfg, SinkDeps{}); err == nil {
		t.Fatal("unknown backend accepted")
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	if _, err := LoadCatalog(coreconfig.CatalogConfig{Path: filepath.Join(t.TempDir(), "none.yaml")}); err == nil {
		t.Fatal("expected error for missing catalog file")
	}
	if c, err := LoadCatalog(coreconfig.CatalogConfig{}); err != nil || c == nil {
		t.Fatalf("default catalog: %v", err)
	}
}

func TestRunStartsWithoutSheetsCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	cfg := &coreconfig.Config{
		Orders: coreconfig.OrdersConfig{
			Backend: coreconfig.OrdersSheets,
			Sheets: coreconfig.SheetsConfig{
				SpreadsheetName: "Orders",
				CredentialsFile: filepath.Join(t.TempDir(), "missing-key.json"),
			},
		},
	}
	res, err := Run(context.Background(), Options{Config: cfg, LoggerInit: noLogger})
	if err != nil {
		t.Fatalf("run with missing sheets credentials: %v", err)
	}
	defer res.Close()

	err = res.Sink.Record(context.Background(), orders.Record{ClientID: "79990001122", ItemID: "kit_sf"})
	if !errors.Is(err, orders.ErrSheetsAuth) {
		t.Fatalf("record err = %v, want ErrSheetsAuth", err)
	}

	ctx := context.Background()
	for _, in := range []message.Inbound{
		message.Text{Body: "меню"},
		message.InteractiveReply{OptionID: "cat_kits"},
	} {
		if _, err := res.Engine.Handle(ctx, "79990001122", in); err != nil {
			t.Fatalf("handle %+v: %v", in, err)
		}
	}
	out, err := res.Engine.Handle(ctx, "79990001122", message.InteractiveReply{OptionID: "kit_sf"})
	if err != nil {
		t.Fatalf("select item: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("replies = %d, want confirmation and menu", len(out))
	}
	if txt, ok := out[0].(message.PlainText); !ok || !strings.Contains(txt.Body, "1500") {
		t.Fatalf("first reply = %+v", out[0])
	}
}
