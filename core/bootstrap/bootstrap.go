// Package bootstrap wires configuration into a runnable bot: catalog, session
// store, order sink, engine and the WhatsApp webhook handler.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/menubot/core/catalog"
	coreconfig "github.com/m3rciful/menubot/core/config"
	"github.com/m3rciful/menubot/core/engine"
	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/orders"
	"github.com/m3rciful/menubot/core/sender"
	"github.com/m3rciful/menubot/core/session"
	"github.com/m3rciful/menubot/core/whatsapp"
)

const component = "app"

// Options control the bootstrap pipeline. Nil hooks use the production defaults.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(context.Context, *sqlx.DB) error

	// HTTPClient is used for WhatsApp calls. Nil builds a retrying client.
	HTTPClient *http.Client
	Dispatcher sender.Options
}

// Result exposes the infrastructure initialized by Run.
type Result struct {
	Catalog  *catalog.Catalog
	Store    session.Store
	Sink     orders.Sink
	Engine   *engine.Engine
	Queue    *sender.Dispatcher
	WhatsApp *whatsapp.Client
	Handler  http.Handler

	DB    *sqlx.DB
	Redis *redis.Client
}

// Run initializes the logger and builds every component named by the config.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = sender.BuildHTTPClient()
	}

	res := &Result{}
	fail := func(err error) (*Result, error) {
		_ = res.Close()
		return nil, err
	}

	cat, err := LoadCatalog(cfg.Catalog)
	if err != nil {
		return fail(fmt.Errorf("bootstrap: catalog: %w", err))
	}
	res.Catalog = cat

	store, rdb, err := OpenStore(ctx, cfg.Session)
	if err != nil {
		return fail(fmt.Errorf("bootstrap: session store: %w", err))
	}
	res.Store, res.Redis = store, rdb

	sink, db, err := OpenSink(ctx, cfg, SinkDeps{
		Connect: opts.Connect,
		Migrate: opts.Migrate,
	})
	if err != nil {
		return fail(fmt.Errorf("bootstrap: order sink: %w", err))
	}
	res.Sink, res.DB = sink, db

	res.Engine = engine.New(cat, store, sink, engine.WithSinkTimeout(cfg.Orders.Timeout))
	res.Queue = sender.NewDispatcher(opts.Dispatcher)
	res.WhatsApp = whatsapp.NewClient(whatsapp.ClientOptions{
		BaseURL:       cfg.WhatsApp.BaseURL,
		APIVersion:    cfg.WhatsApp.APIVersion,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		AccessToken:   cfg.WhatsApp.AccessToken,
		DryRun:        cfg.WhatsApp.DryRun,
		HTTPClient:    httpClient,
	})
	res.Handler = whatsapp.NewHandler(
		whatsapp.HandlerConfig{Path: cfg.HTTP.WebhookPath, VerifyToken: cfg.WhatsApp.VerifyToken},
		res.Engine,
		whatsapp.NewDispatcher(res.WhatsApp, res.Queue),
	)

	logger.Info(ctx, component, "bootstrap.done",
		slog.String("session_backend", cfg.Session.Backend),
		slog.String("orders_backend", cfg.Orders.Backend),
		slog.Bool("telegram", cfg.Telegram.Enabled()),
	)
	return res, nil
}

// Close drains the send queue and releases database and redis connections.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Queue != nil {
		r.Queue.Close()
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
