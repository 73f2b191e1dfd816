package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/menubot/core/catalog"
	coreconfig "github.com/m3rciful/menubot/core/config"
	coredatabase "github.com/m3rciful/menubot/core/database"
	"github.com/m3rciful/menubot/core/orders"
	"github.com/m3rciful/menubot/core/session"
)

// LoadCatalog returns the built-in catalog or the YAML file named by cfg.Path.
func LoadCatalog(cfg coreconfig.CatalogConfig) (*catalog.Catalog, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(cfg.Path)
}

// OpenStore builds the configured session store. The redis client is returned
// so the caller can close it.
func OpenStore(ctx context.Context, cfg coreconfig.SessionConfig) (session.Store, *redis.Client, error) {
	switch cfg.Backend {
	case "", coreconfig.SessionMemory:
		return session.NewMemoryStore(cfg.TTL), nil, nil
	case coreconfig.SessionRedis:
		rdb, err := session.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return session.NewRedisStore(rdb, cfg.Redis.Prefix, cfg.TTL), rdb, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// SinkDeps overrides how OpenSink reaches its backends.
type SinkDeps struct {
	Connect func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate func(context.Context, *sqlx.DB) error
}

// OpenSink builds the configured order sink. SQL backends are migrated before
// use and their handle is returned for shutdown. The sheets backend resolves
// credentials on first use, so missing credentials surface as Record errors.
func OpenSink(ctx context.Context, cfg *coreconfig.Config, deps SinkDeps) (orders.Sink, *sqlx.DB, error) {
	migrate := deps.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}

	switch cfg.Orders.Backend {
	case "", coreconfig.OrdersLog:
		return orders.LogSink{}, nil, nil
	case coreconfig.OrdersSheets:
		return orders.NewSheetsSink(orders.SheetsOptions{
			SpreadsheetID:   cfg.Orders.Sheets.SpreadsheetID,
			SpreadsheetName: cfg.Orders.Sheets.SpreadsheetName,
			CredentialsFile: cfg.Orders.Sheets.CredentialsFile,
		}), nil, nil
	case coreconfig.OrdersPostgres:
		connect := deps.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrations failed: %w", err)
		}
		return orders.NewSQLSink(db), db, nil
	case coreconfig.OrdersSQLite:
		db, err := coredatabase.OpenSQLite(ctx, cfg.Orders.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrations failed: %w", err)
		}
		return orders.NewSQLSink(db), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown orders backend %q", cfg.Orders.Backend)
	}
}
