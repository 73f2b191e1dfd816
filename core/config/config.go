package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// WhatsAppConfig holds WhatsApp Cloud API credentials and webhook secret.
type WhatsAppConfig struct {
	VerifyToken   string `yaml:"verify_token" envconfig:"VERIFY_TOKEN"`
	PhoneNumberID string `yaml:"phone_number_id" envconfig:"WHATSAPP_PHONE_NUMBER_ID"`
	AccessToken   string `yaml:"access_token" envconfig:"WHATSAPP_ACCESS_TOKEN"`
	APIVersion    string `yaml:"api_version" envconfig:"WHATSAPP_API_VERSION"`
	BaseURL       string `yaml:"base_url" envconfig:"WHATSAPP_BASE_URL"`
	// DryRun logs rendered payloads instead of calling the Cloud API.
	DryRun bool `yaml:"dry_run" envconfig:"WHATSAPP_DRY_RUN"`
}

// HTTPConfig specifies the webhook listener.
type HTTPConfig struct {
	Listen      string `yaml:"listen" envconfig:"HTTP_LISTEN"`
	Port        int    `yaml:"port" envconfig:"PORT"`
	WebhookPath string `yaml:"webhook_path" envconfig:"WEBHOOK_PATH"`
}

// Addr returns the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Listen, h.Port)
}

// TelegramConfig enables the optional Telegram channel when Token is set.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int                   `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	Webhook                TelegramWebhookConfig `yaml:"webhook"`
}

// TelegramWebhookConfig specifies Telegram webhook settings.
type TelegramWebhookConfig struct {
	URL    string `yaml:"url" envconfig:"TELEGRAM_WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"TELEGRAM_WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"TELEGRAM_WEBHOOK_PORT"`
}

// Enabled reports whether the Telegram channel should be started.
func (t TelegramConfig) Enabled() bool {
	return strings.TrimSpace(t.Token) != ""
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RateLimitConfig holds settings for per-user rate limiting on the Telegram channel.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// SessionConfig selects the session store backend.
type SessionConfig struct {
	Backend string        `yaml:"backend" envconfig:"SESSION_BACKEND"`
	TTL     time.Duration `yaml:"ttl" envconfig:"SESSION_TTL"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig holds connection settings for the redis session store.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
}

// SheetsConfig points the order sink at a Google spreadsheet.
type SheetsConfig struct {
	SpreadsheetName string `yaml:"spreadsheet_name" envconfig:"GOOGLE_SHEET_NAME"`
	SpreadsheetID   string `yaml:"spreadsheet_id" envconfig:"GOOGLE_SHEET_ID"`
	CredentialsFile string `yaml:"credentials_file" envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

// OrdersConfig selects and configures the order sink.
type OrdersConfig struct {
	Backend string        `yaml:"backend" envconfig:"ORDERS_BACKEND"`
	Timeout time.Duration `yaml:"timeout" envconfig:"ORDERS_TIMEOUT"`
	Sheets  SheetsConfig  `yaml:"sheets"`
	// SQLitePath is used by the sqlite backend.
	SQLitePath string `yaml:"sqlite_path" envconfig:"ORDERS_SQLITE_PATH"`
}

// CatalogConfig optionally overrides the built-in menu catalog.
type CatalogConfig struct {
	Path string `yaml:"path" envconfig:"CATALOG_PATH"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// SessionMemory keeps sessions in process memory.
	SessionMemory = "memory"
	// SessionRedis keeps sessions in redis.
	SessionRedis = "redis"
)

const (
	// OrdersLog only logs order records.
	OrdersLog = "log"
	// OrdersSheets appends order rows to a Google spreadsheet.
	OrdersSheets = "sheets"
	// OrdersPostgres inserts order rows into PostgreSQL.
	OrdersPostgres = "postgres"
	// OrdersSQLite inserts order rows into a SQLite file.
	OrdersSQLite = "sqlite"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

const (
	defaultSheetName     = "Бот_Заказы_Вышивка"
	defaultAPIVersion    = "v19.0"
	defaultWhatsAppURL   = "https://graph.facebook.com"
	defaultWebhookPath   = "/webhook"
	defaultPort          = 8080
	defaultOrdersTimeout = 10 * time.Second
	defaultRedisPrefix   = "menubot:session:"
	defaultSQLitePath    = "./data/orders.db"
)

// Config aggregates the whole bot configuration.
type Config struct {
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	HTTP      HTTPConfig      `yaml:"http"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Session   SessionConfig   `yaml:"session"`
	Orders    OrdersConfig    `yaml:"orders"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Database  DatabaseConfig  `yaml:"database"`
}

// DatabaseConfig holds PostgreSQL connection settings for the postgres order sink.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// Load reads configuration from an optional YAML file and environment variables.
// An empty path or a missing file means environment-only configuration.
func Load(path string) (*Config, error) {
	var cfg Config

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates enumerations and fills defaults. Missing credentials are not
// errors here; see Warnings.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = defaultPort
	}
	if cfg.HTTP.Port < 0 {
		return fmt.Errorf("http.port must be > 0")
	}
	path := strings.TrimSpace(cfg.HTTP.WebhookPath)
	if path == "" {
		path = defaultWebhookPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	cfg.HTTP.WebhookPath = path

	if strings.TrimSpace(cfg.WhatsApp.APIVersion) == "" {
		cfg.WhatsApp.APIVersion = defaultAPIVersion
	}
	if strings.TrimSpace(cfg.WhatsApp.BaseURL) == "" {
		cfg.WhatsApp.BaseURL = defaultWhatsAppURL
	}
	cfg.WhatsApp.BaseURL = strings.TrimRight(cfg.WhatsApp.BaseURL, "/")

	if err := normalizeTelegram(&cfg.Telegram); err != nil {
		return err
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Session.Backend))
	switch backend {
	case "":
		backend = SessionMemory
	case SessionMemory:
	case SessionRedis:
		if strings.TrimSpace(cfg.Session.Redis.Addr) == "" {
			return fmt.Errorf("session.redis.addr is required when session.backend is 'redis'")
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, redis", cfg.Session.Backend)
	}
	cfg.Session.Backend = backend
	if cfg.Session.TTL < 0 {
		return fmt.Errorf("session.ttl must be >= 0")
	}
	if cfg.Session.Redis.Prefix == "" {
		cfg.Session.Redis.Prefix = defaultRedisPrefix
	}

	if err := normalizeOrders(cfg); err != nil {
		return err
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}

func normalizeTelegram(tg *TelegramConfig) error {
	if !tg.Enabled() {
		return nil
	}
	rm := strings.ToLower(strings.TrimSpace(tg.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(tg.Webhook.URL) == "" {
			return fmt.Errorf("telegram.webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if tg.Webhook.Port <= 0 {
			return fmt.Errorf("telegram.webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if tg.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", tg.RunMode)
	}
	tg.RunMode = rm
	return nil
}

func normalizeOrders(cfg *Config) error {
	o := &cfg.Orders
	backend := strings.ToLower(strings.TrimSpace(o.Backend))
	switch backend {
	case "":
		backend = OrdersLog
	case OrdersLog, OrdersSheets:
	case OrdersPostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required when orders.backend is 'postgres'")
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 5
		}
	case OrdersSQLite:
		if strings.TrimSpace(o.SQLitePath) == "" {
			o.SQLitePath = defaultSQLitePath
		}
	default:
		return fmt.Errorf("invalid orders.backend %q; allowed: log, sheets, postgres, sqlite", o.Backend)
	}
	o.Backend = backend
	if o.Timeout <= 0 {
		o.Timeout = defaultOrdersTimeout
	}
	if strings.TrimSpace(o.Sheets.SpreadsheetName) == "" {
		o.Sheets.SpreadsheetName = defaultSheetName
	}
	return nil
}

// Warnings lists configuration gaps that do not prevent startup but will surface
// later as verification or delivery failures.
func (c *Config) Warnings() []string {
	if c == nil {
		return nil
	}
	var out []string
	if c.WhatsApp.VerifyToken == "" {
		out = append(out, "VERIFY_TOKEN is not set; webhook verification will fail")
	}
	if c.WhatsApp.PhoneNumberID == "" {
		out = append(out, "WHATSAPP_PHONE_NUMBER_ID is not set; message sending is misconfigured")
	}
	if c.WhatsApp.AccessToken == "" {
		out = append(out, "WHATSAPP_ACCESS_TOKEN is not set; messages will only be logged")
	}
	if c.Orders.Backend == OrdersSheets && c.Orders.Sheets.CredentialsFile == "" {
		out = append(out, "GOOGLE_APPLICATION_CREDENTIALS is not set; sheets sink falls back to application default credentials")
	}
	return out
}

// MissingAllCredentials reports whether none of the WhatsApp secrets are configured.
func (c *Config) MissingAllCredentials() bool {
	return c.WhatsApp.VerifyToken == "" && c.WhatsApp.PhoneNumberID == "" && c.WhatsApp.AccessToken == ""
}
