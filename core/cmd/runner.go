// Package cmd hosts the process runner shared by bot binaries.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/menubot/core/bootstrap"
	coreconfig "github.com/m3rciful/menubot/core/config"
	"github.com/m3rciful/menubot/core/logger"
	coretelegram "github.com/m3rciful/menubot/core/telegram"
)

const (
	component       = "app"
	shutdownTimeout = 10 * time.Second
)

// Options describe how to load configuration, bootstrap the app, and serve it.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(ctx context.Context, cfg *coreconfig.Config) (*bootstrap.Result, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
	// Listen serves the webhook handler until the server is shut down.
	Listen func(srv *http.Server) error
}

// Run loads configuration, bootstraps the app, and serves the webhook (plus the
// Telegram channel when configured) until SIGINT or SIGTERM.
func Run(opts Options) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return RunContext(ctx, opts)
}

// RunContext is Run bound to a caller-provided lifetime.
func RunContext(ctx context.Context, opts Options) error {
	loadConfig := opts.LoadConfig
	if loadConfig == nil {
		loadConfig = coreconfig.Load
	}
	boot := opts.Bootstrap
	if boot == nil {
		boot = func(ctx context.Context, cfg *coreconfig.Config) (*bootstrap.Result, error) {
			return bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
		}
	}

	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}

	if cfgPath != "" {
		log.Printf("loading config: %s", cfgPath)
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	startedAt := time.Now()
	app, err := boot(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn(ctx, component, "shutdown.close", slog.String("err", err.Error()))
		}
	}()

	reportConfig(ctx, cfg)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	listen := opts.Listen
	if listen == nil {
		listen = func(s *http.Server) error { return s.ListenAndServe() }
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	errs := make(chan error, 2)
	running := 1
	go func() {
		err := listen(srv)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errs <- err
	}()

	if cfg.Telegram.Enabled() {
		run := opts.RunTelegram
		if run == nil {
			run = coretelegram.RunTelegram
		}
		running++
		go func() {
			errs <- run(runCtx, coretelegram.RunOptions{
				Config:     cfg,
				Engine:     app.Engine,
				Dispatcher: app.Queue,
			})
		}()
	}

	logger.Info(ctx, component, "ready",
		slog.String("addr", srv.Addr),
		slog.String("webhook_path", cfg.HTTP.WebhookPath),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)

	var firstErr error
	select {
	case <-ctx.Done():
	case firstErr = <-errs:
		running--
	}
	logger.Info(ctx, component, "shutdown")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, component, "shutdown.http", slog.String("err", err.Error()))
	}
	for ; running > 0; running-- {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type configNotice struct {
	level slog.Level
	event string
	text  string
}

// configNotices lists startup findings: one ERROR when no WhatsApp credential is
// set at all, followed by every individual warning.
func configNotices(cfg *coreconfig.Config) []configNotice {
	var out []configNotice
	if cfg.MissingAllCredentials() {
		out = append(out, configNotice{
			level: slog.LevelError,
			event: "config.credentials",
			text:  "no WhatsApp credentials configured; the webhook cannot verify or reply",
		})
	}
	for _, w := range cfg.Warnings() {
		out = append(out, configNotice{level: slog.LevelWarn, event: "config.warning", text: w})
	}
	return out
}

func reportConfig(ctx context.Context, cfg *coreconfig.Config) {
	for _, n := range configNotices(cfg) {
		logger.Event(ctx, component, n.level, n.event, slog.String("warning", n.text))
	}
}
