package whatsapp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/message"
)

const maxBodyBytes = 1 << 20

// Response messages of the webhook endpoint.
const (
	msgProcessed        = "Webhook processed"
	msgTokenMismatch    = "Verification token mismatch"
	msgProcessingFailed = "Internal server error during processing"
	msgMethodNotAllowed = "Method Not Allowed"
)

// Engine runs one conversational turn.
type Engine interface {
	Handle(ctx context.Context, userID string, in message.Inbound) ([]message.Outbound, error)
}

// Deliverer sends the replies of one turn.
type Deliverer interface {
	Deliver(ctx context.Context, to string, msgs []message.Outbound) error
}

// HandlerConfig configures the webhook routes.
type HandlerConfig struct {
	Path        string
	VerifyToken string
}

// Handler serves the Cloud API webhook.
type Handler struct {
	cfg    HandlerConfig
	engine Engine
	out    Deliverer
}

// NewHandler returns a chi router exposing the webhook at cfg.Path and /healthz.
func NewHandler(cfg HandlerConfig, engine Engine, out Deliverer) http.Handler {
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	h := &Handler{cfg: cfg, engine: engine, out: out}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestContext)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		logger.Warn(r.Context(), component, "webhook.method",
			slog.String("action", r.Method),
			slog.Int("http_code", http.StatusMethodNotAllowed),
		)
		writeJSON(w, http.StatusMethodNotAllowed, statusBody("error", msgMethodNotAllowed))
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get(cfg.Path, h.verify)
	r.Post(cfg.Path, h.receive)
	return r
}

// requestContext tags each request with a rid and access log line.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithRID(r.Context(), uuid.NewString())
		ctx = logger.WithHandler(ctx, r.Method+" "+r.URL.Path)
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		logger.Debug(ctx, component, "http.request",
			slog.String("action", r.Method),
			slog.Int("http_code", ww.Status()),
			slog.Duration("duration_ms", logger.Took(start)),
		)
	})
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && tokenMatches(token, h.cfg.VerifyToken) {
		logger.Info(r.Context(), component, "webhook.verify", slog.String("status", "ok"))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, challenge)
		return
	}
	logger.Warn(r.Context(), component, "webhook.verify",
		slog.String("status", "error"),
		slog.String("mode", logger.SanitizeLimit(mode, 32)),
		slog.Int("http_code", http.StatusForbidden),
	)
	writeJSON(w, http.StatusForbidden, statusBody("error", msgTokenMismatch))
}

// tokenMatches compares in constant time. An empty configured secret never matches.
func tokenMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err == nil {
		err = h.process(ctx, body)
	}
	if err != nil {
		logger.Error(ctx, component, "webhook.process",
			slog.String("err", err.Error()),
			slog.String("payload", logger.SanitizeLimit(string(body), 1024)),
		)
		writeJSON(w, http.StatusOK, statusBody("error", msgProcessingFailed))
		return
	}
	writeJSON(w, http.StatusOK, statusBody("success", msgProcessed))
}

// process runs every event in the body. Panics are converted to errors so the
// provider always gets a 200.
func (h *Handler) process(ctx context.Context, body []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error(ctx, component, "webhook.panic",
				slog.String("cause", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	events, err := ParseWebhook(ctx, body)
	if err != nil {
		return err
	}
	var firstErr error
	for _, ev := range events {
		if err := h.handleEvent(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Handler) handleEvent(ctx context.Context, ev Event) error {
	ctx = logger.WithTurnMeta(ctx, "whatsapp", ev.SenderID, ev.MessageID)
	logger.Debug(ctx, component, "message.received", slog.String("action", message.Kind(ev.Message)))

	out, err := h.engine.Handle(ctx, ev.SenderID, ev.Message)
	if len(out) > 0 && h.out != nil {
		if derr := h.out.Deliver(ctx, ev.SenderID, out); derr != nil {
			logger.Error(ctx, component, "send.enqueue",
				slog.String("err", derr.Error()),
				slog.Int("messages", len(out)),
			)
		}
	}
	if err != nil {
		return fmt.Errorf("handle message from %s: %w", ev.SenderID, err)
	}
	return nil
}

func statusBody(status, msg string) map[string]string {
	return map[string]string{"status": status, "message": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
