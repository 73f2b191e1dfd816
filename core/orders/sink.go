package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/menubot/core/logger"
)

const component = "orders"

// Sink appends order records. A returned error means the record was not stored.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record) error

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, rec Record) error { return f(ctx, rec) }

// LogSink only writes a structured log line per record.
type LogSink struct{}

// Record logs rec at info level.
func (LogSink) Record(ctx context.Context, rec Record) error {
	logger.Info(ctx, component, "order.recorded",
		slog.String("backend", "log"),
		slog.String("client_id", rec.ClientID),
		slog.String("item_id", rec.ItemID),
		slog.String("item_name", rec.ItemName),
		slog.Int("price", rec.Price),
		slog.String("status", rec.Status),
		slog.String("ordered_at", rec.FormattedTimestamp()),
	)
	return nil
}

type timeoutSink struct {
	next    Sink
	timeout time.Duration
}

// WithTimeout bounds every Record call on next. A non-positive timeout returns next unchanged.
func WithTimeout(next Sink, timeout time.Duration) Sink {
	if timeout <= 0 {
		return next
	}
	return &timeoutSink{next: next, timeout: timeout}
}

func (s *timeoutSink) Record(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.next.Record(ctx, rec) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("order sink: %w", ctx.Err())
	}
}
