package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/message"
	"github.com/m3rciful/menubot/core/sender"
)

// Dispatcher delivers the replies of one turn in order. Delivery is fire and forget:
// failures are retried by the queue and logged, never reported to the engine.
type Dispatcher struct {
	client *Client
	queue  *sender.Dispatcher
}

// NewDispatcher binds a client to a send queue. A nil queue sends synchronously.
func NewDispatcher(client *Client, queue *sender.Dispatcher) *Dispatcher {
	return &Dispatcher{client: client, queue: queue}
}

// Deliver schedules msgs for recipient to. All messages share one job so order is
// kept, and a retry resumes at the first message that was not yet sent.
func (d *Dispatcher) Deliver(ctx context.Context, to string, msgs []message.Outbound) error {
	if len(msgs) == 0 {
		return nil
	}
	var (
		mu   sync.Mutex
		next int
	)
	run := func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		for next < len(msgs) {
			if err := d.client.Send(ctx, to, msgs[next]); err != nil {
				return fmt.Errorf("message %d/%d: %w", next+1, len(msgs), err)
			}
			next++
		}
		return nil
	}

	if d.queue == nil {
		err := run(ctx)
		if err != nil {
			logger.Error(ctx, component, "send.fail",
				slog.String("err", sender.SanitizeError(err)),
				slog.Int("messages", len(msgs)),
			)
		}
		return err
	}
	return d.queue.Enqueue(ctx, "send_messages", "messages", run)
}
