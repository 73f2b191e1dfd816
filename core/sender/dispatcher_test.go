package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond, MaxDuration: time.Second})
	var calls atomic.Int32
	done := make(chan struct{})
	err := d.Enqueue(context.Background(), "send", "", func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return statusErr(503)
		}
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not complete")
	}
	d.Close()
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	if d.ErrorCount() != 0 || d.SentCount() != 1 {
		t.Fatalf("errors = %d sent = %d", d.ErrorCount(), d.SentCount())
	}
}

func TestDispatcherDoesNotRetryClientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	_ = d.Enqueue(context.Background(), "send", "", func(ctx context.Context) error {
		calls.Add(1)
		return statusErr(400)
	})
	d.Close()
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if d.ErrorCount() != 1 {
		t.Fatalf("errors = %d, want 1", d.ErrorCount())
	}
}

func TestDispatcherJobOutlivesRequestContext(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	var runErr atomic.Value
	_ = d.Enqueue(context.Background(), "block", "", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	_ = d.Enqueue(ctx, "send", "", func(jobCtx context.Context) error {
		if err := jobCtx.Err(); err != nil {
			runErr.Store(err)
		}
		return nil
	})
	<-started
	cancel()
	close(release)
	d.Close()
	if v := runErr.Load(); v != nil {
		t.Fatalf("job saw cancelled context: %v", v)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	err := d.Enqueue(context.Background(), "send", "", func(context.Context) error { return nil })
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v", err)
	}
}

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", statusErr(429), true},
		{"500", statusErr(500), true},
		{"404", statusErr(404), false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"plain", errors.New("boom"), false},
		{"wrapped 502", fmt.Errorf("send: %w", statusErr(502)), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldRetry(tc.err); got != tc.want {
				t.Fatalf("ShouldRetry(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestSanitizeError(t *testing.T) {
	err := errors.New("post https://graph.facebook.com/v19.0/1/messages?access_token=EAABsecret123: bot123:ABC failed, token EAABCDEFGHIJKLMNOPQRSTUV")
	got := SanitizeError(err)
	for _, leak := range []string{"EAABsecret123", "bot123:ABC", "EAABCDEFGHIJKLMNOPQRSTUV"} {
		if strings.Contains(got, leak) {
			t.Fatalf("sanitized message still contains %q: %s", leak, got)
		}
	}
}
