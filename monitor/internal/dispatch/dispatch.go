// Package dispatch triggers the retry control for each failed item.
//
// The bounded retry implemented here covers the click action itself —
// a control can be momentarily obscured or animating — and is distinct
// from the knowledge-base item's own reprocessing, which the retry
// control kicks off server-side.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/report"
)

// maxBackoff caps the delay between click attempts.
const maxBackoff = 60 * time.Second

// Actions is the narrow browser surface the dispatcher drives.
type Actions interface {
	// ClickRetry locates the item's row and clicks a retry control
	// captioned with one of labels.
	ClickRetry(ctx context.Context, item report.Item, labels []string) error
	// Acknowledged reports whether the item's failure marker cleared
	// within the session's bounded acknowledgement wait.
	Acknowledged(ctx context.Context, item report.Item) bool
}

// Config tunes the dispatcher.
type Config struct {
	// Labels are retry control captions, tried in order per row.
	Labels []string
	// MaxAttempts bounds click attempts per item. Default: 3.
	MaxAttempts int
	// InitialDelay is the backoff before the second attempt. Default: 1s.
	InitialDelay time.Duration
	// BackoffBase is the exponential base. Default: 2.
	BackoffBase int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if len(c.Labels) == 0 {
		c.Labels = []string{"再試行", "リトライ", "Retry", "再実行"}
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.BackoffBase <= 1 {
		c.BackoffBase = 2
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Dispatcher retries failed items one at a time.
type Dispatcher struct {
	actions Actions
	cfg     Config
}

// New creates a Dispatcher over a browser action surface.
func New(actions Actions, cfg Config) *Dispatcher {
	cfg.defaults()
	return &Dispatcher{actions: actions, cfg: cfg}
}

// Retry drives one item's retry control. It never propagates an error:
// an exhausted bound produces an outcome with Accepted=false so the
// remaining items still get processed.
//
// A click that lands but is never acknowledged is not re-clicked — a
// second click could dispatch the item twice.
func (d *Dispatcher) Retry(ctx context.Context, item report.Item) report.RetryOutcome {
	out := report.RetryOutcome{Item: item}
	var lastErr error

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		out.Attempts = attempt

		if attempt > 1 {
			select {
			case <-time.After(d.backoff(attempt)):
			case <-ctx.Done():
				out.Err = ctx.Err().Error()
				return out
			}
		}

		if err := d.actions.ClickRetry(ctx, item, d.cfg.Labels); err != nil {
			lastErr = err
			d.cfg.Logger.Warn("dispatch: retry click failed",
				"item", item.Label(), "attempt", attempt, "error", err)
			continue
		}

		if d.actions.Acknowledged(ctx, item) {
			out.Accepted = true
			d.cfg.Logger.Info("dispatch: retry accepted",
				"item", item.Label(), "attempts", attempt)
			return out
		}

		out.Err = fmt.Sprintf("retry control clicked but no acknowledgement observed for %s", item.Label())
		d.cfg.Logger.Warn("dispatch: retry not acknowledged", "item", item.Label())
		return out
	}

	if lastErr != nil {
		out.Err = lastErr.Error()
	}
	d.cfg.Logger.Warn("dispatch: retry attempts exhausted",
		"item", item.Label(), "attempts", out.Attempts, "error", out.Err)
	return out
}

// RetryAll processes items in order, producing exactly one outcome per
// item in the same order. One item's failure never stops the rest.
func (d *Dispatcher) RetryAll(ctx context.Context, items []report.Item) []report.RetryOutcome {
	outcomes := make([]report.RetryOutcome, 0, len(items))
	for _, it := range items {
		outcomes = append(outcomes, d.Retry(ctx, it))
	}
	return outcomes
}

// backoff returns the delay before the given attempt:
// initial * base^(attempt-2), capped at maxBackoff.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.cfg.InitialDelay
	for i := 2; i < attempt; i++ {
		delay *= time.Duration(d.cfg.BackoffBase)
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}
