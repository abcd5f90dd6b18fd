// Package notify delivers run reports to notification backends. Sinks
// are best effort by contract: the caller logs a delivery failure and
// moves on, it never aborts or retries the run because of one.
package notify

import (
	"context"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/report"
)

// Sink is a notification backend. Implementations deliver the report
// to stdout, a Lark webhook, or a Slack channel.
type Sink interface {
	Notify(ctx context.Context, rep *report.RunReport) error
	Close() error
}
