package notify

import (
	"context"
	"log/slog"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/report"
)

// Router fans a report out to all configured sinks. One sink failing
// does not block the others; errors are logged and the first
// encountered is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

func (r *Router) Notify(ctx context.Context, rep *report.RunReport) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Notify(ctx, rep); err != nil {
			r.logger.Warn("notify: sink failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
