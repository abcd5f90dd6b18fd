// Package monitor runs one monitoring pass over the knowledge-base
// admin console: log in, scan the file table for failed entries,
// capture evidence screenshots, trigger per-row retries, and hand the
// aggregated report to the notification sinks.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/internal/browser"
	"github.com/Tina0529/chatbot-kb-monitor/monitor/internal/config"
	"github.com/Tina0529/chatbot-kb-monitor/monitor/internal/dispatch"
	"github.com/Tina0529/chatbot-kb-monitor/monitor/internal/notify"
	"github.com/Tina0529/chatbot-kb-monitor/monitor/internal/scan"
	"github.com/Tina0529/chatbot-kb-monitor/monitor/report"
)

// session is the browser surface the run drives. *browser.Session
// implements it; tests substitute a fake through the factory.
type session interface {
	Authenticate(ctx context.Context, username, password string) error
	NavigateToTarget(ctx context.Context) error
	TableRows(ctx context.Context) ([]scan.Row, error)
	ClickRetry(ctx context.Context, item report.Item, labels []string) error
	Acknowledged(ctx context.Context, item report.Item) bool
	FailureDetail(ctx context.Context, item report.Item) (string, error)
	CaptureScreenshot(ctx context.Context, label string) string
	Close() error
}

// Monitor coordinates a single run. One Monitor, one Run call, one
// report: nothing persists between invocations.
type Monitor struct {
	cfg        *config.Config
	secrets    config.Secrets
	sink       notify.Sink
	logger     *slog.Logger
	loc        *time.Location
	newSession func(ctx context.Context) (session, error)
}

// New builds a Monitor from configuration, secrets, and a notification
// sink.
func New(cfg *config.Config, secrets config.Secrets, sink notify.Sink, logger *slog.Logger) (*Monitor, error) {
	if err := secrets.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = notify.NewStdout(nil)
	}

	loc, err := time.LoadLocation(cfg.Monitoring.Timezone)
	if err != nil {
		return nil, fmt.Errorf("monitor: timezone %q: %w", cfg.Monitoring.Timezone, err)
	}

	m := &Monitor{
		cfg:     cfg,
		secrets: secrets,
		sink:    sink,
		logger:  logger,
		loc:     loc,
	}
	m.newSession = func(ctx context.Context) (session, error) {
		return browser.Open(ctx, browser.Config{
			Remote:           cfg.Browser.Remote,
			Headful:          cfg.Browser.Headful,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			BaseURL:          cfg.Monitoring.BaseURL,
			TargetURL:        cfg.Monitoring.TargetURL,
			NavigationPath:   cfg.Monitoring.NavigationPath,
			Registry:         cfg.Registry(),
			Markers:          m.markers(),
			AuthWait:         cfg.Monitoring.Timeouts.Auth(),
			NavWait:          cfg.Monitoring.Timeouts.Nav(),
			LocateWait:       cfg.Monitoring.Timeouts.Locate(),
			AckWait:          cfg.Monitoring.Timeouts.Ack(),
			ShotDir:          cfg.Screenshots.Directory,
			ShotPrefix:       cfg.Screenshots.Prefix,
			Logger:           logger,
		})
	}
	return m, nil
}

func (m *Monitor) markers() scan.Markers {
	return scan.Markers{
		Failure:    m.cfg.Monitoring.FailureMarkers,
		Processing: m.cfg.Monitoring.ProcessingMarkers,
		Success:    m.cfg.Monitoring.SuccessMarkers,
	}
}

// Run executes one monitoring pass and always returns a resolved
// report. The notification is sent exactly once per run; a delivery
// failure is logged and never changes the run's outcome.
func (m *Monitor) Run(ctx context.Context) *report.RunReport {
	rep := &report.RunReport{StartedAt: time.Now().In(m.loc)}

	m.runPhases(ctx, rep)

	rep.FinishedAt = time.Now().In(m.loc)
	rep.Resolve()

	m.logger.Info("monitor: run finished",
		"overall", rep.Overall.String(),
		"scanned", rep.ScannedCount,
		"failed", len(rep.FailedItems),
		"took", rep.FinishedAt.Sub(rep.StartedAt))

	if err := m.sink.Notify(ctx, rep); err != nil {
		m.logger.Warn("monitor: notification failed", "error", err)
	}
	return rep
}

// runPhases walks the pipeline, recording the first unrecoverable
// failure in rep.Err. A panic from the browser layer is contained the
// same way so the report and notification still happen.
func (m *Monitor) runPhases(ctx context.Context, rep *report.RunReport) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor: run panicked", "panic", r)
			rep.Err = fmt.Sprintf("panic: %v", r)
		}
	}()

	sess, err := m.newSession(ctx)
	if err != nil {
		rep.Err = err.Error()
		return
	}
	defer sess.Close()

	shot := func(label string) {
		if path := sess.CaptureScreenshot(ctx, label); path != "" {
			rep.ScreenshotPaths = append(rep.ScreenshotPaths, path)
		}
	}

	if err := sess.Authenticate(ctx, m.secrets.Login.Username, m.secrets.Login.Password); err != nil {
		rep.Err = err.Error()
		shot("login_failed")
		return
	}

	if err := sess.NavigateToTarget(ctx); err != nil {
		rep.Err = err.Error()
		shot("navigation_failed")
		return
	}

	scanner := scan.New(sess, m.markers(), m.logger)
	items, err := scanner.Scan(ctx)
	if err != nil {
		rep.Err = err.Error()
		shot("scan_failed")
		return
	}
	rep.ScannedCount = len(items)
	rep.FailedItems = scan.Failed(items)

	shot("status")

	// Hover each failure so its error tooltip renders, read the tooltip
	// into the item, then capture the shot with the tooltip visible.
	for i := range rep.FailedItems {
		it := &rep.FailedItems[i]
		msg, err := sess.FailureDetail(ctx, *it)
		if err != nil {
			m.logger.Debug("monitor: failure detail", "item", it.Label(), "error", err)
		}
		it.Message = msg
		shot("failure_" + it.Label())
	}

	if len(rep.FailedItems) == 0 {
		return
	}

	d := dispatch.New(sess, dispatch.Config{
		Labels:       m.cfg.Monitoring.RetryLabels,
		MaxAttempts:  m.cfg.Monitoring.Retry.MaxAttempts,
		InitialDelay: m.cfg.Monitoring.Retry.InitialDelay(),
		BackoffBase:  m.cfg.Monitoring.Retry.BackoffBase,
		Logger:       m.logger,
	})
	rep.RetryOutcomes = d.RetryAll(ctx, rep.FailedItems)
}
