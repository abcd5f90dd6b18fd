package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/internal/scan"
	"github.com/Tina0529/chatbot-kb-monitor/monitor/report"
)

// fakeSession scripts the browser surface for coordinator tests.
type fakeSession struct {
	rows    []scan.Row
	authErr error
	navErr  error
	rowsErr error

	ackByID   map[string]bool
	clickErr  map[string]error
	clicks    map[string]int
	tooltips  map[string]string
	inspected []string
	shotFail  bool
	shotCount int
	closed    bool
}

func (f *fakeSession) Authenticate(context.Context, string, string) error { return f.authErr }
func (f *fakeSession) NavigateToTarget(context.Context) error             { return f.navErr }

func (f *fakeSession) TableRows(context.Context) ([]scan.Row, error) {
	if f.rowsErr != nil {
		return nil, f.rowsErr
	}
	return f.rows, nil
}

func (f *fakeSession) ClickRetry(_ context.Context, item report.Item, _ []string) error {
	if f.clicks == nil {
		f.clicks = make(map[string]int)
	}
	f.clicks[item.ID]++
	return f.clickErr[item.ID]
}

func (f *fakeSession) Acknowledged(_ context.Context, item report.Item) bool {
	return f.ackByID[item.ID]
}

func (f *fakeSession) FailureDetail(_ context.Context, item report.Item) (string, error) {
	f.inspected = append(f.inspected, item.ID)
	return f.tooltips[item.ID], nil
}

func (f *fakeSession) CaptureScreenshot(_ context.Context, label string) string {
	if f.shotFail {
		return ""
	}
	f.shotCount++
	return fmt.Sprintf("screenshots/kb_monitor_%s.png", label)
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

// captureSink records every report it is handed.
type captureSink struct {
	reports []*report.RunReport
	err     error
}

func (c *captureSink) Notify(_ context.Context, rep *report.RunReport) error {
	c.reports = append(c.reports, rep)
	return c.err
}

func (c *captureSink) Close() error { return nil }

func failedRow(id, name string) scan.Row {
	return scan.Row{
		HTML: fmt.Sprintf(`<tr data-id=%q><td>%s</td><td>失敗</td></tr>`, id, name),
		Text: name + "\t失敗",
	}
}

func okRow(id, name string) scan.Row {
	return scan.Row{
		HTML: fmt.Sprintf(`<tr data-id=%q><td>%s</td><td>成功</td></tr>`, id, name),
		Text: name + "\t成功",
	}
}

func newTestMonitor(t *testing.T, sess *fakeSession, sink Sink) *Monitor {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Monitoring.Timezone = "UTC"
	cfg.Monitoring.Retry.InitialDelayMs = 1

	secrets := Secrets{}
	secrets.Login.Username = "ops"
	secrets.Login.Password = "pw"

	m, err := New(cfg, secrets, sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.newSession = func(context.Context) (session, error) { return sess, nil }
	return m
}

func TestRunMixedRetryOutcomes(t *testing.T) {
	sess := &fakeSession{
		rows: []scan.Row{
			failedRow("a1", "manual.pdf"),
			failedRow("a2", "faq.docx"),
			okRow("a3", "guide.txt"),
		},
		ackByID:  map[string]bool{"a1": true},
		tooltips: map[string]string{"a2": "ファイルの解析に失敗しました"},
	}
	sink := &captureSink{}
	m := newTestMonitor(t, sess, sink)

	rep := m.Run(context.Background())

	if rep.Overall != report.FailuresUnretried {
		t.Errorf("overall = %s", rep.Overall)
	}
	if rep.Overall.ExitCode() != 1 {
		t.Errorf("exit code = %d", rep.Overall.ExitCode())
	}
	if rep.ScannedCount != 3 || len(rep.FailedItems) != 2 {
		t.Errorf("scanned = %d, failed = %d", rep.ScannedCount, len(rep.FailedItems))
	}

	if len(rep.RetryOutcomes) != 2 {
		t.Fatalf("outcomes = %d", len(rep.RetryOutcomes))
	}
	if rep.RetryOutcomes[0].Item.ID != "a1" || !rep.RetryOutcomes[0].Accepted {
		t.Errorf("outcome[0] = %+v", rep.RetryOutcomes[0])
	}
	if rep.RetryOutcomes[1].Item.ID != "a2" || rep.RetryOutcomes[1].Accepted {
		t.Errorf("outcome[1] = %+v", rep.RetryOutcomes[1])
	}

	// Clicks: a1 accepted on the first try; a2 clicked once and never
	// re-clicked after the unacknowledged click.
	if sess.clicks["a1"] != 1 || sess.clicks["a2"] != 1 {
		t.Errorf("clicks = %v", sess.clicks)
	}

	// Status shot plus one per failure.
	if len(rep.ScreenshotPaths) != 3 {
		t.Errorf("screenshots = %v", rep.ScreenshotPaths)
	}
	if len(sess.inspected) != 2 {
		t.Errorf("inspected = %v", sess.inspected)
	}

	// Tooltip detail read during evidence capture lands on the item.
	if got := rep.FailedItems[0].Message; got != "" {
		t.Errorf("a1 message = %q", got)
	}
	if got := rep.FailedItems[1].Message; got != "ファイルの解析に失敗しました" {
		t.Errorf("a2 message = %q", got)
	}

	if len(sink.reports) != 1 || sink.reports[0] != rep {
		t.Errorf("notifications = %d", len(sink.reports))
	}
	if !sess.closed {
		t.Error("session not closed")
	}
	if rep.FinishedAt.Before(rep.StartedAt) {
		t.Error("finished before started")
	}
}

func TestRunAllRetriesAccepted(t *testing.T) {
	sess := &fakeSession{
		rows:    []scan.Row{failedRow("a1", "manual.pdf")},
		ackByID: map[string]bool{"a1": true},
	}
	sink := &captureSink{}
	m := newTestMonitor(t, sess, sink)

	rep := m.Run(context.Background())
	if rep.Overall != report.FailuresRetried {
		t.Errorf("overall = %s", rep.Overall)
	}
	if rep.Overall.ExitCode() != 0 {
		t.Errorf("exit code = %d", rep.Overall.ExitCode())
	}
}

func TestRunEmptyTableIsClean(t *testing.T) {
	sess := &fakeSession{}
	sink := &captureSink{}
	m := newTestMonitor(t, sess, sink)

	rep := m.Run(context.Background())

	if rep.Overall != report.Clean {
		t.Errorf("overall = %s", rep.Overall)
	}
	if len(sess.clicks) != 0 {
		t.Errorf("unexpected clicks: %v", sess.clicks)
	}
	if len(sink.reports) != 1 {
		t.Errorf("notifications = %d", len(sink.reports))
	}
	if !sess.closed {
		t.Error("session not closed")
	}
}

func TestRunAuthFailure(t *testing.T) {
	sess := &fakeSession{authErr: errors.New("browser: authentication failed: still on login page")}
	sink := &captureSink{}
	m := newTestMonitor(t, sess, sink)

	rep := m.Run(context.Background())

	if rep.Overall != report.RunError {
		t.Errorf("overall = %s", rep.Overall)
	}
	if rep.Overall.ExitCode() != 2 {
		t.Errorf("exit code = %d", rep.Overall.ExitCode())
	}
	if rep.Err == "" {
		t.Error("error not recorded")
	}
	if len(sink.reports) != 1 {
		t.Errorf("run error must still notify, got %d", len(sink.reports))
	}
	if !sess.closed {
		t.Error("session not closed after auth failure")
	}
}

func TestRunScanFailure(t *testing.T) {
	sess := &fakeSession{rowsErr: errors.New("browser: table region: locate: no strategy matched")}
	sink := &captureSink{}
	m := newTestMonitor(t, sess, sink)

	rep := m.Run(context.Background())
	if rep.Overall != report.RunError {
		t.Errorf("overall = %s", rep.Overall)
	}
	if len(sess.clicks) != 0 {
		t.Errorf("clicks after scan failure: %v", sess.clicks)
	}
}

func TestRunScreenshotFailureDoesNotChangeOutcome(t *testing.T) {
	sess := &fakeSession{
		rows:     []scan.Row{failedRow("a1", "manual.pdf")},
		ackByID:  map[string]bool{"a1": true},
		shotFail: true,
	}
	sink := &captureSink{}
	m := newTestMonitor(t, sess, sink)

	rep := m.Run(context.Background())
	if rep.Overall != report.FailuresRetried {
		t.Errorf("overall = %s", rep.Overall)
	}
	if len(rep.ScreenshotPaths) != 0 {
		t.Errorf("screenshot paths = %v", rep.ScreenshotPaths)
	}
}

func TestRunNotifyFailureDoesNotChangeReport(t *testing.T) {
	sess := &fakeSession{}
	sink := &captureSink{err: errors.New("webhook down")}
	m := newTestMonitor(t, sess, sink)

	rep := m.Run(context.Background())
	if rep.Overall != report.Clean {
		t.Errorf("overall = %s", rep.Overall)
	}
}

func TestRunSessionOpenFailure(t *testing.T) {
	sink := &captureSink{}
	m := newTestMonitor(t, &fakeSession{}, sink)
	m.newSession = func(context.Context) (session, error) {
		return nil, errors.New("browser: launch: chrome not found")
	}

	rep := m.Run(context.Background())
	if rep.Overall != report.RunError {
		t.Errorf("overall = %s", rep.Overall)
	}
	if len(sink.reports) != 1 {
		t.Errorf("notifications = %d", len(sink.reports))
	}
}

func TestNewRejectsMissingCredentials(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := New(cfg, Secrets{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Error("expected error for missing credentials")
	}
}
