package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/report"
)

type fakeActions struct {
	clickErrs []error // consumed per click; nil entry = click lands
	clicks    int
	acked     bool
}

func (f *fakeActions) ClickRetry(_ context.Context, _ report.Item, _ []string) error {
	var err error
	if f.clicks < len(f.clickErrs) {
		err = f.clickErrs[f.clicks]
	}
	f.clicks++
	return err
}

func (f *fakeActions) Acknowledged(_ context.Context, _ report.Item) bool {
	return f.acked
}

func fastConfig() Config {
	return Config{InitialDelay: time.Millisecond}
}

func TestRetry_FirstAttemptAccepted(t *testing.T) {
	acts := &fakeActions{acked: true}
	d := New(acts, fastConfig())
	out := d.Retry(context.Background(), report.Item{Name: "a1", Status: report.StatusFailed})
	if !out.Accepted {
		t.Error("expected accepted")
	}
	if out.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", out.Attempts)
	}
	if out.Err != "" {
		t.Errorf("unexpected error: %q", out.Err)
	}
}

func TestRetry_ObscuredControlRetriedThenAccepted(t *testing.T) {
	acts := &fakeActions{
		clickErrs: []error{errors.New("element not interactable"), nil},
		acked:     true,
	}
	d := New(acts, fastConfig())
	out := d.Retry(context.Background(), report.Item{Name: "a1"})
	if !out.Accepted {
		t.Error("expected accepted after transient click failure")
	}
	if out.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", out.Attempts)
	}
}

func TestRetry_BoundExhausted(t *testing.T) {
	clickErr := errors.New("element not interactable")
	acts := &fakeActions{clickErrs: []error{clickErr, clickErr, clickErr}}
	d := New(acts, fastConfig())
	out := d.Retry(context.Background(), report.Item{Name: "a3"})
	if out.Accepted {
		t.Error("expected rejection after exhausted attempts")
	}
	if out.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", out.Attempts)
	}
	if out.Err == "" {
		t.Error("expected error populated")
	}
	if acts.clicks != 3 {
		t.Errorf("expected exactly 3 clicks, got %d", acts.clicks)
	}
}

func TestRetry_NoAcknowledgementIsNotReclicked(t *testing.T) {
	acts := &fakeActions{acked: false}
	d := New(acts, fastConfig())
	out := d.Retry(context.Background(), report.Item{Name: "a1"})
	if out.Accepted {
		t.Error("expected rejection without acknowledgement")
	}
	if acts.clicks != 1 {
		t.Errorf("a landed click must not be repeated, got %d clicks", acts.clicks)
	}
	if out.Err == "" {
		t.Error("expected error populated")
	}
}

func TestRetry_ContextCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	acts := &fakeActions{clickErrs: []error{errors.New("obscured")}}
	d := New(acts, Config{InitialDelay: time.Hour})
	out := d.Retry(ctx, report.Item{Name: "a1"})
	if out.Accepted {
		t.Error("expected rejection on cancelled context")
	}
	if acts.clicks != 1 {
		t.Errorf("expected no further attempts after cancel, got %d clicks", acts.clicks)
	}
}

func TestRetryAll_OrderedOneToOne(t *testing.T) {
	items := []report.Item{
		{Name: "a1", Status: report.StatusFailed},
		{Name: "a3", Status: report.StatusFailed},
		{Name: "a5", Status: report.StatusFailed},
	}
	acts := &fakeActions{acked: true}
	d := New(acts, fastConfig())
	outcomes := d.RetryAll(context.Background(), items)
	if len(outcomes) != len(items) {
		t.Fatalf("expected %d outcomes, got %d", len(items), len(outcomes))
	}
	for i := range items {
		if outcomes[i].Item.Name != items[i].Name {
			t.Errorf("outcome %d out of order: %q", i, outcomes[i].Item.Name)
		}
	}
}

func TestBackoff(t *testing.T) {
	d := New(&fakeActions{}, Config{InitialDelay: time.Second, BackoffBase: 2})
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{10, 60 * time.Second}, // capped
	}
	for _, c := range cases {
		if got := d.backoff(c.attempt); got != c.want {
			t.Errorf("attempt %d: expected %s, got %s", c.attempt, c.want, got)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.MaxAttempts != 3 {
		t.Errorf("expected 3 max attempts, got %d", c.MaxAttempts)
	}
	if len(c.Labels) == 0 {
		t.Error("expected default retry labels")
	}
}
