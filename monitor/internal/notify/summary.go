package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/report"
)

// statusLine returns the headline emoji and text for a run.
func statusLine(rep *report.RunReport) (emoji, text string) {
	switch rep.Overall {
	case report.Clean:
		return "✅", "No Failures"
	case report.FailuresRetried:
		return "🔄", "Failures Retried"
	case report.FailuresUnretried:
		return "🔴", "Failures Detected"
	default:
		return "🚨", "Run Error"
	}
}

func acceptedRetries(rep *report.RunReport) int {
	n := 0
	for _, o := range rep.RetryOutcomes {
		if o.Accepted {
			n++
		}
	}
	return n
}

// outcomeFor finds the retry outcome matching the i-th failed item.
// Outcomes are 1:1 with failed items in order, so the index is checked
// first; a full scan covers reports assembled differently.
func outcomeFor(rep *report.RunReport, i int, it report.Item) *report.RetryOutcome {
	if i < len(rep.RetryOutcomes) {
		if o := &rep.RetryOutcomes[i]; o.Item.ID == it.ID && o.Item.Name == it.Name {
			return o
		}
	}
	for j := range rep.RetryOutcomes {
		if o := &rep.RetryOutcomes[j]; o.Item.ID == it.ID && o.Item.Name == it.Name {
			return o
		}
	}
	return nil
}

// retryResult renders one item's retry outcome for the notification.
// The operator reads this line to decide whether the item still needs
// manual intervention.
func retryResult(o *report.RetryOutcome) string {
	switch {
	case o == nil:
		return "not retried"
	case o.Accepted:
		return fmt.Sprintf("retry accepted after %d attempt(s)", o.Attempts)
	case o.Err != "":
		return fmt.Sprintf("retry failed after %d attempt(s): %s", o.Attempts, o.Err)
	default:
		return fmt.Sprintf("retry failed after %d attempt(s)", o.Attempts)
	}
}

// Summary renders a plain-text report for text-only channels and for
// the Lark card downgrade path. At most maxItems failed entries are
// listed.
func Summary(rep *report.RunReport, maxItems int, loc *time.Location) string {
	if maxItems <= 0 {
		maxItems = 10
	}
	if loc == nil {
		loc = time.Local
	}

	emoji, text := statusLine(rep)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s KB Monitor Report: %s\n", emoji, text)

	if rep.Err != "" {
		fmt.Fprintf(&sb, "Error: %s\n", rep.Err)
	}
	fmt.Fprintf(&sb, "Scanned: %d, Failed: %d", rep.ScannedCount, len(rep.FailedItems))
	if len(rep.RetryOutcomes) > 0 {
		fmt.Fprintf(&sb, ", Retries accepted: %d/%d", acceptedRetries(rep), len(rep.RetryOutcomes))
	}
	sb.WriteByte('\n')

	for i, it := range rep.FailedItems {
		if i == maxItems {
			fmt.Fprintf(&sb, "... and %d more\n", len(rep.FailedItems)-maxItems)
			break
		}
		fmt.Fprintf(&sb, "%d. %s (%s): %s\n", i+1, it.Label(), it.Status, retryResult(outcomeFor(rep, i, it)))
		if it.Message != "" {
			fmt.Fprintf(&sb, "   Error: %s\n", truncate(it.Message, 100))
		}
	}

	if len(rep.ScreenshotPaths) > 0 {
		fmt.Fprintf(&sb, "Screenshots: %d saved\n", len(rep.ScreenshotPaths))
	}

	took := rep.FinishedAt.Sub(rep.StartedAt).Round(100 * time.Millisecond)
	fmt.Fprintf(&sb, "Finished %s in %s",
		rep.FinishedAt.In(loc).Format("2006-01-02 15:04:05 (MST)"), took)
	return sb.String()
}

// truncate caps a message for the notification without splitting a
// multibyte rune.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
