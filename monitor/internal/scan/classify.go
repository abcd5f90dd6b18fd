package scan

import (
	"strings"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/report"
)

// Markers are the configured text patterns that classify an item's
// processing status. A row matching no marker at all classifies as
// StatusUnknown — success is never assumed by default.
type Markers struct {
	Failure    []string
	Processing []string
	Success    []string
}

// DefaultMarkers covers the admin console's Japanese and English status
// labels.
func DefaultMarkers() Markers {
	return Markers{
		Failure:    []string{"失敗", "エラー", "error", "failed"},
		Processing: []string{"処理中", "processing"},
		Success:    []string{"成功", "完了", "success", "completed"},
	}
}

// Empty reports whether no markers are configured at all.
func (m Markers) Empty() bool {
	return len(m.Failure) == 0 && len(m.Processing) == 0 && len(m.Success) == 0
}

// Classify pattern-matches row text against the markers and returns the
// status plus the marker that matched. Failure markers take precedence
// over processing, processing over success, so a row showing both an
// error badge and a stale success label still counts as failed.
func Classify(text string, m Markers) (report.Status, string) {
	if mk := matchAny(text, m.Failure); mk != "" {
		return report.StatusFailed, mk
	}
	if mk := matchAny(text, m.Processing); mk != "" {
		return report.StatusProcessing, mk
	}
	if mk := matchAny(text, m.Success); mk != "" {
		return report.StatusSucceeded, mk
	}
	return report.StatusUnknown, ""
}

func matchAny(text string, markers []string) string {
	for _, mk := range markers {
		if mk != "" && strings.Contains(text, mk) {
			return mk
		}
	}
	return ""
}
