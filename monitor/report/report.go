// Package report holds the data model of one monitoring run: the items
// read from the knowledge-base table, the outcome of each retry, and the
// aggregate report handed to notification sinks. Everything here is
// built during a run and discarded when the run ends; nothing persists.
package report

import "time"

// Status classifies one knowledge-base entry's processing state.
//
// StatusUnknown is the zero value on purpose: a row that carries no
// recognized marker is ambiguous, never assumed successful.
type Status int

const (
	StatusUnknown Status = iota
	StatusSucceeded
	StatusFailed
	StatusProcessing
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the status as its string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Item is one knowledge-base entry as read from the monitoring table.
// The scan fills everything except Message, which the evidence phase
// sets from the row's error tooltip when one renders.
type Item struct {
	ID      string `json:"id,omitempty"` // stable row identifier, may be absent
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"` // error detail from the row tooltip
	RawRow  string `json:"raw_row,omitempty"` // full row text, for diagnostics
}

// Label returns the item's display identity for screenshots and messages.
func (it Item) Label() string {
	if it.Name != "" {
		return it.Name
	}
	if it.ID != "" {
		return it.ID
	}
	return "row"
}

// RetryOutcome is the result of attempting to retry one failed Item.
type RetryOutcome struct {
	Item     Item   `json:"item"`
	Accepted bool   `json:"accepted"`
	Attempts int    `json:"attempts"`
	Err      string `json:"error,omitempty"`
}

// OverallStatus is the aggregate verdict of a run.
type OverallStatus int

const (
	Clean OverallStatus = iota
	FailuresRetried
	FailuresUnretried
	RunError
)

func (o OverallStatus) String() string {
	switch o {
	case Clean:
		return "clean"
	case FailuresRetried:
		return "failures_retried"
	case FailuresUnretried:
		return "failures_unretried"
	default:
		return "run_error"
	}
}

// MarshalJSON renders the overall status as its string form.
func (o OverallStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + o.String() + `"`), nil
}

// ExitCode maps the run outcome to a process exit code so an external
// scheduler can alert on repeated non-zero exits.
func (o OverallStatus) ExitCode() int {
	switch o {
	case Clean, FailuresRetried:
		return 0
	case FailuresUnretried:
		return 1
	default:
		return 2
	}
}

// RunReport aggregates one invocation. Built incrementally by the
// coordinator, handed to the notification sinks, then discarded.
type RunReport struct {
	ScannedCount    int            `json:"scanned_count"`
	FailedItems     []Item         `json:"failed_items,omitempty"`
	RetryOutcomes   []RetryOutcome `json:"retry_outcomes,omitempty"`
	ScreenshotPaths []string       `json:"screenshot_paths,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	Overall         OverallStatus  `json:"overall_status"`
	Err             string         `json:"error,omitempty"` // unrecovered auth/nav/scan failure
}

// Resolve computes Overall from the scan and retry results.
//
// A failed item with no matching outcome counts as unretried: the run
// must never report a failure it did not attempt to retry, and must not
// silently drop one.
func (r *RunReport) Resolve() {
	if r.Err != "" {
		r.Overall = RunError
		return
	}
	if len(r.FailedItems) == 0 {
		r.Overall = Clean
		return
	}
	if len(r.RetryOutcomes) < len(r.FailedItems) {
		r.Overall = FailuresUnretried
		return
	}
	for _, o := range r.RetryOutcomes {
		if !o.Accepted {
			r.Overall = FailuresUnretried
			return
		}
	}
	r.Overall = FailuresRetried
}
