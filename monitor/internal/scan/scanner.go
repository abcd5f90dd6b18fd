// Package scan reads the knowledge-base monitoring table and classifies
// each entry's processing status against configured markers.
package scan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/report"
)

// RowSource supplies the raw rows of the monitoring table.
type RowSource interface {
	TableRows(ctx context.Context) ([]Row, error)
}

// Scanner enumerates table rows and parses each into an Item.
type Scanner struct {
	src     RowSource
	markers Markers
	logger  *slog.Logger
}

// New creates a Scanner over a row source.
func New(src RowSource, markers Markers, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{src: src, markers: markers, logger: logger}
}

// Scan reads every row and parses each independently. An empty table is
// a valid empty result, not an error; failing to locate the table at
// all is an error and propagates.
func (s *Scanner) Scan(ctx context.Context) ([]report.Item, error) {
	rows, err := s.src.TableRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: table rows: %w", err)
	}

	items := make([]report.Item, 0, len(rows))
	for _, row := range rows {
		item := ParseRow(row, s.markers)
		if item.Status == report.StatusFailed {
			s.logger.Warn("scan: failed item", "name", item.Name, "row", row.Index)
		}
		items = append(items, item)
	}

	s.logger.Info("scan: table scanned", "rows", len(rows), "failed", len(Failed(items)))
	return items, nil
}

// Failed filters scanned items down to those needing a retry.
func Failed(items []report.Item) []report.Item {
	var out []report.Item
	for _, it := range items {
		if it.Status == report.StatusFailed {
			out = append(out, it)
		}
	}
	return out
}
