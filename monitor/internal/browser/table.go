package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/internal/locate"
	"github.com/Tina0529/chatbot-kb-monitor/monitor/internal/scan"
	"github.com/Tina0529/chatbot-kb-monitor/monitor/report"
)

// TableRows reads the monitoring table's current body rows. The table
// region itself must resolve; a table with zero rows is a valid clean
// result, a missing table is a locate failure.
func (s *Session) TableRows(ctx context.Context) ([]scan.Row, error) {
	if s.state != StateReady {
		return nil, fmt.Errorf("browser: table rows: session is %s", s.state)
	}

	if _, err := s.waitFind(ctx, locate.RegionTable); err != nil {
		return nil, fmt.Errorf("browser: table region: %w", err)
	}

	els, err := s.locateAll(ctx, locate.RegionTableRows)
	if err != nil {
		var noMatch *locate.NoMatchError
		if errors.As(err, &noMatch) {
			// Table present, no rows: nothing to monitor.
			return nil, nil
		}
		return nil, fmt.Errorf("browser: table rows: %w", err)
	}

	rows := make([]scan.Row, 0, len(els))
	for i, el := range els {
		outer, err := el.HTML()
		if err != nil {
			s.log.Warn("browser: row html", "index", i, "error", err)
		}
		text, err := el.Text()
		if err != nil {
			s.log.Warn("browser: row text", "index", i, "error", err)
		}
		rows = append(rows, scan.Row{Index: i, HTML: outer, Text: text})
	}
	return rows, nil
}

// findRow relocates the live row element for an item. Rows are matched
// by stable ID attribute when the item has one, otherwise by name
// substring. A nil element with nil error means the row is gone.
func (s *Session) findRow(ctx context.Context, item report.Item) (*rod.Element, error) {
	els, err := s.locateAll(ctx, locate.RegionTableRows)
	if err != nil {
		var noMatch *locate.NoMatchError
		if errors.As(err, &noMatch) {
			return nil, nil
		}
		return nil, err
	}

	for _, el := range els {
		if item.ID != "" {
			if rowAttrID(el) == item.ID {
				return el, nil
			}
			continue
		}
		text, err := el.Text()
		if err != nil {
			continue
		}
		if item.Name != "" && strings.Contains(text, item.Name) {
			return el, nil
		}
	}
	return nil, nil
}

func rowAttrID(el *rod.Element) string {
	for _, attr := range []string{"data-row-key", "data-id", "data-key", "id"} {
		v, err := el.Attribute(attr)
		if err == nil && v != nil && strings.TrimSpace(*v) != "" {
			return strings.TrimSpace(*v)
		}
	}
	return ""
}

// ClickRetry relocates the item's row and clicks its retry control,
// trying each configured label in order.
func (s *Session) ClickRetry(ctx context.Context, item report.Item, labels []string) error {
	row, err := s.findRow(ctx, item)
	if err != nil {
		return fmt.Errorf("browser: find row %s: %w", item.Label(), err)
	}
	if row == nil {
		return fmt.Errorf("browser: row %s no longer present", item.Label())
	}

	for _, label := range labels {
		q := xpathQuote(label)
		btns, err := row.ElementsX(fmt.Sprintf(
			`.//*[self::button or self::a or self::span][contains(normalize-space(.), %s)]`, q))
		if err != nil || len(btns) == 0 {
			continue
		}

		btn := btns[0]
		if err := btn.Hover(); err != nil {
			s.log.Debug("browser: hover retry control", "label", label, "error", err)
		}
		if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("browser: click retry %q on %s: %w", label, item.Label(), err)
		}
		s.log.Info("browser: clicked retry", "item", item.Label(), "label", label)
		return nil
	}
	return fmt.Errorf("browser: no retry control on row %s", item.Label())
}

// Acknowledged polls the item's row within the ack wait. The click is
// considered accepted when the row disappears or its status text no
// longer matches a failure marker.
func (s *Session) Acknowledged(ctx context.Context, item report.Item) bool {
	deadline := time.Now().Add(s.cfg.AckWait)
	for {
		row, err := s.findRow(ctx, item)
		if err == nil {
			if row == nil {
				return true
			}
			if text, terr := row.Text(); terr == nil {
				if status, _ := scan.Classify(text, s.cfg.Markers); status != report.StatusFailed {
					return true
				}
			}
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// tooltipWait bounds how long a hovered tooltip gets to render.
const tooltipWait = 2 * time.Second

// FailureDetail hovers the item's status cell so its error tooltip
// renders, then reads the tooltip text through the locator chain. The
// hover also sets the page up for the evidence screenshot. A row with
// no tooltip yields "" without error.
func (s *Session) FailureDetail(ctx context.Context, item report.Item) (string, error) {
	row, err := s.findRow(ctx, item)
	if err != nil {
		return "", fmt.Errorf("browser: find row %s: %w", item.Label(), err)
	}
	if row == nil {
		return "", fmt.Errorf("browser: row %s no longer present", item.Label())
	}

	if err := s.hoverFailureCell(row); err != nil {
		return "", fmt.Errorf("browser: hover row %s: %w", item.Label(), err)
	}
	return s.tooltipText(ctx), nil
}

// hoverFailureCell hovers the cell carrying the failure text; the
// tooltip anchors there. Falls back to the row itself.
func (s *Session) hoverFailureCell(row *rod.Element) error {
	cells, err := row.ElementsX(`.//td`)
	if err == nil {
		for _, cell := range cells {
			text, terr := cell.Text()
			if terr != nil {
				continue
			}
			if status, _ := scan.Classify(text, s.cfg.Markers); status == report.StatusFailed {
				return cell.Hover()
			}
		}
	}
	return row.Hover()
}

// tooltipText polls the tooltip region while the hover tooltip fades
// in. Best effort: no tooltip within the wait yields "".
func (s *Session) tooltipText(ctx context.Context) string {
	deadline := time.Now().Add(tooltipWait)
	for {
		els, err := s.locateAll(ctx, locate.RegionTooltip)
		if err == nil && len(els) > 0 {
			if text, terr := els[0].Text(); terr == nil {
				if text = strings.TrimSpace(text); text != "" {
					return text
				}
			}
		}
		if time.Now().After(deadline) {
			return ""
		}
		select {
		case <-ctx.Done():
			return ""
		case <-time.After(200 * time.Millisecond):
		}
	}
}
