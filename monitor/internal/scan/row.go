package scan

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/report"
)

// Row is one raw table row as read from the live page.
type Row struct {
	Index int
	HTML  string // outer HTML of the row element
	Text  string // rendered inner text
}

// headerLabels are column headings that must not be mistaken for an
// item name when walking a row's cells.
var headerLabels = map[string]bool{
	"リソース":  true,
	"タイトル":  true,
	"タイプ":   true,
	"サイズ":   true,
	"ステータス": true,
	"モデル":   true,
	"トークン数": true,
	"最終更新日": true,
	"アクション": true,
}

// idAttrs are row attributes that may carry a stable item identifier,
// in preference order.
var idAttrs = []string{"data-row-key", "data-id", "data-key", "id"}

// ParseRow turns one raw row into an Item. Parsing is best effort: a
// row whose markup cannot be interpreted degrades to the row text, and
// a row matching no marker classifies as unknown. ParseRow never fails;
// one malformed row must not lose the rest of the scan.
func ParseRow(r Row, m Markers) report.Item {
	text := strings.TrimSpace(r.Text)
	status, _ := Classify(text, m)

	item := report.Item{
		Status: status,
		RawRow: text,
	}

	cells, attrs := parseCells(r.HTML)
	item.ID = rowID(attrs)
	item.Name = cellName(cells)
	if item.Name == "" {
		item.Name = firstLine(text)
	}
	return item
}

// parseCells extracts the cell texts and the row element's attributes
// from the row's outer HTML. Rows are parsed as fragments in a tbody
// context; a bare <tr> fed to a full-document parse would be
// foster-parented and lose its structure.
func parseCells(rawHTML string) ([]string, map[string]string) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, nil
	}
	ctxNode := &html.Node{Type: html.ElementNode, Data: "tbody", DataAtom: atom.Tbody}
	nodes, err := html.ParseFragment(strings.NewReader(rawHTML), ctxNode)
	if err != nil {
		return nil, nil
	}

	var cells []string
	attrs := make(map[string]string)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Tr:
				if len(attrs) == 0 {
					for _, a := range n.Attr {
						attrs[strings.ToLower(a.Key)] = a.Val
					}
				}
			case atom.Td, atom.Th:
				cells = append(cells, collectText(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return cells, attrs
}

// collectText gathers the visible text of a node subtree, space-joined.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

func rowID(attrs map[string]string) string {
	for _, k := range idAttrs {
		if v := strings.TrimSpace(attrs[k]); v != "" {
			return v
		}
	}
	return ""
}

// cellName returns the first non-empty cell that is not a known column
// heading — in the monitored table that is the file name column.
func cellName(cells []string) string {
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" || headerLabels[c] {
			continue
		}
		return c
	}
	return ""
}

// firstLine falls back to the first meaningful line of the row text.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || headerLabels[line] {
			continue
		}
		if i := strings.IndexByte(line, '\t'); i > 0 {
			line = strings.TrimSpace(line[:i])
		}
		return line
	}
	return ""
}
