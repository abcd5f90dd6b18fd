package browser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// CaptureScreenshot writes a full-page PNG named after the label and
// timestamp, returning its path. Capture is best effort: any failure
// logs a warning and returns "" — evidence must never break a run.
func (s *Session) CaptureScreenshot(ctx context.Context, label string) string {
	if s.page == nil {
		return ""
	}

	if err := os.MkdirAll(s.cfg.ShotDir, 0o755); err != nil {
		s.log.Warn("browser: screenshot dir", "dir", s.cfg.ShotDir, "error", err)
		return ""
	}

	data, err := s.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		s.log.Warn("browser: screenshot", "label", label, "error", err)
		return ""
	}

	name := s.cfg.ShotPrefix + sanitizeLabel(label) + "_" + time.Now().Format("20060102_150405") + ".png"
	path := filepath.Join(s.cfg.ShotDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.log.Warn("browser: write screenshot", "path", path, "error", err)
		return ""
	}

	s.log.Info("browser: screenshot saved", "path", path)
	return path
}

// sanitizeLabel makes a label safe for file names.
func sanitizeLabel(label string) string {
	var sb strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			sb.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			sb.WriteRune(r + ('a' - 'A'))
		case r > 127:
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := sb.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	out = strings.Trim(out, "_")
	if out == "" {
		out = "shot"
	}
	if runes := []rune(out); len(runes) > 80 {
		out = string(runes[:80])
	}
	return out
}
