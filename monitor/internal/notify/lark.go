package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/report"
)

// maxLarkImages bounds uploads per message: one status view plus a few
// per-failure shots.
const maxLarkImages = 4

// Lark posts an interactive card to a Lark group webhook. With app
// credentials configured it also uploads screenshots through the IM
// image API and embeds them in the card; without them (or when an
// upload fails) the card degrades to listing the local file paths.
type Lark struct {
	webhookURL string
	apiBase    string
	client     *http.Client
	maxRetries int
	maxItems   int
	appID      string
	appSecret  string
	loc        *time.Location
	logger     *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// LarkOption configures a Lark sink.
type LarkOption func(*Lark)

// WithLarkRetries sets the maximum number of webhook retries. Default: 3.
func WithLarkRetries(n int) LarkOption {
	return func(l *Lark) { l.maxRetries = n }
}

// WithLarkLogger sets a custom logger.
func WithLarkLogger(lg *slog.Logger) LarkOption {
	return func(l *Lark) { l.logger = lg }
}

// WithLarkMaxItems caps the failed entries listed in a card. Default: 10.
func WithLarkMaxItems(n int) LarkOption {
	return func(l *Lark) { l.maxItems = n }
}

// WithLarkImageCreds enables screenshot upload via the IM image API.
func WithLarkImageCreds(appID, appSecret string) LarkOption {
	return func(l *Lark) {
		l.appID = appID
		l.appSecret = appSecret
	}
}

// WithLarkAPIBase overrides the open-apis base URL, mainly for tests.
func WithLarkAPIBase(base string) LarkOption {
	return func(l *Lark) { l.apiBase = strings.TrimRight(base, "/") }
}

// WithLarkTimezone sets the location for the card timestamp footer.
func WithLarkTimezone(loc *time.Location) LarkOption {
	return func(l *Lark) { l.loc = loc }
}

// NewLark creates a Lark sink targeting the given webhook URL. The API
// base for token and image calls follows the webhook's host family
// (larksuite.com international, feishu.cn domestic).
func NewLark(webhookURL string, opts ...LarkOption) *Lark {
	l := &Lark{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		maxRetries: 3,
		maxItems:   10,
		loc:        time.Local,
		logger:     slog.Default(),
	}
	if strings.Contains(webhookURL, "open.larksuite.com") {
		l.apiBase = "https://open.larksuite.com/open-apis"
	} else {
		l.apiBase = "https://open.feishu.cn/open-apis"
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Lark) Notify(ctx context.Context, rep *report.RunReport) error {
	var imageKeys []string
	if l.appID != "" && l.appSecret != "" && len(rep.ScreenshotPaths) > 0 {
		paths := rep.ScreenshotPaths
		if len(paths) > maxLarkImages {
			paths = paths[:maxLarkImages]
		}
		for _, p := range paths {
			key, err := l.uploadImage(ctx, p)
			if err != nil {
				l.logger.Warn("notify: lark image upload failed", "path", p, "error", err)
				continue
			}
			imageKeys = append(imageKeys, key)
		}
	}

	card := buildLarkCard(rep, imageKeys, l.maxItems, l.loc)
	return l.post(ctx, l.webhookURL, card, nil)
}

func (l *Lark) Close() error { return nil }

// larkResponse is the common code/msg envelope of webhook and API
// responses.
type larkResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// post sends JSON with retry and exponential backoff, and checks the
// Lark code field on top of the HTTP status.
func (l *Lark) post(ctx context.Context, url string, payload any, out *larkResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("lark: marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("lark: new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := l.client.Do(req)
		if err != nil {
			lastErr = err
			l.logger.Warn("lark: request failed", "attempt", attempt+1, "error", err)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("lark: status %d", resp.StatusCode)
			l.logger.Warn("lark: bad status", "attempt", attempt+1, "status", resp.StatusCode)
			continue
		}

		var lr larkResponse
		if err := json.Unmarshal(respBody, &lr); err != nil {
			lastErr = fmt.Errorf("lark: decode response: %w", err)
			continue
		}
		if lr.Code != 0 {
			lastErr = fmt.Errorf("lark: api code %d: %s", lr.Code, lr.Msg)
			l.logger.Warn("lark: api error", "attempt", attempt+1, "code", lr.Code, "msg", lr.Msg)
			continue
		}
		if out != nil {
			*out = lr
		}
		return nil
	}
	return fmt.Errorf("lark: all retries exhausted: %w", lastErr)
}

// accessToken returns a cached tenant access token, refreshing it five
// minutes before expiry.
func (l *Lark) accessToken(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token != "" && time.Now().Before(l.tokenExpiry) {
		return l.token, nil
	}

	var out struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
		Expire            int    `json:"expire"`
	}

	body, err := json.Marshal(map[string]string{
		"app_id":     l.appID,
		"app_secret": l.appSecret,
	})
	if err != nil {
		return "", fmt.Errorf("lark: marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		l.apiBase+"/auth/v3/tenant_access_token/internal", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("lark: token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("lark: token request: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("lark: decode token response: %w", err)
	}
	if out.Code != 0 {
		return "", fmt.Errorf("lark: token api code %d: %s", out.Code, out.Msg)
	}

	expire := out.Expire
	if expire <= 0 {
		expire = 7200
	}
	l.token = out.TenantAccessToken
	l.tokenExpiry = time.Now().Add(time.Duration(expire-300) * time.Second)
	return l.token, nil
}

// uploadImage pushes one screenshot through the IM v1 image API and
// returns its image key for card embedding.
func (l *Lark) uploadImage(ctx context.Context, path string) (string, error) {
	token, err := l.accessToken(ctx)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("lark: open image: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("image_type", "message"); err != nil {
		return "", fmt.Errorf("lark: multipart: %w", err)
	}
	part, err := mw.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("lark: multipart: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("lark: read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("lark: multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.apiBase+"/im/v1/images", &buf)
	if err != nil {
		return "", fmt.Errorf("lark: image request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("lark: image request: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			ImageKey string `json:"image_key"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("lark: decode image response: %w", err)
	}
	if out.Code != 0 {
		return "", fmt.Errorf("lark: image api code %d: %s", out.Code, out.Msg)
	}
	if out.Data.ImageKey == "" {
		return "", fmt.Errorf("lark: image api returned no key")
	}
	return out.Data.ImageKey, nil
}

// buildLarkCard renders the interactive card for a run report.
func buildLarkCard(rep *report.RunReport, imageKeys []string, maxItems int, loc *time.Location) map[string]any {
	if maxItems <= 0 {
		maxItems = 10
	}
	if loc == nil {
		loc = time.Local
	}

	emoji, statusText := statusLine(rep)
	color := "green"
	switch rep.Overall {
	case report.FailuresRetried:
		color = "orange"
	case report.FailuresUnretried, report.RunError:
		color = "red"
	}

	summary := []string{
		fmt.Sprintf("%s **Status:** %s", emoji, statusText),
		fmt.Sprintf("📊 **Total Items:** %d", rep.ScannedCount),
		fmt.Sprintf("❌ **Failed:** %d", len(rep.FailedItems)),
	}
	if rep.Err != "" {
		summary = append(summary, "🚨 **Error:** "+rep.Err)
	}
	if n := len(rep.RetryOutcomes); n > 0 {
		summary = append(summary,
			fmt.Sprintf("🔄 **Retries Accepted:** %d/%d", acceptedRetries(rep), n))
	}
	took := rep.FinishedAt.Sub(rep.StartedAt).Round(100 * time.Millisecond)
	summary = append(summary, fmt.Sprintf("⏱️ **Execution Time:** %s", took))

	elements := []map[string]any{
		larkMD(strings.Join(summary, "\n")),
	}

	if len(rep.FailedItems) > 0 {
		elements = append(elements, map[string]any{"tag": "hr"})
		for i, it := range rep.FailedItems {
			if i == maxItems {
				elements = append(elements,
					larkMD(fmt.Sprintf("... and %d more", len(rep.FailedItems)-maxItems)))
				break
			}
			text := fmt.Sprintf("**%d.** %s\n   Status: %s\n   Retry: %s",
				i+1, it.Label(), it.Status, retryResult(outcomeFor(rep, i, it)))
			if it.Message != "" {
				text += "\n   Error: " + truncate(it.Message, 100)
			}
			elements = append(elements, larkMD(text))
		}
	}

	switch {
	case len(imageKeys) > 0:
		elements = append(elements, map[string]any{"tag": "hr"}, larkMD("📸 **Screenshots:**"))
		for _, key := range imageKeys {
			elements = append(elements, map[string]any{
				"tag":     "img",
				"img_key": key,
				"alt":     map[string]any{"tag": "plain_text", "content": "Screenshot"},
			})
		}
	case len(rep.ScreenshotPaths) > 0:
		// Upload disabled or failed: point at the local files instead.
		elements = append(elements, map[string]any{"tag": "hr"},
			larkMD(fmt.Sprintf("📸 **Screenshots:** %d (saved locally)", len(rep.ScreenshotPaths))))
	}

	elements = append(elements, map[string]any{"tag": "hr"}, map[string]any{
		"tag": "div",
		"text": map[string]any{
			"tag":     "plain_text",
			"content": "Report generated: " + rep.FinishedAt.In(loc).Format("2006-01-02 15:04:05 (MST)"),
		},
	})

	return map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title": map[string]any{
					"tag":     "plain_text",
					"content": fmt.Sprintf("KB Monitor Report - %s", emoji),
				},
				"template": color,
			},
			"elements": elements,
		},
	}
}

func larkMD(content string) map[string]any {
	return map[string]any{
		"tag":  "div",
		"text": map[string]any{"tag": "lark_md", "content": content},
	}
}
