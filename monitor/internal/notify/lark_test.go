package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLarkPostsCard(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"code": 0, "msg": "success"})
	}))
	defer server.Close()

	l := NewLark(server.URL,
		WithLarkLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithLarkTimezone(time.UTC))

	if err := l.Notify(context.Background(), testReport()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if got["msg_type"] != "interactive" {
		t.Errorf("msg_type = %v", got["msg_type"])
	}
	card, _ := got["card"].(map[string]any)
	if card == nil {
		t.Fatal("card missing")
	}
	header, _ := card["header"].(map[string]any)
	if header["template"] != "red" {
		t.Errorf("template = %v, want red for unretried failures", header["template"])
	}
	raw, _ := json.Marshal(card)
	for _, want := range []string{
		"manual.pdf",
		"Retry: retry accepted after 1 attempt(s)",
		"Retry: retry failed after 3 attempt(s): retry control missing",
		"Error: ファイルの解析に失敗しました",
		"saved locally",
	} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("card missing %q", want)
		}
	}
}

func TestLarkRetriesOnServerError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"code": 0})
	}))
	defer server.Close()

	l := NewLark(server.URL,
		WithLarkRetries(2),
		WithLarkLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	if err := l.Notify(context.Background(), testReport()); err != nil {
		t.Fatalf("Notify after retry: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestLarkAPICodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 19001, "msg": "invalid card"})
	}))
	defer server.Close()

	l := NewLark(server.URL,
		WithLarkRetries(0),
		WithLarkLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	err := l.Notify(context.Background(), testReport())
	if err == nil || !strings.Contains(err.Error(), "19001") {
		t.Errorf("expected api code error, got %v", err)
	}
}

func TestLarkUploadsScreenshots(t *testing.T) {
	shot := filepath.Join(t.TempDir(), "kb_monitor_status.png")
	if err := os.WriteFile(shot, []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write shot: %v", err)
	}

	var tokenCalls, uploadCalls int
	var card map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["app_id"] != "cli_app" {
			t.Errorf("app_id = %q", body["app_id"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0, "tenant_access_token": "t-xyz", "expire": 7200,
		})
	})
	mux.HandleFunc("/open-apis/im/v1/images", func(w http.ResponseWriter, r *http.Request) {
		uploadCalls++
		if got := r.Header.Get("Authorization"); got != "Bearer t-xyz" {
			t.Errorf("authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("image_type"); got != "message" {
			t.Errorf("image_type = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0, "data": map[string]any{"image_key": "img_v2_abc"},
		})
	})
	mux.HandleFunc("/webhook", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&card)
		json.NewEncoder(w).Encode(map[string]any{"code": 0})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	l := NewLark(server.URL+"/webhook",
		WithLarkImageCreds("cli_app", "secret"),
		WithLarkAPIBase(server.URL+"/open-apis"),
		WithLarkLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	rep := testReport()
	rep.ScreenshotPaths = []string{shot, shot}
	if err := l.Notify(context.Background(), rep); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if tokenCalls != 1 {
		t.Errorf("token calls = %d, want 1 (cached)", tokenCalls)
	}
	if uploadCalls != 2 {
		t.Errorf("upload calls = %d", uploadCalls)
	}
	raw, _ := json.Marshal(card)
	if !strings.Contains(string(raw), "img_v2_abc") {
		t.Error("image key missing from card")
	}
	if strings.Contains(string(raw), "saved locally") {
		t.Error("local fallback note present despite successful upload")
	}
}

func TestLarkImageCap(t *testing.T) {
	shot := filepath.Join(t.TempDir(), "s.png")
	if err := os.WriteFile(shot, []byte("png"), 0o644); err != nil {
		t.Fatalf("write shot: %v", err)
	}

	var uploadCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 0, "tenant_access_token": "t", "expire": 7200})
	})
	mux.HandleFunc("/open-apis/im/v1/images", func(w http.ResponseWriter, r *http.Request) {
		uploadCalls++
		json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{"image_key": "k"}})
	})
	mux.HandleFunc("/webhook", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 0})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	l := NewLark(server.URL+"/webhook",
		WithLarkImageCreds("a", "s"),
		WithLarkAPIBase(server.URL+"/open-apis"),
		WithLarkLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	rep := testReport()
	rep.ScreenshotPaths = []string{shot, shot, shot, shot, shot, shot}
	if err := l.Notify(context.Background(), rep); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if uploadCalls != maxLarkImages {
		t.Errorf("upload calls = %d, want %d", uploadCalls, maxLarkImages)
	}
}

func TestBuildLarkCardRunError(t *testing.T) {
	rep := testReport()
	rep.Err = "navigation failed at landing check"
	rep.Resolve()

	card := buildLarkCard(rep, nil, 10, time.UTC)
	raw, _ := json.Marshal(card)
	if !strings.Contains(string(raw), "Run Error") {
		t.Error("run error status missing")
	}
	if !strings.Contains(string(raw), "navigation failed at landing check") {
		t.Error("error detail missing")
	}
	if !strings.Contains(string(raw), `"template":"red"`) {
		t.Error("run error card should be red")
	}
}
