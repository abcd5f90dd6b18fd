package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/slack-go/slack"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/report"
)

// slackAPI is the slice of the Slack client the sink uses, swappable in
// tests.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

// Slack posts the run summary to a channel and attaches the evidence
// screenshots. Screenshot upload failures downgrade the notification to
// text only; they never fail the Notify call on their own.
type Slack struct {
	api      slackAPI
	channel  string
	maxItems int
	loc      *time.Location
	logger   *slog.Logger
}

// SlackOption configures a Slack sink.
type SlackOption func(*Slack)

// WithSlackClient replaces the Slack API client, mainly for tests.
func WithSlackClient(api slackAPI) SlackOption {
	return func(s *Slack) { s.api = api }
}

// WithSlackMaxItems caps the failed entries listed in a message. Default: 10.
func WithSlackMaxItems(n int) SlackOption {
	return func(s *Slack) { s.maxItems = n }
}

// WithSlackTimezone sets the location for the summary timestamp.
func WithSlackTimezone(loc *time.Location) SlackOption {
	return func(s *Slack) { s.loc = loc }
}

// WithSlackLogger sets a custom logger.
func WithSlackLogger(lg *slog.Logger) SlackOption {
	return func(s *Slack) { s.logger = lg }
}

// NewSlack creates a Slack sink posting to the given channel.
func NewSlack(token, channel string, opts ...SlackOption) *Slack {
	s := &Slack{
		channel:  channel,
		maxItems: 10,
		loc:      time.Local,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.api == nil {
		s.api = slack.New(token)
	}
	return s
}

func (s *Slack) Notify(ctx context.Context, rep *report.RunReport) error {
	text := Summary(rep, s.maxItems, s.loc)
	if _, _, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}

	for _, path := range rep.ScreenshotPaths {
		if err := s.uploadShot(ctx, path); err != nil {
			s.logger.Warn("notify: slack upload failed", "path", path, "error", err)
		}
	}
	return nil
}

func (s *Slack) uploadShot(ctx context.Context, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("slack: stat screenshot: %w", err)
	}
	if fi.Size() <= 0 {
		return fmt.Errorf("slack: screenshot %s is empty", path)
	}

	_, err = s.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		File:     path,
		FileSize: int(fi.Size()),
		Filename: filepath.Base(path),
		Channel:  s.channel,
		Title:    filepath.Base(path),
	})
	if err != nil {
		return fmt.Errorf("slack: upload %s: %w", path, err)
	}
	return nil
}

func (s *Slack) Close() error { return nil }
