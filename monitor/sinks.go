package monitor

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/internal/notify"
)

// Sink is a notification backend for run reports.
type Sink = notify.Sink

// NewStdoutSink writes reports as JSON to w (os.Stdout when nil).
func NewStdoutSink(w io.Writer) Sink { return notify.NewStdout(w) }

// BuildSinks assembles the configured notification sinks behind a
// fan-out router. An empty sink list falls back to stdout.
func BuildSinks(cfg *Config, secrets Secrets, logger *slog.Logger) (Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	loc, err := time.LoadLocation(cfg.Monitoring.Timezone)
	if err != nil {
		return nil, fmt.Errorf("monitor: timezone %q: %w", cfg.Monitoring.Timezone, err)
	}

	var sinks []notify.Sink
	for _, sc := range cfg.Notify.Sinks {
		switch sc.Type {
		case "", "stdout":
			sinks = append(sinks, notify.NewStdout(nil))

		case "lark":
			if secrets.LarkWebhookURL == "" {
				return nil, fmt.Errorf("monitor: lark sink configured but LARK_WEBHOOK_URL is not set")
			}
			opts := []notify.LarkOption{
				notify.WithLarkLogger(logger),
				notify.WithLarkTimezone(loc),
			}
			if sc.MaxItems > 0 {
				opts = append(opts, notify.WithLarkMaxItems(sc.MaxItems))
			}
			if secrets.LarkAppID != "" && secrets.LarkAppSecret != "" {
				opts = append(opts, notify.WithLarkImageCreds(secrets.LarkAppID, secrets.LarkAppSecret))
			}
			sinks = append(sinks, notify.NewLark(secrets.LarkWebhookURL, opts...))

		case "slack":
			if secrets.SlackBotToken == "" {
				return nil, fmt.Errorf("monitor: slack sink configured but SLACK_BOT_TOKEN is not set")
			}
			channel := sc.Channel
			if channel == "" {
				channel = secrets.SlackChannel
			}
			if channel == "" {
				return nil, fmt.Errorf("monitor: slack sink needs a channel (config or SLACK_CHANNEL_ID)")
			}
			opts := []notify.SlackOption{
				notify.WithSlackLogger(logger),
				notify.WithSlackTimezone(loc),
			}
			if sc.MaxItems > 0 {
				opts = append(opts, notify.WithSlackMaxItems(sc.MaxItems))
			}
			sinks = append(sinks, notify.NewSlack(secrets.SlackBotToken, channel, opts...))

		default:
			return nil, fmt.Errorf("monitor: unknown sink type %q", sc.Type)
		}
	}

	if len(sinks) == 0 {
		sinks = append(sinks, notify.NewStdout(nil))
	}
	return notify.NewRouter(logger, sinks...), nil
}
