package config

import (
	"errors"
	"os"
)

// Credentials are the console login credentials. They are opaque: never
// logged, never echoed into reports.
type Credentials struct {
	Username string
	Password string
}

// Secrets bundles everything kbmon reads from the environment rather
// than the config file.
type Secrets struct {
	Login Credentials

	// Lark sink.
	LarkWebhookURL string
	LarkAppID      string
	LarkAppSecret  string

	// Slack sink.
	SlackBotToken string
	SlackChannel  string
}

// SecretsFromEnv reads secrets from the process environment.
func SecretsFromEnv() Secrets {
	return Secrets{
		Login: Credentials{
			Username: os.Getenv("KB_USERNAME"),
			Password: os.Getenv("KB_PASSWORD"),
		},
		LarkWebhookURL: os.Getenv("LARK_WEBHOOK_URL"),
		LarkAppID:      os.Getenv("LARK_APP_ID"),
		LarkAppSecret:  os.Getenv("LARK_APP_SECRET"),
		SlackBotToken:  os.Getenv("SLACK_BOT_TOKEN"),
		SlackChannel:   os.Getenv("SLACK_CHANNEL_ID"),
	}
}

// ErrMissingCredentials is returned when the login credentials are not
// set in the environment.
var ErrMissingCredentials = errors.New("config: KB_USERNAME and KB_PASSWORD must be set")

// Validate checks that the mandatory secrets are present.
func (s Secrets) Validate() error {
	if s.Login.Username == "" || s.Login.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}
