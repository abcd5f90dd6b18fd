// Package browser drives the admin console through a Chrome session:
// launch, login, navigation to the monitoring view, row access, retry
// clicks, and evidence screenshots.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/internal/locate"
	"github.com/Tina0529/chatbot-kb-monitor/monitor/internal/scan"
)

// State tracks the session lifecycle. Transitions are linear:
// Unauthenticated -> Authenticating -> Authenticated -> Navigating ->
// Ready -> Closed, with Error as a terminal side exit.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateNavigating
	StateReady
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateNavigating:
		return "navigating"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// AuthError marks a login failure: bad credentials, missing form, or
// the console never leaving the login page.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "browser: authentication failed: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// NavError marks a failure to reach or recognize the monitoring view.
type NavError struct {
	Step string
	Err  error
}

func (e *NavError) Error() string {
	return fmt.Sprintf("browser: navigation failed at %s: %v", e.Step, e.Err)
}
func (e *NavError) Unwrap() error { return e.Err }

// Config configures a Session.
type Config struct {
	// Remote is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	Remote string

	// Headful disables headless mode, for local debugging.
	Headful bool

	// ResourceBlocking lists resource types to block (fonts, media,
	// stylesheets). Images stay loaded so screenshots keep their
	// evidence value.
	ResourceBlocking []string

	// BaseURL is the console's login page.
	BaseURL string

	// TargetURL is the direct URL of the monitoring view. Empty =
	// follow NavigationPath link texts instead.
	TargetURL string

	// NavigationPath is the sequence of link texts clicked to reach
	// the monitoring view.
	NavigationPath []string

	// Registry resolves named regions to locator chains.
	Registry locate.Registry

	// Markers classify row status text when checking whether a retry
	// was accepted.
	Markers scan.Markers

	AuthWait   time.Duration // post-login indicator wait. Default: 15s.
	NavWait    time.Duration // navigation wait. Default: 30s.
	LocateWait time.Duration // per-region element wait. Default: 10s.
	AckWait    time.Duration // retry acknowledgement wait. Default: 5s.

	// Screenshots.
	ShotDir    string
	ShotPrefix string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Registry == nil {
		c.Registry = locate.DefaultRegistry()
	}
	if c.Markers.Empty() {
		c.Markers = scan.DefaultMarkers()
	}
	if c.AuthWait <= 0 {
		c.AuthWait = 15 * time.Second
	}
	if c.NavWait <= 0 {
		c.NavWait = 30 * time.Second
	}
	if c.LocateWait <= 0 {
		c.LocateWait = 10 * time.Second
	}
	if c.AckWait <= 0 {
		c.AckWait = 5 * time.Second
	}
	if c.ShotDir == "" {
		c.ShotDir = "screenshots"
	}
	if c.ShotPrefix == "" {
		c.ShotPrefix = "kb_monitor_"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is a single-run browser session against the admin console.
// Not safe for concurrent use.
type Session struct {
	cfg     Config
	lnch    *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page
	state   State
	log     *slog.Logger
}

// Open launches Chrome (or connects to a remote instance) and prepares
// a stealth page. The session starts Unauthenticated. Callers must
// Close the session regardless of later errors.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	cfg.defaults()
	log := cfg.Logger

	var wsURL string
	var lnch *launcher.Launcher

	if cfg.Remote != "" {
		wsURL = cfg.Remote
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(!cfg.Headful)

		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		lnch = l
		log.Info("browser: launched local chrome", "headful", cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	if len(cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, cfg.ResourceBlocking); err != nil {
			log.Warn("browser: resource blocking failed", "error", err)
		}
	}

	return &Session{
		cfg:     cfg,
		lnch:    lnch,
		browser: b,
		page:    page,
		state:   StateUnauthenticated,
		log:     log,
	}, nil
}

// State reports the current lifecycle state.
func (s *Session) State() State { return s.state }

// Authenticate logs into the console. Success is observed as the page
// URL leaving the login route within the auth wait. Credential values
// never reach the logs.
func (s *Session) Authenticate(ctx context.Context, username, password string) error {
	if s.state != StateUnauthenticated {
		return &AuthError{Err: fmt.Errorf("session is %s", s.state)}
	}
	s.state = StateAuthenticating
	s.log.Info("browser: logging in", "url", s.cfg.BaseURL)

	if err := s.navigate(ctx, s.cfg.BaseURL, s.cfg.NavWait); err != nil {
		return s.authFailed(err)
	}

	user, err := s.waitFind(ctx, locate.RegionLoginUsername)
	if err != nil {
		return s.authFailed(err)
	}
	if err := user.Input(username); err != nil {
		return s.authFailed(fmt.Errorf("username field: %w", err))
	}

	pass, err := s.waitFind(ctx, locate.RegionLoginPassword)
	if err != nil {
		return s.authFailed(err)
	}
	if err := pass.Input(password); err != nil {
		return s.authFailed(fmt.Errorf("password field: %w", err))
	}

	submit, err := s.waitFind(ctx, locate.RegionLoginSubmit)
	if err != nil {
		return s.authFailed(err)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return s.authFailed(fmt.Errorf("submit: %w", err))
	}

	if err := s.waitLoggedIn(ctx); err != nil {
		return s.authFailed(err)
	}

	s.state = StateAuthenticated
	s.log.Info("browser: logged in")
	return nil
}

// waitLoggedIn polls the page URL until it no longer contains the login
// route, which is how the console signals a successful login.
func (s *Session) waitLoggedIn(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.AuthWait)
	for {
		info, err := s.page.Context(ctx).Info()
		if err == nil && info.URL != "" && !strings.Contains(strings.ToLower(info.URL), "login") {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("still on login page after %v", s.cfg.AuthWait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Session) authFailed(err error) error {
	s.state = StateError
	return &AuthError{Err: err}
}

// NavigateToTarget moves to the monitoring view, either by direct URL
// or by following the configured link texts, and verifies the failure
// table region is present before declaring the session Ready.
func (s *Session) NavigateToTarget(ctx context.Context) error {
	if s.state != StateAuthenticated {
		return &NavError{Step: "precondition", Err: fmt.Errorf("session is %s", s.state)}
	}
	s.state = StateNavigating

	if s.cfg.TargetURL != "" {
		s.log.Info("browser: opening target", "url", s.cfg.TargetURL)
		if err := s.navigate(ctx, s.cfg.TargetURL, s.cfg.NavWait); err != nil {
			return s.navFailed("target url", err)
		}
	} else {
		for _, label := range s.cfg.NavigationPath {
			s.log.Info("browser: following link", "text", label)
			if err := s.clickLink(ctx, label); err != nil {
				return s.navFailed("link "+label, err)
			}
		}
	}

	// Landing check: the view must expose the failure table before the
	// scan can trust an empty row list.
	if _, err := s.waitFind(ctx, locate.RegionTable); err != nil {
		return s.navFailed("landing check", err)
	}

	s.state = StateReady
	s.log.Info("browser: monitoring view ready")
	return nil
}

func (s *Session) navFailed(step string, err error) error {
	s.state = StateError
	return &NavError{Step: step, Err: err}
}

func (s *Session) navigate(ctx context.Context, url string, wait time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	if err := s.page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := s.page.Context(navCtx).WaitLoad(); err != nil {
		s.log.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// clickLink clicks the first link or menu entry whose text contains the
// label, then waits for the resulting page load.
func (s *Session) clickLink(ctx context.Context, label string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavWait)
	defer cancel()

	el, err := s.page.Context(navCtx).Timeout(s.cfg.LocateWait).ElementX(textXPath(label))
	if err != nil {
		return fmt.Errorf("link %q: %w", label, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %q: %w", label, err)
	}
	if err := s.page.Context(navCtx).WaitLoad(); err != nil {
		s.log.Warn("browser: wait load timeout after click", "text", label, "error", err)
	}
	return nil
}

// Close shuts down the page, Chrome, and the launcher. Idempotent and
// safe in any state.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed

	if s.page != nil {
		if err := s.page.Close(); err != nil {
			s.log.Debug("browser: close page", "error", err)
		}
		s.page = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.log.Debug("browser: close browser", "error", err)
		}
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
	return nil
}
