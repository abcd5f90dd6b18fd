package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/internal/locate"
)

// elements runs one strategy without waiting and returns every match.
func (s *Session) elements(ctx context.Context, st locate.Strategy) (rod.Elements, error) {
	p := s.page.Context(ctx)
	switch st.Kind {
	case locate.KindCSS:
		return p.Elements(st.Value)
	case locate.KindXPath:
		return p.ElementsX(st.Value)
	case locate.KindText:
		return p.ElementsX(textXPath(st.Value))
	default:
		return nil, fmt.Errorf("browser: unknown strategy kind %q", st.Kind)
	}
}

func (s *Session) probe(ctx context.Context, st locate.Strategy) (int, error) {
	els, err := s.elements(ctx, st)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

// locateAll resolves a region's chain and returns every element the
// winning strategy matches.
func (s *Session) locateAll(ctx context.Context, region string) (rod.Elements, error) {
	chain, ok := s.cfg.Registry[region]
	if !ok {
		return nil, fmt.Errorf("browser: unknown region %q", region)
	}
	st, err := chain.Select(ctx, s.probe)
	if err != nil {
		return nil, err
	}
	return s.elements(ctx, st)
}

// find resolves a region to its first matching element, without
// waiting.
func (s *Session) find(ctx context.Context, region string) (*rod.Element, error) {
	els, err := s.locateAll(ctx, region)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		// The page mutated between probe and fetch; treat as no match.
		return nil, &locate.NoMatchError{Region: region, Tried: len(s.cfg.Registry[region].Strategies)}
	}
	return els[0], nil
}

// waitFind polls find until an element appears or the locate wait
// elapses. Only no-match errors are retried.
func (s *Session) waitFind(ctx context.Context, region string) (*rod.Element, error) {
	deadline := time.Now().Add(s.cfg.LocateWait)
	for {
		el, err := s.find(ctx, region)
		if err == nil {
			return el, nil
		}
		var noMatch *locate.NoMatchError
		if !errors.As(err, &noMatch) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// textXPath finds clickable elements whose visible text contains the
// label.
func textXPath(label string) string {
	q := xpathQuote(label)
	return fmt.Sprintf(
		`//*[self::a or self::button or self::span or self::div][contains(normalize-space(.), %s)][not(.//*[contains(normalize-space(.), %s)])]`,
		q, q)
}

// xpathQuote builds an XPath string literal for arbitrary text. XPath
// 1.0 has no escaping inside literals, so mixed quotes need concat().
func xpathQuote(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	pieces := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			pieces = append(pieces, `'"'`)
		}
		if p != "" {
			pieces = append(pieces, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(pieces, ", ") + ")"
}
