// Package locate resolves semantically named UI regions to concrete
// elements through ordered fallback chains. Third-party admin consoles
// change class names across releases; a priority list of candidate
// strategies degrades gracefully (stable attribute selector first,
// structural selector next, text content last) instead of hard-failing
// on the first cosmetic change.
package locate

import (
	"context"
	"fmt"
)

// Kind selects the mechanism a Strategy uses to find elements.
type Kind string

const (
	KindCSS   Kind = "css"
	KindXPath Kind = "xpath"
	KindText  Kind = "text"
)

// Strategy is one candidate rule for finding a region's elements.
type Strategy struct {
	Kind  Kind   `yaml:"kind" json:"kind"`
	Value string `yaml:"value" json:"value"`
}

// CSS builds a CSS selector strategy.
func CSS(sel string) Strategy { return Strategy{Kind: KindCSS, Value: sel} }

// XPath builds an XPath strategy.
func XPath(xp string) Strategy { return Strategy{Kind: KindXPath, Value: xp} }

// Text builds a text-content strategy.
func Text(t string) Strategy { return Strategy{Kind: KindText, Value: t} }

// Chain is the ordered candidate list for one region.
type Chain struct {
	Region     string
	Strategies []Strategy
}

// NoMatchError reports that every candidate strategy for a region
// yielded zero matches.
type NoMatchError struct {
	Region string
	Tried  int
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("locate: no strategy matched region %q (%d tried)", e.Region, e.Tried)
}

// ProbeFunc counts the elements currently matched by a single strategy.
// A probe error is treated the same as zero matches: the chain moves on
// to the next candidate.
type ProbeFunc func(ctx context.Context, s Strategy) (int, error)

// Select tries the chain's strategies in declared order and returns the
// first one matching at least one element. Matches are never merged
// across strategies. All candidates exhausted yields a *NoMatchError.
func (c Chain) Select(ctx context.Context, probe ProbeFunc) (Strategy, error) {
	for _, s := range c.Strategies {
		if err := ctx.Err(); err != nil {
			return Strategy{}, err
		}
		n, err := probe(ctx, s)
		if err != nil || n == 0 {
			continue
		}
		return s, nil
	}
	return Strategy{}, &NoMatchError{Region: c.Region, Tried: len(c.Strategies)}
}
