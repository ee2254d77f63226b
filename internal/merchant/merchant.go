// Package merchant classifies accounts as merchants before detection runs.
//
// Classification is a pure OR over a list of rules. It runs once per
// analysis and the resulting Set is shared read-only by every detector.
package merchant

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-finance/ringscope/internal/domain"
	"github.com/opensource-finance/ringscope/internal/graph"
	"github.com/opensource-finance/ringscope/internal/rules"
	"github.com/opensource-finance/ringscope/internal/velocity"
)

// Rule is a single merchant predicate.
type Rule interface {
	Kind() domain.MerchantRuleKind
	Match(s *velocity.Stats) bool
}

// NamePatternRule matches case-insensitive substrings of the account id.
type NamePatternRule struct {
	Patterns []string // stored upper-cased
}

// NewNamePatternRule upper-cases and drops empty patterns.
func NewNamePatternRule(patterns []string) NamePatternRule {
	r := NamePatternRule{}
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			r.Patterns = append(r.Patterns, strings.ToUpper(p))
		}
	}
	return r
}

func (NamePatternRule) Kind() domain.MerchantRuleKind { return domain.MerchantRuleName }

func (r NamePatternRule) Match(s *velocity.Stats) bool {
	id := strings.ToUpper(s.AccountID)
	for _, p := range r.Patterns {
		if strings.Contains(id, p) {
			return true
		}
	}
	return false
}

// PrefixRule matches account ids starting with one of Prefixes, case-insensitive.
type PrefixRule struct {
	Prefixes []string
}

func (PrefixRule) Kind() domain.MerchantRuleKind { return domain.MerchantRulePrefix }

func (r PrefixRule) Match(s *velocity.Stats) bool {
	id := strings.ToUpper(s.AccountID)
	for _, p := range r.Prefixes {
		if p != "" && strings.HasPrefix(id, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

// VolumeRule matches accounts whose incoming transaction count exceeds Threshold.
type VolumeRule struct {
	Threshold int
}

func (VolumeRule) Kind() domain.MerchantRuleKind { return domain.MerchantRuleVolume }

func (r VolumeRule) Match(s *velocity.Stats) bool {
	return s.InCount > r.Threshold
}

// Set is the immutable result of classification.
type Set struct {
	members map[string]struct{}
}

// NewSet builds a Set from account ids.
func NewSet(accounts ...string) Set {
	s := Set{members: make(map[string]struct{}, len(accounts))}
	for _, a := range accounts {
		s.members[a] = struct{}{}
	}
	return s
}

// Contains reports whether account is a merchant.
func (s Set) Contains(account string) bool {
	_, ok := s.members[account]
	return ok
}

// Len returns the number of merchants.
func (s Set) Len() int { return len(s.members) }

// Sorted returns the merchant ids in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s.members))
	for a := range s.members {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Mask returns a per-index merchant flag for g.
func (s Set) Mask(g *graph.Graph) []bool {
	mask := make([]bool, g.Len())
	for i := range mask {
		mask[i] = s.Contains(g.Account(i))
	}
	return mask
}

// Classifier holds the compiled rules for one analysis configuration.
type Classifier struct {
	rules  []Rule
	engine *rules.Engine
}

// NewClassifier builds the rule list from cfg. CEL expressions are compiled
// into engine; pass nil to skip expression rules entirely.
func NewClassifier(cfg domain.AnalysisConfig, engine *rules.Engine) (*Classifier, error) {
	c := &Classifier{}

	if name := NewNamePatternRule(cfg.MerchantPatterns); len(name.Patterns) > 0 {
		c.rules = append(c.rules, name)
	}
	if len(cfg.MerchantPrefixes) > 0 {
		c.rules = append(c.rules, PrefixRule{Prefixes: cfg.MerchantPrefixes})
	}
	c.rules = append(c.rules, VolumeRule{Threshold: cfg.MerchantVolumeThreshold})

	if len(cfg.MerchantExpressions) > 0 {
		if engine == nil {
			return nil, fmt.Errorf("%w: merchant expressions require a rule engine", domain.ErrConfiguration)
		}
		if err := engine.LoadRules(cfg.MerchantExpressions); err != nil {
			return nil, err
		}
		c.engine = engine
	}

	return c, nil
}

// Classify evaluates every account once. stats must be indexed like g.
func (c *Classifier) Classify(ctx context.Context, g *graph.Graph, stats []velocity.Stats) (Set, error) {
	set := NewSet()

	var exprResults []rules.Result
	if c.engine != nil {
		var err error
		exprResults, err = c.engine.EvaluateAll(ctx, stats)
		if err != nil {
			return Set{}, fmt.Errorf("merchant expressions: %w", err)
		}
	}

	for i := 0; i < g.Len(); i++ {
		if c.match(&stats[i]) || (exprResults != nil && exprResults[i].Matched()) {
			set.members[g.Account(i)] = struct{}{}
		}
	}
	return set, nil
}

func (c *Classifier) match(s *velocity.Stats) bool {
	for _, r := range c.rules {
		if r.Match(s) {
			return true
		}
	}
	return false
}
