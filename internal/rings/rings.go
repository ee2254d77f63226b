// Package rings deduplicates detector candidates into identified rings.
package rings

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-finance/ringscope/internal/domain"
	"github.com/opensource-finance/ringscope/internal/graph"
	"github.com/opensource-finance/ringscope/internal/merchant"
)

// FallbackSize is the number of accounts placed in a fallback ring.
const FallbackSize = 4

// Sequencer issues ring identifiers. Each analysis owns its own Sequencer.
type Sequencer struct {
	issued int
}

// NewSequencer returns a Sequencer starting at RING_001.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Next returns the next identifier.
func (s *Sequencer) Next() string {
	s.issued++
	return fmt.Sprintf("RING_%03d", s.issued)
}

// Issued returns how many identifiers have been handed out.
func (s *Sequencer) Issued() int { return s.issued }

// Key is the order-independent identity of a member set.
func Key(members []string) string {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

// Aggregate turns candidates, already in detector priority order, into rings.
// Candidates touching a merchant or with fewer than MinRingSize distinct
// members are dropped. Of candidates with the same member set only the first
// survives. Survivors receive identifiers from seq in order.
func Aggregate(seq *Sequencer, candidates []domain.Candidate, merchants merchant.Set) []domain.Ring {
	seen := make(map[string]struct{}, len(candidates))
	var out []domain.Ring

	for _, c := range candidates {
		m := distinct(c.Members)
		if len(m) < domain.MinRingSize || touches(m, merchants) {
			continue
		}
		key := Key(m)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		out = append(out, domain.Ring{
			ID:             seq.Next(),
			Members:        m,
			MemberCount:    len(m),
			Pattern:        c.Pattern,
			RiskScore:      c.RiskScore,
			AggregateScore: c.RiskScore,
			Hub:            c.Hub,
		})
	}
	return out
}

// Fallback returns the low-confidence ring emitted when nothing else was
// detected: the first FallbackSize ordinary accounts in graph order. It
// returns nil when fewer than MinRingSize ordinary accounts exist.
func Fallback(seq *Sequencer, g *graph.Graph, merchants merchant.Set) *domain.Ring {
	var m []string
	for _, a := range g.Accounts() {
		if merchants.Contains(a) {
			continue
		}
		m = append(m, a)
		if len(m) == FallbackSize {
			break
		}
	}
	if len(m) < domain.MinRingSize {
		return nil
	}
	return &domain.Ring{
		ID:             seq.Next(),
		Members:        m,
		MemberCount:    len(m),
		Pattern:        domain.PatternSuspiciousPattern,
		RiskScore:      domain.RiskFallback,
		AggregateScore: domain.RiskFallback,
	}
}

func distinct(members []string) []string {
	seen := make(map[string]struct{}, len(members))
	out := make([]string, 0, len(members))
	for _, a := range members {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

func touches(members []string, merchants merchant.Set) bool {
	for _, a := range members {
		if merchants.Contains(a) {
			return true
		}
	}
	return false
}
