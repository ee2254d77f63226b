// Package scoring derives account suspicion scores from ring membership.
package scoring

import (
	"math"
	"sort"

	"github.com/opensource-finance/ringscope/internal/domain"
)

// Tag scores, highest priority first. Accounts with none of these tags score Default.
var priority = []struct {
	tag   string
	score float64
}{
	{domain.TagCycle, 95},
	{domain.TagAggregator, 90},
	{domain.TagDistributor, 88},
	{domain.TagSmurfSender, 85},
}

// Default is the score of an account with no prioritized tag.
const Default = 80.0

// canonical is the order tags appear in output.
var canonical = []string{
	domain.TagCycle,
	domain.TagAggregator,
	domain.TagDistributor,
	domain.TagSmurfSender,
	domain.TagReceiver,
	domain.TagShell,
	domain.TagSuspiciousPattern,
}

// Score resolves a tag set to a single score by strict priority.
func Score(tags map[string]bool) float64 {
	for _, p := range priority {
		if tags[p.tag] {
			return p.score
		}
	}
	return Default
}

// Tag returns the tag a ring contributes to one of its members.
func Tag(r *domain.Ring, account string) string {
	switch r.Pattern {
	case domain.PatternCycle:
		return domain.TagCycle
	case domain.PatternFanIn:
		if account == r.Hub {
			return domain.TagAggregator
		}
		return domain.TagSmurfSender
	case domain.PatternFanOut:
		if account == r.Hub {
			return domain.TagDistributor
		}
		return domain.TagReceiver
	case domain.PatternShellNetwork:
		return domain.TagShell
	default:
		return domain.TagSuspiciousPattern
	}
}

// ScoreAccounts returns one entry per ring member, sorted by score
// descending. Ties keep first-seen order across rings.
func ScoreAccounts(rings []domain.Ring) []domain.SuspiciousAccount {
	type entry struct {
		ring string
		tags map[string]bool
	}
	var order []string
	byAccount := make(map[string]*entry)

	for i := range rings {
		r := &rings[i]
		for _, a := range r.Members {
			e, ok := byAccount[a]
			if !ok {
				e = &entry{ring: r.ID, tags: make(map[string]bool)}
				byAccount[a] = e
				order = append(order, a)
			}
			e.tags[Tag(r, a)] = true
		}
	}

	out := make([]domain.SuspiciousAccount, 0, len(order))
	for _, a := range order {
		e := byAccount[a]
		patterns := make([]string, 0, len(e.tags))
		for _, t := range canonical {
			if e.tags[t] {
				patterns = append(patterns, t)
			}
		}
		out = append(out, domain.SuspiciousAccount{
			AccountID:        a,
			SuspicionScore:   Score(e.tags),
			DetectedPatterns: patterns,
			RingID:           e.ring,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SuspicionScore > out[j].SuspicionScore
	})
	return out
}

// ScoreRings sets each ring's AggregateScore to the mean of its scored
// members rounded to one decimal, or to its RiskScore if none are scored.
func ScoreRings(rings []domain.Ring, accounts []domain.SuspiciousAccount) {
	scores := make(map[string]float64, len(accounts))
	for _, a := range accounts {
		scores[a.AccountID] = a.SuspicionScore
	}

	for i := range rings {
		r := &rings[i]
		var sum float64
		var n int
		for _, m := range r.Members {
			if s, ok := scores[m]; ok {
				sum += s
				n++
			}
		}
		if n == 0 {
			r.AggregateScore = r.RiskScore
			continue
		}
		r.AggregateScore = math.Round(sum/float64(n)*10) / 10
	}
}
