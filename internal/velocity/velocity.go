// Package velocity provides per-account transaction velocity statistics.
package velocity

import (
	"time"

	"github.com/opensource-finance/ringscope/internal/graph"
)

// Stats summarizes the activity of one account in a batch.
type Stats struct {
	AccountID string

	InCount   int
	OutCount  int
	InAmount  float64
	OutAmount float64

	// Counterparties is the number of distinct other accounts seen on
	// either side of a transaction.
	Counterparties int

	FirstSeen time.Time
	LastSeen  time.Time
}

// Degree is the total transaction count touching the account.
func (s *Stats) Degree() int { return s.InCount + s.OutCount }

// Span is the time between the first and last transaction.
func (s *Stats) Span() time.Duration { return s.LastSeen.Sub(s.FirstSeen) }

// TxPerHour is the transaction rate over the active span, with the span
// floored at one hour so a burst of a few transactions is not inflated.
func (s *Stats) TxPerHour() float64 {
	hours := s.Span().Hours()
	if hours < 1 {
		hours = 1
	}
	return float64(s.Degree()) / hours
}

// Compute returns statistics for every account, indexed like g.
func Compute(g *graph.Graph) []Stats {
	stats := make([]Stats, g.Len())
	for i := range stats {
		stats[i] = account(g, i)
	}
	return stats
}

func account(g *graph.Graph, i int) Stats {
	s := Stats{
		AccountID: g.Account(i),
		InCount:   g.InDegree(i),
		OutCount:  g.OutDegree(i),
	}

	others := make(map[int]struct{})
	observe := func(e graph.Edge, other int) float64 {
		tx := g.Transaction(e)
		if other != i {
			others[other] = struct{}{}
		}
		if s.FirstSeen.IsZero() || tx.Timestamp.Before(s.FirstSeen) {
			s.FirstSeen = tx.Timestamp
		}
		if tx.Timestamp.After(s.LastSeen) {
			s.LastSeen = tx.Timestamp
		}
		return tx.Amount
	}

	for _, e := range g.In(i) {
		s.InAmount += observe(e, e.From)
	}
	for _, e := range g.Out(i) {
		s.OutAmount += observe(e, e.To)
	}
	s.Counterparties = len(others)
	return s
}
