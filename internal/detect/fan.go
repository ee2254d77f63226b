package detect

import (
	"context"
	"sort"

	"github.com/opensource-finance/ringscope/internal/domain"
	"github.com/opensource-finance/ringscope/internal/graph"
)

// FanIn finds accounts receiving a burst from many distinct senders.
func FanIn(ctx context.Context, in *Input) ([]domain.Candidate, error) {
	return fan(ctx, in, domain.PatternFanIn)
}

// FanOut finds accounts sending a burst to many distinct receivers.
func FanOut(ctx context.Context, in *Input) ([]domain.Candidate, error) {
	return fan(ctx, in, domain.PatternFanOut)
}

// fan slides a window of exactly FanMinCount transactions, in time order,
// over the hub's incoming or outgoing edges. The first window that spans at
// most FanWindow, has at least FanMinDistinct distinct counterparties and no
// merchant counterparty yields the hub's only ring for that direction.
func fan(ctx context.Context, in *Input, pattern domain.PatternType) ([]domain.Candidate, error) {
	g := in.Graph
	k := in.Config.FanMinCount

	var out []domain.Candidate
	for hub := 0; hub < g.Len(); hub++ {
		if hub&255 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if in.Merchant[hub] {
			continue
		}

		var edges []graph.Edge
		if pattern == domain.PatternFanIn {
			edges = g.In(hub)
		} else {
			edges = g.Out(hub)
		}
		if len(edges) < k {
			continue
		}

		sorted := make([]graph.Edge, len(edges))
		copy(sorted, edges)
		sort.SliceStable(sorted, func(i, j int) bool {
			return g.Transaction(sorted[i]).Timestamp.Before(g.Transaction(sorted[j]).Timestamp)
		})

		counterparty := func(e graph.Edge) int {
			if pattern == domain.PatternFanIn {
				return e.From
			}
			return e.To
		}

		for start := 0; start+k <= len(sorted); start++ {
			window := sorted[start : start+k]
			first := g.Transaction(window[0]).Timestamp
			last := g.Transaction(window[k-1]).Timestamp
			if last.Sub(first) > in.Config.FanWindow {
				continue
			}

			parties, ok := distinctCounterparties(window, hub, in.Merchant, counterparty)
			if !ok || len(parties) < in.Config.FanMinDistinct {
				continue
			}

			out = append(out, domain.Candidate{
				Pattern:   pattern,
				Members:   members(g, append([]int{hub}, parties...)),
				Hub:       g.Account(hub),
				RiskScore: domain.RiskFan,
			})
			break
		}
	}
	return out, nil
}

// distinctCounterparties returns the window's counterparties in first-seen
// order, excluding the hub. ok is false if any counterparty is a merchant.
func distinctCounterparties(window []graph.Edge, hub int, merchant []bool, party func(graph.Edge) int) ([]int, bool) {
	var out []int
	for _, e := range window {
		p := party(e)
		if p == hub {
			continue
		}
		if merchant[p] {
			return nil, false
		}
		dup := false
		for _, q := range out {
			if q == p {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out, true
}
