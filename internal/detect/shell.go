package detect

import (
	"context"

	"github.com/opensource-finance/ringscope/internal/domain"
)

// ShellNetworks finds layering chains between candidate accounts.
//
// Candidates are the first ShellCandidateCap accounts in graph order. For
// every ordered candidate pair the first simple path, in depth-first order,
// with ShellMinNodes to ShellMaxNodes accounts whose strict intermediates all
// have degree at most ShellMaxDegree becomes a ring. One traversal per source
// records the first qualifying path to every target, which is the same path a
// dedicated search for that pair would find first.
func ShellNetworks(ctx context.Context, in *Input) ([]domain.Candidate, error) {
	g := in.Graph
	cfg := in.Config

	n := min(cfg.ShellCandidateCap, g.Len())
	if n < 2 {
		return nil, nil
	}

	b := newBudget(ctx, cfg.ShellStepBudget)
	path := make([]int, 0, cfg.ShellMaxNodes)
	onPath := make([]bool, g.Len())

	var out []domain.Candidate
	for src := 0; src < n; src++ {
		if in.Merchant[src] {
			continue
		}

		found := make([][]int, n)
		remaining := n - 1
		var walkErr error

		var walk func(v int) bool
		walk = func(v int) bool {
			// v becomes an intermediate once the path extends past it.
			if v != src && g.Degree(v) > cfg.ShellMaxDegree {
				return true
			}
			for _, w := range g.Successors(v) {
				if walkErr = b.step(); walkErr != nil {
					return false
				}
				if onPath[w] || in.Merchant[w] {
					continue
				}
				path = append(path, w)
				if w < n && found[w] == nil && len(path) >= cfg.ShellMinNodes {
					found[w] = append([]int(nil), path...)
					remaining--
				}
				if remaining > 0 && len(path) < cfg.ShellMaxNodes {
					onPath[w] = true
					ok := walk(w)
					onPath[w] = false
					if !ok {
						return false
					}
				}
				path = path[:len(path)-1]
				if remaining == 0 {
					return true
				}
			}
			return true
		}

		path = append(path[:0], src)
		onPath[src] = true
		ok := walk(src)
		onPath[src] = false
		if !ok {
			return nil, walkErr
		}

		for dst := 0; dst < n; dst++ {
			if found[dst] == nil {
				continue
			}
			out = append(out, domain.Candidate{
				Pattern:   domain.PatternShellNetwork,
				Members:   members(g, found[dst]),
				RiskScore: domain.RiskShellNetwork,
			})
		}
	}
	return out, nil
}
