package detect

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/opensource-finance/ringscope/internal/domain"
)

// Cycles enumerates elementary directed cycles of CycleMinLength to
// CycleMaxLength accounts that never touch a merchant.
//
// Each cycle is found exactly once by rooting the search at its smallest
// account index and only visiting larger indices. Cycles over the same
// member set collapse to the first one found.
func Cycles(ctx context.Context, in *Input) ([]domain.Candidate, error) {
	g := in.Graph
	minLen, maxLen := in.Config.CycleMinLength, in.Config.CycleMaxLength
	b := newBudget(ctx, in.Config.CycleStepBudget)

	var (
		out     []domain.Candidate
		seen    = make(map[string]struct{})
		path    = make([]int, 0, maxLen)
		onPath  = make([]bool, g.Len())
		walkErr error
	)

	var walk func(root, v int) bool
	walk = func(root, v int) bool {
		for _, w := range g.Successors(v) {
			if walkErr = b.step(); walkErr != nil {
				return false
			}
			if w == root {
				if len(path) >= minLen {
					key := sortedKey(path)
					if _, dup := seen[key]; !dup {
						seen[key] = struct{}{}
						out = append(out, domain.Candidate{
							Pattern:   domain.PatternCycle,
							Members:   members(g, path),
							RiskScore: domain.RiskCycle,
						})
					}
				}
				continue
			}
			if w < root || onPath[w] || in.Merchant[w] || len(path) >= maxLen {
				continue
			}
			path = append(path, w)
			onPath[w] = true
			ok := walk(root, w)
			onPath[w] = false
			path = path[:len(path)-1]
			if !ok {
				return false
			}
		}
		return true
	}

	for root := 0; root < g.Len(); root++ {
		if in.Merchant[root] {
			continue
		}
		path = append(path[:0], root)
		onPath[root] = true
		ok := walk(root, root)
		onPath[root] = false
		if !ok {
			return nil, walkErr
		}
	}

	return out, nil
}

func sortedKey(idx []int) string {
	s := append([]int(nil), idx...)
	sort.Ints(s)
	var sb strings.Builder
	for i, v := range s {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(v))
	}
	return sb.String()
}
