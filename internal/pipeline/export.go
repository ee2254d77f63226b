package pipeline

import (
	"sort"

	"github.com/opensource-finance/ringscope/internal/domain"
	"github.com/opensource-finance/ringscope/internal/graph"
	"github.com/opensource-finance/ringscope/internal/merchant"
)

// MaxExportNodes caps the size of a graph export.
const MaxExportNodes = 200

// Export builds the node and edge view of g. Larger graphs keep the
// MaxExportNodes accounts with the highest degree and the edges between them.
func Export(reportID string, g *graph.Graph, merchants merchant.Set, found []domain.Ring) *domain.GraphExport {
	ringsOf := make(map[string][]string)
	for _, r := range found {
		for _, m := range r.Members {
			ringsOf[m] = append(ringsOf[m], r.ID)
		}
	}

	keep := make([]bool, g.Len())
	truncated := g.Len() > MaxExportNodes
	if truncated {
		order := make([]int, g.Len())
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			return g.Degree(order[i]) > g.Degree(order[j])
		})
		for _, v := range order[:MaxExportNodes] {
			keep[v] = true
		}
	} else {
		for i := range keep {
			keep[i] = true
		}
	}

	export := &domain.GraphExport{
		ReportID:  reportID,
		Nodes:     []domain.GraphNode{},
		Edges:     []domain.GraphEdge{},
		Truncated: truncated,
	}

	for i := 0; i < g.Len(); i++ {
		if !keep[i] {
			continue
		}
		id := g.Account(i)
		export.Nodes = append(export.Nodes, domain.GraphNode{
			ID:        id,
			Class:     nodeClass(merchants.Contains(id), len(ringsOf[id])),
			Rings:     ringsOf[id],
			InDegree:  g.InDegree(i),
			OutDegree: g.OutDegree(i),
		})
		for _, e := range g.Out(i) {
			if !keep[e.To] {
				continue
			}
			tx := g.Transaction(e)
			export.Edges = append(export.Edges, domain.GraphEdge{
				TransactionID: tx.ID,
				Source:        tx.SenderID,
				Target:        tx.ReceiverID,
				Amount:        tx.Amount,
				Timestamp:     tx.Timestamp,
			})
		}
	}
	return export
}

func nodeClass(isMerchant bool, ringCount int) string {
	switch {
	case isMerchant:
		return domain.NodeMerchant
	case ringCount > 1:
		return domain.NodeRepeatOffender
	case ringCount == 1:
		return domain.NodeSingleRing
	default:
		return domain.NodeNormal
	}
}
