// Package graph builds the directed account graph analyzed by the detectors.
//
// Accounts are addressed by a dense integer index assigned in order of first
// appearance (sender before receiver). Adjacency is stored as per-index edge
// lists so traversals never chase pointers and their cost is easy to bound.
package graph

import (
	"github.com/opensource-finance/ringscope/internal/domain"
)

// Edge is one transaction between two account indices.
type Edge struct {
	From int
	To   int

	// Tx is the position of the transaction in the input batch.
	Tx int
}

// Graph is an immutable directed multigraph of accounts.
// It is safe for concurrent readers once Build returns.
type Graph struct {
	accounts []string
	index    map[string]int
	txs      []domain.Transaction

	out  [][]Edge
	in   [][]Edge
	succ [][]int // distinct successors, first-seen order
}

// Build creates the graph for txs. Every sender and receiver becomes a node;
// self-loops and parallel edges are kept.
func Build(txs []domain.Transaction) *Graph {
	g := &Graph{
		index: make(map[string]int, len(txs)),
		txs:   txs,
	}

	for i, tx := range txs {
		from := g.add(tx.SenderID)
		to := g.add(tx.ReceiverID)
		e := Edge{From: from, To: to, Tx: i}
		g.out[from] = append(g.out[from], e)
		g.in[to] = append(g.in[to], e)
	}

	g.succ = make([][]int, len(g.accounts))
	for v, edges := range g.out {
		seen := make(map[int]struct{}, len(edges))
		for _, e := range edges {
			if _, ok := seen[e.To]; ok {
				continue
			}
			seen[e.To] = struct{}{}
			g.succ[v] = append(g.succ[v], e.To)
		}
	}

	return g
}

func (g *Graph) add(account string) int {
	if i, ok := g.index[account]; ok {
		return i
	}
	i := len(g.accounts)
	g.index[account] = i
	g.accounts = append(g.accounts, account)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	return i
}

// Len returns the number of accounts.
func (g *Graph) Len() int { return len(g.accounts) }

// EdgeCount returns the number of transactions.
func (g *Graph) EdgeCount() int { return len(g.txs) }

// Account returns the identifier at index i.
func (g *Graph) Account(i int) string { return g.accounts[i] }

// Accounts returns all identifiers in graph order. The slice must not be modified.
func (g *Graph) Accounts() []string { return g.accounts }

// Index returns the index of account and whether it exists.
func (g *Graph) Index(account string) (int, bool) {
	i, ok := g.index[account]
	return i, ok
}

// Out returns the outgoing edges of i in input order.
func (g *Graph) Out(i int) []Edge { return g.out[i] }

// In returns the incoming edges of i in input order.
func (g *Graph) In(i int) []Edge { return g.in[i] }

// Successors returns the distinct accounts i sends to.
func (g *Graph) Successors(i int) []int { return g.succ[i] }

// InDegree counts incoming transactions.
func (g *Graph) InDegree(i int) int { return len(g.in[i]) }

// OutDegree counts outgoing transactions.
func (g *Graph) OutDegree(i int) int { return len(g.out[i]) }

// Degree is the total transaction count touching i. Parallel edges count
// individually and a self-loop counts twice.
func (g *Graph) Degree(i int) int { return len(g.in[i]) + len(g.out[i]) }

// Transaction returns the transaction carried by e.
func (g *Graph) Transaction(e Edge) domain.Transaction { return g.txs[e.Tx] }

// Transactions returns the input batch.
func (g *Graph) Transactions() []domain.Transaction { return g.txs }
