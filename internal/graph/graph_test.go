package graph

import (
	"testing"
	"time"

	"github.com/opensource-finance/ringscope/internal/domain"
)

func tx(id, from, to string) domain.Transaction {
	return domain.Transaction{
		ID:         id,
		SenderID:   from,
		ReceiverID: to,
		Amount:     100,
		Timestamp:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestBuild(t *testing.T) {
	g := Build([]domain.Transaction{
		tx("t1", "A", "B"),
		tx("t2", "B", "C"),
		tx("t3", "A", "B"),
		tx("t4", "C", "C"),
	})

	t.Run("GraphOrder", func(t *testing.T) {
		want := []string{"A", "B", "C"}
		if g.Len() != len(want) {
			t.Fatalf("expected %d accounts, got %d", len(want), g.Len())
		}
		for i, a := range want {
			if g.Account(i) != a {
				t.Errorf("expected account %d to be %s, got %s", i, a, g.Account(i))
			}
			if idx, ok := g.Index(a); !ok || idx != i {
				t.Errorf("expected index %d for %s, got %d (ok=%v)", i, a, idx, ok)
			}
		}
		if _, ok := g.Index("missing"); ok {
			t.Error("expected unknown account to be absent")
		}
	})

	t.Run("ParallelEdgesKept", func(t *testing.T) {
		a, _ := g.Index("A")
		if g.OutDegree(a) != 2 {
			t.Errorf("expected out degree 2 for A, got %d", g.OutDegree(a))
		}
		if len(g.Successors(a)) != 1 {
			t.Errorf("expected 1 distinct successor for A, got %d", len(g.Successors(a)))
		}
		if g.EdgeCount() != 4 {
			t.Errorf("expected 4 edges, got %d", g.EdgeCount())
		}
	})

	t.Run("SelfLoopCountsTwice", func(t *testing.T) {
		c, _ := g.Index("C")
		if g.Degree(c) != 3 {
			t.Errorf("expected degree 3 for C, got %d", g.Degree(c))
		}
		if g.InDegree(c) != 2 || g.OutDegree(c) != 1 {
			t.Errorf("expected in=2 out=1 for C, got in=%d out=%d", g.InDegree(c), g.OutDegree(c))
		}
	})

	t.Run("EdgeCarriesTransaction", func(t *testing.T) {
		b, _ := g.Index("B")
		in := g.In(b)
		if len(in) != 2 {
			t.Fatalf("expected 2 incoming edges for B, got %d", len(in))
		}
		if got := g.Transaction(in[1]).ID; got != "t3" {
			t.Errorf("expected second incoming edge to be t3, got %s", got)
		}
	})
}

func TestBuildEmpty(t *testing.T) {
	g := Build(nil)
	if g.Len() != 0 || g.EdgeCount() != 0 {
		t.Errorf("expected empty graph, got %d accounts %d edges", g.Len(), g.EdgeCount())
	}
}
