package detect

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/ringscope/internal/domain"
	"github.com/opensource-finance/ringscope/internal/graph"
	"github.com/opensource-finance/ringscope/internal/merchant"
)

var base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type edge struct {
	from, to string
	hours    float64
}

func input(cfg domain.AnalysisConfig, merchants []string, edges ...edge) *Input {
	txs := make([]domain.Transaction, len(edges))
	for i, e := range edges {
		txs[i] = domain.Transaction{
			ID:         fmt.Sprintf("tx-%02d", i),
			SenderID:   e.from,
			ReceiverID: e.to,
			Amount:     500,
			Timestamp:  base.Add(time.Duration(e.hours * float64(time.Hour))),
		}
	}
	g := graph.Build(txs)
	return &Input{
		Graph:    g,
		Merchant: merchant.NewSet(merchants...).Mask(g),
		Config:   cfg,
	}
}

func TestCycles(t *testing.T) {
	cfg := domain.DefaultAnalysisConfig()
	ctx := context.Background()

	t.Run("Triangle", func(t *testing.T) {
		in := input(cfg, nil, edge{"A", "B", 0}, edge{"B", "C", 1}, edge{"C", "A", 2})
		got, err := Cycles(ctx, in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 cycle, got %d", len(got))
		}
		if !reflect.DeepEqual(got[0].Members, []string{"A", "B", "C"}) {
			t.Errorf("expected members [A B C], got %v", got[0].Members)
		}
		if got[0].Pattern != domain.PatternCycle || got[0].RiskScore != 95.0 {
			t.Errorf("expected cycle/95, got %s/%.1f", got[0].Pattern, got[0].RiskScore)
		}
	})

	t.Run("SameMembersOnce", func(t *testing.T) {
		in := input(cfg, nil,
			edge{"A", "B", 0}, edge{"B", "C", 0}, edge{"C", "A", 0},
			edge{"A", "C", 0}, edge{"C", "B", 0}, edge{"B", "A", 0},
		)
		got, _ := Cycles(ctx, in)
		if len(got) != 1 {
			t.Errorf("expected both orientations to collapse to 1 cycle, got %d", len(got))
		}
	})

	t.Run("LengthBounds", func(t *testing.T) {
		in := input(cfg, nil,
			edge{"A", "B", 0}, edge{"B", "A", 0},
			edge{"P1", "P2", 0}, edge{"P2", "P3", 0}, edge{"P3", "P4", 0},
			edge{"P4", "P5", 0}, edge{"P5", "P6", 0}, edge{"P6", "P1", 0},
			edge{"Q1", "Q2", 0}, edge{"Q2", "Q3", 0}, edge{"Q3", "Q4", 0},
			edge{"Q4", "Q5", 0}, edge{"Q5", "Q1", 0},
		)
		got, _ := Cycles(ctx, in)
		if len(got) != 1 {
			t.Fatalf("expected only the 5-cycle, got %d", len(got))
		}
		if len(got[0].Members) != 5 {
			t.Errorf("expected 5 members, got %v", got[0].Members)
		}
	})

	t.Run("MerchantDiscardsCycle", func(t *testing.T) {
		in := input(cfg, []string{"B"}, edge{"A", "B", 0}, edge{"B", "C", 1}, edge{"C", "A", 2})
		got, _ := Cycles(ctx, in)
		if len(got) != 0 {
			t.Errorf("expected no cycles through merchant, got %v", got)
		}
	})

	t.Run("BudgetExceeded", func(t *testing.T) {
		small := cfg
		small.CycleStepBudget = 2
		in := input(small, nil, edge{"A", "B", 0}, edge{"B", "C", 1}, edge{"C", "A", 2})
		_, err := Cycles(ctx, in)
		if !errors.Is(err, ErrBudgetExceeded) {
			t.Errorf("expected ErrBudgetExceeded, got %v", err)
		}
	})
}

func TestFanIn(t *testing.T) {
	cfg := domain.DefaultAnalysisConfig()
	ctx := context.Background()

	t.Run("BurstWithinWindow", func(t *testing.T) {
		in := input(cfg, nil,
			edge{"S1", "R", 0}, edge{"S2", "R", 3}, edge{"S3", "R", 6}, edge{"S1", "R", 10},
		)
		got, err := FanIn(ctx, in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 fan_in ring, got %d", len(got))
		}
		want := []string{"R", "S1", "S2", "S3"}
		if !reflect.DeepEqual(got[0].Members, want) {
			t.Errorf("expected members %v, got %v", want, got[0].Members)
		}
		if got[0].Hub != "R" || got[0].RiskScore != 85.0 {
			t.Errorf("expected hub R score 85, got %s %.1f", got[0].Hub, got[0].RiskScore)
		}
	})

	t.Run("WindowTooWide", func(t *testing.T) {
		in := input(cfg, nil,
			edge{"S1", "R", 0}, edge{"S2", "R", 20}, edge{"S3", "R", 50}, edge{"S1", "R", 80},
		)
		got, _ := FanIn(ctx, in)
		if len(got) != 0 {
			t.Errorf("expected no ring over 80h window, got %v", got)
		}
	})

	t.Run("TooFewDistinct", func(t *testing.T) {
		in := input(cfg, nil,
			edge{"S1", "R", 0}, edge{"S2", "R", 1}, edge{"S1", "R", 2}, edge{"S2", "R", 3},
		)
		got, _ := FanIn(ctx, in)
		if len(got) != 0 {
			t.Errorf("expected no ring with 2 distinct senders, got %v", got)
		}
	})

	t.Run("SelfLoopNotCounted", func(t *testing.T) {
		in := input(cfg, nil,
			edge{"S1", "R", 0}, edge{"S2", "R", 1}, edge{"R", "R", 2}, edge{"S1", "R", 3},
		)
		got, _ := FanIn(ctx, in)
		if len(got) != 0 {
			t.Errorf("expected self-loop not to count as a sender, got %v", got)
		}
	})

	t.Run("MerchantSenderSkipsWindow", func(t *testing.T) {
		in := input(cfg, []string{"SHOP_1"},
			edge{"SHOP_1", "R", 0}, edge{"S1", "R", 1}, edge{"S2", "R", 2}, edge{"S3", "R", 3},
			edge{"S4", "R", 4},
		)
		got, _ := FanIn(ctx, in)
		if len(got) != 1 {
			t.Fatalf("expected second window to qualify, got %d rings", len(got))
		}
		want := []string{"R", "S1", "S2", "S3", "S4"}
		if !reflect.DeepEqual(got[0].Members, want) {
			t.Errorf("expected members %v, got %v", want, got[0].Members)
		}
	})

	t.Run("FirstWindowOnly", func(t *testing.T) {
		in := input(cfg, nil,
			edge{"S1", "R", 0}, edge{"S2", "R", 1}, edge{"S3", "R", 2}, edge{"S4", "R", 3},
			edge{"S5", "R", 4}, edge{"S6", "R", 5},
		)
		got, _ := FanIn(ctx, in)
		if len(got) != 1 {
			t.Fatalf("expected one ring per hub, got %d", len(got))
		}
		if !reflect.DeepEqual(got[0].Members, []string{"R", "S1", "S2", "S3", "S4"}) {
			t.Errorf("expected earliest window, got %v", got[0].Members)
		}
	})

	t.Run("SortsByTimestamp", func(t *testing.T) {
		in := input(cfg, nil,
			edge{"S4", "R", 100}, edge{"S1", "R", 0}, edge{"S2", "R", 1}, edge{"S3", "R", 2},
			edge{"S1", "R", 3},
		)
		got, _ := FanIn(ctx, in)
		if len(got) != 1 {
			t.Fatalf("expected 1 ring, got %d", len(got))
		}
		if !reflect.DeepEqual(got[0].Members, []string{"R", "S1", "S2", "S3"}) {
			t.Errorf("expected time-ordered window, got %v", got[0].Members)
		}
	})

	t.Run("MerchantHubSkipped", func(t *testing.T) {
		in := input(cfg, []string{"R"},
			edge{"S1", "R", 0}, edge{"S2", "R", 3}, edge{"S3", "R", 6}, edge{"S1", "R", 10},
		)
		got, _ := FanIn(ctx, in)
		if len(got) != 0 {
			t.Errorf("expected merchant hub skipped, got %v", got)
		}
	})
}

func TestFanOut(t *testing.T) {
	in := input(domain.DefaultAnalysisConfig(), nil,
		edge{"H", "R1", 0}, edge{"H", "R2", 1}, edge{"H", "R3", 2}, edge{"H", "R1", 3},
	)
	got, err := FanOut(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 fan_out ring, got %d", len(got))
	}
	if got[0].Pattern != domain.PatternFanOut || got[0].Hub != "H" {
		t.Errorf("expected fan_out hub H, got %s %s", got[0].Pattern, got[0].Hub)
	}
	if !reflect.DeepEqual(got[0].Members, []string{"H", "R1", "R2", "R3"}) {
		t.Errorf("unexpected members %v", got[0].Members)
	}

	none, _ := FanIn(context.Background(), in)
	if len(none) != 0 {
		t.Errorf("expected no fan_in rings, got %v", none)
	}
}

func TestShellNetworks(t *testing.T) {
	cfg := domain.DefaultAnalysisConfig()
	ctx := context.Background()

	t.Run("Chain", func(t *testing.T) {
		in := input(cfg, nil, edge{"A", "B", 0}, edge{"B", "C", 1}, edge{"C", "D", 2})
		got, err := ShellNetworks(ctx, in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 shell ring, got %d", len(got))
		}
		if !reflect.DeepEqual(got[0].Members, []string{"A", "B", "C", "D"}) {
			t.Errorf("unexpected members %v", got[0].Members)
		}
		if got[0].Pattern != domain.PatternShellNetwork || got[0].RiskScore != 90.0 {
			t.Errorf("expected shell_network/90, got %s/%.1f", got[0].Pattern, got[0].RiskScore)
		}
	})

	t.Run("PairOrder", func(t *testing.T) {
		in := input(cfg, nil,
			edge{"A", "B", 0}, edge{"B", "C", 1}, edge{"C", "D", 2}, edge{"D", "E", 3},
		)
		got, _ := ShellNetworks(ctx, in)
		want := [][]string{
			{"A", "B", "C", "D"},
			{"A", "B", "C", "D", "E"},
			{"B", "C", "D", "E"},
		}
		if len(got) != len(want) {
			t.Fatalf("expected %d rings, got %d", len(want), len(got))
		}
		for i := range want {
			if !reflect.DeepEqual(got[i].Members, want[i]) {
				t.Errorf("ring %d: expected %v, got %v", i, want[i], got[i].Members)
			}
		}
	})

	t.Run("FirstPathPerPair", func(t *testing.T) {
		in := input(cfg, nil,
			edge{"A", "B", 0}, edge{"B", "C", 0}, edge{"C", "D", 0},
			edge{"A", "X", 0}, edge{"X", "Y", 0}, edge{"Y", "D", 0},
		)
		got, _ := ShellNetworks(ctx, in)
		if len(got) != 1 {
			t.Fatalf("expected 1 ring for pair (A, D), got %d", len(got))
		}
		if !reflect.DeepEqual(got[0].Members, []string{"A", "B", "C", "D"}) {
			t.Errorf("expected first DFS path, got %v", got[0].Members)
		}
	})

	t.Run("HighDegreeIntermediate", func(t *testing.T) {
		edges := []edge{{"A", "B", 0}, {"B", "C", 1}, {"C", "D", 2}}
		for i := 0; i < 5; i++ {
			edges = append(edges, edge{"C", fmt.Sprintf("Z%d", i), 3})
		}
		cfgCap := cfg
		cfgCap.ShellCandidateCap = 4
		got, _ := ShellNetworks(ctx, input(cfgCap, nil, edges...))
		if len(got) != 0 {
			t.Errorf("expected no ring through degree-7 intermediate, got %v", got)
		}
	})

	t.Run("MerchantOnPath", func(t *testing.T) {
		in := input(cfg, []string{"C"}, edge{"A", "B", 0}, edge{"B", "C", 1}, edge{"C", "D", 2})
		got, _ := ShellNetworks(ctx, in)
		if len(got) != 0 {
			t.Errorf("expected no ring through merchant, got %v", got)
		}
	})

	t.Run("CandidateCap", func(t *testing.T) {
		capped := cfg
		capped.ShellCandidateCap = 3
		in := input(capped, nil, edge{"A", "B", 0}, edge{"B", "C", 1}, edge{"C", "D", 2})
		got, _ := ShellNetworks(ctx, in)
		if len(got) != 0 {
			t.Errorf("expected D outside candidate set, got %v", got)
		}
	})

	t.Run("BudgetExceeded", func(t *testing.T) {
		small := cfg
		small.ShellStepBudget = 1
		in := input(small, nil, edge{"A", "B", 0}, edge{"B", "C", 1}, edge{"C", "D", 2})
		_, err := ShellNetworks(ctx, in)
		if !errors.Is(err, ErrBudgetExceeded) {
			t.Errorf("expected ErrBudgetExceeded, got %v", err)
		}
	})
}

func TestAllPriorityOrder(t *testing.T) {
	want := []string{NameCycle, NameFanIn, NameFanOut, NameShell}
	got := All()
	if len(got) != len(want) {
		t.Fatalf("expected %d detectors, got %d", len(want), len(got))
	}
	for i, d := range got {
		if d.Name != want[i] {
			t.Errorf("detector %d: expected %s, got %s", i, want[i], d.Name)
		}
	}
}
