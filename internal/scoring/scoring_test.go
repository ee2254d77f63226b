package scoring

import (
	"reflect"
	"testing"

	"github.com/opensource-finance/ringscope/internal/domain"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want float64
	}{
		{"Cycle", []string{domain.TagCycle, domain.TagAggregator}, 95},
		{"Aggregator", []string{domain.TagAggregator, domain.TagSmurfSender}, 90},
		{"Distributor", []string{domain.TagDistributor, domain.TagReceiver}, 88},
		{"Smurf", []string{domain.TagSmurfSender}, 85},
		{"Receiver", []string{domain.TagReceiver}, 80},
		{"Shell", []string{domain.TagShell}, 80},
		{"Fallback", []string{domain.TagSuspiciousPattern}, 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tags := make(map[string]bool)
			for _, tag := range tt.tags {
				tags[tag] = true
			}
			if got := Score(tags); got != tt.want {
				t.Errorf("expected %.1f, got %.1f", tt.want, got)
			}
		})
	}
}

func TestScoreAccounts(t *testing.T) {
	rings := []domain.Ring{
		{ID: "RING_001", Members: []string{"H", "R1", "R2"}, Pattern: domain.PatternFanOut, Hub: "H", RiskScore: 85},
		{ID: "RING_002", Members: []string{"A", "B", "R1"}, Pattern: domain.PatternCycle, RiskScore: 95},
		{ID: "RING_003", Members: []string{"R", "S1", "S2", "H"}, Pattern: domain.PatternFanIn, Hub: "R", RiskScore: 85},
	}

	got := ScoreAccounts(rings)

	t.Run("SortedStable", func(t *testing.T) {
		want := []string{"R1", "A", "B", "R", "H", "S1", "S2", "R2"}
		ids := make([]string, len(got))
		for i, a := range got {
			ids[i] = a.AccountID
		}
		if !reflect.DeepEqual(ids, want) {
			t.Errorf("expected order %v, got %v", want, ids)
		}
		for i := 1; i < len(got); i++ {
			if got[i].SuspicionScore > got[i-1].SuspicionScore {
				t.Errorf("not sorted at %d", i)
			}
		}
	})

	byID := make(map[string]domain.SuspiciousAccount)
	for _, a := range got {
		byID[a.AccountID] = a
	}

	t.Run("FirstRingWins", func(t *testing.T) {
		if byID["R1"].RingID != "RING_001" {
			t.Errorf("expected R1 in RING_001, got %s", byID["R1"].RingID)
		}
		if byID["H"].RingID != "RING_001" {
			t.Errorf("expected H in RING_001, got %s", byID["H"].RingID)
		}
	})

	t.Run("TagUnion", func(t *testing.T) {
		h := byID["H"]
		if !reflect.DeepEqual(h.DetectedPatterns, []string{domain.TagDistributor, domain.TagSmurfSender}) {
			t.Errorf("unexpected tags for H: %v", h.DetectedPatterns)
		}
		if h.SuspicionScore != 88 {
			t.Errorf("expected distributor score 88, got %.1f", h.SuspicionScore)
		}
		r1 := byID["R1"]
		if !reflect.DeepEqual(r1.DetectedPatterns, []string{domain.TagCycle, domain.TagReceiver}) {
			t.Errorf("unexpected tags for R1: %v", r1.DetectedPatterns)
		}
		if r1.SuspicionScore != 95 {
			t.Errorf("expected cycle score 95, got %.1f", r1.SuspicionScore)
		}
		if byID["R"].SuspicionScore != 90 {
			t.Errorf("expected aggregator score 90, got %.1f", byID["R"].SuspicionScore)
		}
	})

	t.Run("IndependentOfRingOrder", func(t *testing.T) {
		reversed := []domain.Ring{rings[2], rings[1], rings[0]}
		for _, a := range ScoreAccounts(reversed) {
			if a.SuspicionScore != byID[a.AccountID].SuspicionScore {
				t.Errorf("%s: score changed with ring order: %.1f vs %.1f",
					a.AccountID, a.SuspicionScore, byID[a.AccountID].SuspicionScore)
			}
		}
	})
}

func TestScoreRings(t *testing.T) {
	rings := []domain.Ring{
		{ID: "RING_001", Members: []string{"R", "S1", "S2"}, Pattern: domain.PatternFanIn, Hub: "R", RiskScore: 85},
		{ID: "RING_002", Members: []string{"X", "Y", "Z"}, Pattern: domain.PatternShellNetwork, RiskScore: 90},
	}
	accounts := ScoreAccounts(rings[:1])
	ScoreRings(rings, accounts)

	// (90 + 85 + 85) / 3 = 86.666...
	if rings[0].AggregateScore != 86.7 {
		t.Errorf("expected 86.7, got %v", rings[0].AggregateScore)
	}
	if rings[1].AggregateScore != 90 {
		t.Errorf("expected fallback to risk score 90, got %v", rings[1].AggregateScore)
	}
	if rings[0].RiskScore != 85 {
		t.Errorf("expected risk score untouched, got %v", rings[0].RiskScore)
	}
}
