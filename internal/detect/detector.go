// Package detect implements the structural pattern detectors.
//
// Every detector is a pure function of the immutable graph, the merchant
// mask and the analysis thresholds. Detectors share no state and may run
// concurrently; the caller is responsible for ordering their output.
package detect

import (
	"context"
	"errors"

	"github.com/opensource-finance/ringscope/internal/domain"
	"github.com/opensource-finance/ringscope/internal/graph"
)

// ErrBudgetExceeded is returned when a traversal exhausts its step budget.
var ErrBudgetExceeded = errors.New("step budget exceeded")

// Input is the read-only view shared by all detectors.
type Input struct {
	Graph *graph.Graph

	// Merchant is indexed like Graph; true marks an excluded account.
	Merchant []bool

	Config domain.AnalysisConfig
}

// Func is the signature every detector implements.
type Func func(ctx context.Context, in *Input) ([]domain.Candidate, error)

// Detector pairs a detector with its name.
type Detector struct {
	Name string
	Run  Func
}

// Detector names, also used in diagnostics and metrics.
const (
	NameCycle  = "cycle"
	NameFanIn  = "fan_in"
	NameFanOut = "fan_out"
	NameShell  = "shell_network"
)

// All returns the detectors in aggregation priority order.
func All() []Detector {
	return []Detector{
		{Name: NameCycle, Run: Cycles},
		{Name: NameFanIn, Run: FanIn},
		{Name: NameFanOut, Run: FanOut},
		{Name: NameShell, Run: ShellNetworks},
	}
}

// budget counts traversal steps and polls the context periodically.
type budget struct {
	ctx       context.Context
	remaining int
	steps     int
}

func newBudget(ctx context.Context, limit int) *budget {
	return &budget{ctx: ctx, remaining: limit}
}

func (b *budget) step() error {
	b.remaining--
	if b.remaining < 0 {
		return ErrBudgetExceeded
	}
	b.steps++
	if b.steps&1023 == 0 {
		return b.ctx.Err()
	}
	return nil
}

func members(g *graph.Graph, idx []int) []string {
	out := make([]string, len(idx))
	for i, v := range idx {
		out[i] = g.Account(v)
	}
	return out
}
