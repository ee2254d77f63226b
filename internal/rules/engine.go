// Package rules provides the CEL-Go based predicate engine used for
// expression driven merchant classification.
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/ringscope/internal/domain"
	"github.com/opensource-finance/ringscope/internal/velocity"
)

// Engine compiles and evaluates boolean CEL predicates over account statistics.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules []*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    domain.MerchantExpression
	Program cel.Program
}

// Result is the outcome of evaluating the loaded rules against one account.
type Result struct {
	AccountID string

	// RuleID names the first rule that matched. Empty if none did.
	RuleID string

	// Err is the first evaluation error. Errored rules count as no match.
	Err error
}

// Matched reports whether any rule matched.
func (r Result) Matched() bool { return r.RuleID != "" }

// NewEngine creates a new rule evaluation engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	// CEL environment with account statistic variables
	env, err := cel.NewEnv(
		cel.Variable("account_id", cel.StringType),
		cel.Variable("in_count", cel.IntType),
		cel.Variable("out_count", cel.IntType),
		cel.Variable("degree", cel.IntType),
		cel.Variable("counterparties", cel.IntType),
		cel.Variable("in_amount", cel.DoubleType),
		cel.Variable("out_amount", cel.DoubleType),
		cel.Variable("tx_per_hour", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		maxWorkers: maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(rule domain.MerchantExpression) error {
	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and appends a rule. Rules are evaluated in load order.
func (e *Engine) LoadRule(rule domain.MerchantExpression) error {
	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = append(e.compiledRules, compiled)
	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(rules []domain.MerchantExpression) error {
	for _, rule := range rules {
		if err := e.LoadRule(rule); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate runs the loaded rules against one account, stopping at the first match.
func (e *Engine) Evaluate(s *velocity.Stats) Result {
	e.mu.RLock()
	rules := e.compiledRules
	e.mu.RUnlock()

	result := Result{AccountID: s.AccountID}
	if len(rules) == 0 {
		return result
	}

	activation := map[string]any{
		"account_id":     s.AccountID,
		"in_count":       int64(s.InCount),
		"out_count":      int64(s.OutCount),
		"degree":         int64(s.Degree()),
		"counterparties": int64(s.Counterparties),
		"in_amount":      s.InAmount,
		"out_amount":     s.OutAmount,
		"tx_per_hour":    s.TxPerHour(),
	}

	for _, r := range rules {
		out, _, err := r.Program.Eval(activation)
		if err != nil {
			if result.Err == nil {
				result.Err = fmt.Errorf("rule %s: %w", r.Rule.ID, err)
			}
			continue
		}
		if b, ok := out.(types.Bool); ok && bool(b) {
			result.RuleID = r.Rule.ID
			return result
		}
	}
	return result
}

// EvaluateAll evaluates every account in parallel. Results are indexed like stats.
func (e *Engine) EvaluateAll(ctx context.Context, stats []velocity.Stats) ([]Result, error) {
	results := make([]Result, len(stats))
	if e.RulesCount() == 0 {
		for i := range stats {
			results[i].AccountID = stats[i].AccountID
		}
		return results, nil
	}

	// Partition accounts into one contiguous chunk per worker
	workers := e.maxWorkers
	if workers > len(stats) {
		workers = len(stats)
	}
	chunk := (len(stats) + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < len(stats); start += chunk {
		end := min(start+chunk, len(stats))
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				if ctx.Err() != nil {
					return
				}
				results[i] = e.Evaluate(&stats[i])
			}
		}(start, end)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = nil
	return nil
}

func (e *Engine) compileRule(rule domain.MerchantExpression) (*CompiledRule, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("%w: rule id is required", domain.ErrConfiguration)
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile rule %s: %v", domain.ErrConfiguration, rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: rule %s: expression must return bool, got %s", domain.ErrConfiguration, rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create program for rule %s: %v", domain.ErrConfiguration, rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}
