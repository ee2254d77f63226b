// Package pipeline runs the fraud-ring analysis end to end.
//
// A batch flows through graph construction, account statistics, merchant
// classification, the concurrent detectors, ring aggregation and scoring.
// Every analysis is self-contained: nothing is shared between calls.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/ringscope/internal/detect"
	"github.com/opensource-finance/ringscope/internal/domain"
	"github.com/opensource-finance/ringscope/internal/graph"
	"github.com/opensource-finance/ringscope/internal/merchant"
	"github.com/opensource-finance/ringscope/internal/metrics"
	"github.com/opensource-finance/ringscope/internal/rings"
	"github.com/opensource-finance/ringscope/internal/rules"
	"github.com/opensource-finance/ringscope/internal/scoring"
	"github.com/opensource-finance/ringscope/internal/velocity"
)

var tracer = otel.Tracer("ringscope-pipeline")

// Analyzer runs analyses with a fixed default configuration.
type Analyzer struct {
	config    domain.AnalysisConfig
	detectors []detect.Detector
	metrics   *metrics.Collector
	now       func() time.Time
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithMetrics records analysis metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Analyzer) { a.metrics = c }
}

// WithDetectors replaces the detector set. Order is aggregation priority.
func WithDetectors(ds []detect.Detector) Option {
	return func(a *Analyzer) { a.detectors = ds }
}

// WithClock overrides the time source used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer validates cfg and returns an Analyzer using it as default.
func NewAnalyzer(cfg domain.AnalysisConfig, opts ...Option) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Analyzer{
		config:    cfg,
		detectors: detect.All(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config returns the default analysis configuration.
func (a *Analyzer) Config() domain.AnalysisConfig { return a.config }

// Resolve applies per-request options to the defaults and validates the result.
func (a *Analyzer) Resolve(opts *domain.AnalysisOptions) (domain.AnalysisConfig, error) {
	cfg := opts.Apply(a.config)
	if err := cfg.Validate(); err != nil {
		return domain.AnalysisConfig{}, err
	}
	if err := validateExpressions(cfg.MerchantExpressions); err != nil {
		return domain.AnalysisConfig{}, err
	}
	return cfg, nil
}

// validateExpressions compiles each merchant expression so a bad one is
// rejected before any work starts.
func validateExpressions(exprs []domain.MerchantExpression) error {
	if len(exprs) == 0 {
		return nil
	}
	engine, err := rules.NewEngine(1)
	if err != nil {
		return err
	}
	defer engine.Close()

	for i, expr := range exprs {
		if err := engine.ValidateRule(expr); err != nil {
			return &domain.ConfigurationError{
				Option: fmt.Sprintf("merchantExpressions[%d]", i),
				Reason: err.Error(),
			}
		}
	}
	return nil
}

// Result is the output of one analysis.
type Result struct {
	Report *domain.Report
	Graph  *domain.GraphExport
}

// Analyze runs the full pipeline over req. Only validation and configuration
// errors, or cancellation of ctx, are returned; detector failures are
// reported as diagnostics.
func (a *Analyzer) Analyze(ctx context.Context, req *domain.AnalysisRequest) (*Result, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "analysis",
		trace.WithAttributes(
			attribute.String("tenant.id", req.TenantID),
			attribute.Int("transactions", len(req.Transactions)),
		),
	)
	defer span.End()

	res, err := a.analyze(ctx, req, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.ObserveAnalysis(time.Since(start), len(req.Transactions), 0, err)
		return nil, err
	}

	a.metrics.ObserveAnalysis(time.Since(start), len(req.Transactions), len(res.Report.SuspiciousAccounts), nil)
	for _, r := range res.Report.FraudRings {
		a.metrics.RingDetected(string(r.Pattern))
	}
	span.SetAttributes(
		attribute.String("report.id", res.Report.ID),
		attribute.Int("rings", len(res.Report.FraudRings)),
	)

	slog.Info("analysis completed",
		"report_id", res.Report.ID,
		"tenant_id", req.TenantID,
		"transactions", len(req.Transactions),
		"accounts", res.Report.Summary.TotalAccountsAnalyzed,
		"rings", res.Report.Summary.FraudRingsDetected,
		"diagnostics", len(res.Report.Diagnostics),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (a *Analyzer) analyze(ctx context.Context, req *domain.AnalysisRequest, start time.Time) (*Result, error) {
	cfg, err := a.Resolve(req.Options)
	if err != nil {
		return nil, err
	}
	for i, tx := range req.Transactions {
		if err := tx.Validate(i + 1); err != nil {
			return nil, err
		}
	}

	g := graph.Build(req.Transactions)
	stats := velocity.Compute(g)

	merchants, err := a.classify(ctx, cfg, g, stats)
	if err != nil {
		return nil, err
	}

	in := &detect.Input{Graph: g, Merchant: merchants.Mask(g), Config: cfg}
	candidates, diagnostics := a.runDetectors(ctx, in)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seq := rings.NewSequencer()
	found := rings.Aggregate(seq, candidates, merchants)
	if len(found) == 0 && g.Len() > 0 && cfg.FallbackEnabled {
		if fb := rings.Fallback(seq, g, merchants); fb != nil {
			found = append(found, *fb)
		}
	}
	if found == nil {
		found = []domain.Ring{}
	}

	accounts := scoring.ScoreAccounts(found)
	scoring.ScoreRings(found, accounts)

	reportID := req.ReportID
	if reportID == "" {
		reportID = uuid.New().String()
	}

	report := &domain.Report{
		ID:                 reportID,
		TenantID:           req.TenantID,
		CreatedAt:          a.now().UTC(),
		SuspiciousAccounts: accounts,
		FraudRings:         found,
		Diagnostics:        diagnostics,
		Summary:            summarize(g, merchants, found, accounts),
	}
	report.Summary.ProcessingTimeSeconds = math.Round(time.Since(start).Seconds()*1000) / 1000

	return &Result{
		Report: report,
		Graph:  Export(reportID, g, merchants, found),
	}, nil
}

func (a *Analyzer) classify(ctx context.Context, cfg domain.AnalysisConfig, g *graph.Graph, stats []velocity.Stats) (merchant.Set, error) {
	ctx, span := tracer.Start(ctx, "classify_merchants")
	defer span.End()

	var engine *rules.Engine
	if len(cfg.MerchantExpressions) > 0 {
		var err error
		engine, err = rules.NewEngine(cfg.DetectorWorkers)
		if err != nil {
			return merchant.Set{}, err
		}
		defer engine.Close()
	}

	classifier, err := merchant.NewClassifier(cfg, engine)
	if err != nil {
		return merchant.Set{}, err
	}
	set, err := classifier.Classify(ctx, g, stats)
	if err != nil {
		return merchant.Set{}, err
	}
	span.SetAttributes(attribute.Int("merchants", set.Len()))
	return set, nil
}

type detectorOutput struct {
	candidates []domain.Candidate
	err        error
}

// runDetectors executes every detector concurrently, each bounded by the
// detector timeout. Output is concatenated in detector order.
func (a *Analyzer) runDetectors(ctx context.Context, in *detect.Input) ([]domain.Candidate, []domain.Diagnostic) {
	outputs := make([]detectorOutput, len(a.detectors))

	var wg sync.WaitGroup
	sem := make(chan struct{}, in.Config.DetectorWorkers)

	for i, d := range a.detectors {
		wg.Add(1)
		go func(idx int, d detect.Detector) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			outputs[idx] = a.runDetector(ctx, d, in)
		}(i, d)
	}
	wg.Wait()

	var candidates []domain.Candidate
	var diagnostics []domain.Diagnostic
	for i, out := range outputs {
		if out.err != nil {
			diagnostics = append(diagnostics, domain.Diagnostic{
				Detector: a.detectors[i].Name,
				Error:    out.err.Error(),
			})
			continue
		}
		candidates = append(candidates, out.candidates...)
	}
	return candidates, diagnostics
}

// runDetector isolates one detector: panics, errors and timeouts become a
// DetectorFailure and an empty contribution.
func (a *Analyzer) runDetector(ctx context.Context, d detect.Detector, in *detect.Input) detectorOutput {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "detector."+d.Name)
	defer span.End()

	dctx, cancel := context.WithTimeout(ctx, in.Config.DetectorTimeout)
	defer cancel()

	done := make(chan detectorOutput, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- detectorOutput{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		c, err := d.Run(dctx, in)
		done <- detectorOutput{candidates: c, err: err}
	}()

	var out detectorOutput
	select {
	case out = <-done:
	case <-dctx.Done():
		out = detectorOutput{err: dctx.Err()}
	}

	if out.err != nil {
		if errors.Is(out.err, context.DeadlineExceeded) {
			out.err = fmt.Errorf("timed out after %s", in.Config.DetectorTimeout)
		}
		failure := &domain.DetectorFailure{Detector: d.Name, Err: out.err}
		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Error())
		slog.Warn("detector failed",
			"detector", d.Name,
			"error", out.err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		out = detectorOutput{err: failure}
	} else {
		span.SetAttributes(attribute.Int("candidates", len(out.candidates)))
	}

	a.metrics.ObserveDetector(d.Name, time.Since(start), out.err != nil)
	return out
}

func summarize(g *graph.Graph, merchants merchant.Set, found []domain.Ring, accounts []domain.SuspiciousAccount) domain.Summary {
	membership := make(map[string]int)
	for _, r := range found {
		for _, m := range r.Members {
			membership[m]++
		}
	}
	repeat, single := 0, 0
	for _, n := range membership {
		if n > 1 {
			repeat++
		} else {
			single++
		}
	}

	return domain.Summary{
		TotalAccountsAnalyzed:     g.Len(),
		SuspiciousAccountsFlagged: len(accounts),
		FraudRingsDetected:        len(found),
		MerchantAccountsDetected:  merchants.Len(),
		TotalTransactions:         g.EdgeCount(),
		NormalAccounts:            g.Len() - merchants.Len() - len(accounts),
		RepeatOffenders:           repeat,
		SingleRingMembers:         single,
	}
}
