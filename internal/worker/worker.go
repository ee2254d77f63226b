// Package worker analyzes batches submitted through the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/ringscope/internal/domain"
	"github.com/opensource-finance/ringscope/internal/pipeline"
)

// Worker consumes submitted batches, analyzes them and publishes results.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	analyzer *pipeline.Analyzer

	sem           chan struct{}
	subscriptions []domain.Subscription
	mu            sync.Mutex
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all tenants)
	TenantIDs []string

	// Concurrency bounds batches analyzed at the same time
	Concurrency int
}

// NewWorker creates a new async worker. repo may be nil, in which case
// reports are only published.
func NewWorker(bus domain.EventBus, repo domain.Repository, analyzer *pipeline.Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		analyzer: analyzer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing batches for the given tenants.
func (w *Worker) Start(cfg Config) error {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	w.sem = make(chan struct{}, concurrency)

	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.GlobalTenantID}
	}

	for _, tenantID := range tenants {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicBatchSubmitted, w.handleMessage)
		if err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}

	if len(w.subscriptions) == 0 {
		return fmt.Errorf("no worker subscriptions started")
	}

	slog.Info("workers started",
		"tenant_count", len(tenants),
		"concurrency", concurrency,
		"topic", domain.TopicBatchSubmitted,
	)
	return nil
}

// handleMessage hands the batch to a slot of the worker pool. It blocks
// while all slots are busy, which applies backpressure to the bus.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	select {
	case w.sem <- struct{}{}:
	case <-w.ctx.Done():
		return w.ctx.Err()
	}

	w.wg.Add(1)
	go func() {
		defer func() {
			<-w.sem
			w.wg.Done()
		}()
		_ = w.ProcessBatch(w.ctx, msg)
	}()
	return nil
}

// ProcessBatch analyzes one batch message. The message tenant always wins
// over a tenant in the payload.
func (w *Worker) ProcessBatch(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.AnalysisRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse batch message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	req.TenantID = msg.TenantID
	if req.ReportID == "" {
		req.ReportID = uuid.New().String()
	}
	if req.TraceID == "" {
		req.TraceID = msg.Metadata[domain.MetadataTraceID]
	}
	if req.TraceID == "" {
		req.TraceID = msg.ID
	}

	slog.Debug("processing batch",
		"report_id", req.ReportID,
		"tenant_id", req.TenantID,
		"trace_id", req.TraceID,
		"transactions", len(req.Transactions),
	)

	event := domain.ReportCompletedEvent{
		ReportID: req.ReportID,
		TenantID: req.TenantID,
		TraceID:  req.TraceID,
		Status:   domain.ReportStatusCompleted,
	}

	res, err := w.analyzer.Analyze(ctx, &req)
	if err == nil {
		err = w.save(ctx, req.TenantID, res)
	}
	event.DurationMs = time.Since(start).Milliseconds()

	if err != nil {
		slog.Error("batch failed",
			"report_id", req.ReportID,
			"tenant_id", req.TenantID,
			"error", err,
		)
		event.Status = domain.ReportStatusFailed
		event.Error = err.Error()
		w.publish(ctx, req.TenantID, domain.TopicReportCompleted, event)
		return err
	}

	event.Summary = &res.Report.Summary
	w.publish(ctx, req.TenantID, domain.TopicReportCompleted, event)

	for _, ring := range res.Report.FraudRings {
		w.publish(ctx, req.TenantID, domain.TopicRingDetected, domain.RingDetectedEvent{
			ReportID: req.ReportID,
			TenantID: req.TenantID,
			Ring:     ring,
		})
	}

	slog.Info("batch processed",
		"report_id", req.ReportID,
		"tenant_id", req.TenantID,
		"rings", len(res.Report.FraudRings),
		"duration_ms", event.DurationMs,
	)
	return nil
}

func (w *Worker) save(ctx context.Context, tenantID string, res *pipeline.Result) error {
	if w.repo == nil {
		return nil
	}
	if err := w.repo.SaveReport(ctx, tenantID, res.Report); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	if err := w.repo.SaveGraph(ctx, tenantID, res.Graph); err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}
	return nil
}

func (w *Worker) publish(ctx context.Context, tenantID, topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := w.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Error("failed to publish event",
			"topic", topic,
			"tenant_id", tenantID,
			"error", err,
		)
	}
}

// Stop unsubscribes, cancels in-flight batches and waits for them to exit.
func (w *Worker) Stop() error {
	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	InFlight          int      `json:"inFlight"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		InFlight:          len(w.sem),
	}
}
