package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/opensource-finance/ringscope/internal/bus"
	"github.com/opensource-finance/ringscope/internal/domain"
	"github.com/opensource-finance/ringscope/internal/pipeline"
	"github.com/opensource-finance/ringscope/internal/repository"
)

func cycleBatch(reportID string) domain.AnalysisRequest {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.AnalysisRequest{
		ReportID: reportID,
		Transactions: []domain.Transaction{
			{ID: "t1", SenderID: "A", ReceiverID: "B", Amount: 100, Timestamp: base},
			{ID: "t2", SenderID: "B", ReceiverID: "C", Amount: 100, Timestamp: base.Add(time.Hour)},
			{ID: "t3", SenderID: "C", ReceiverID: "A", Amount: 100, Timestamp: base.Add(2 * time.Hour)},
		},
	}
}

func newAnalyzer(t *testing.T) *pipeline.Analyzer {
	t.Helper()
	a, err := pipeline.NewAnalyzer(domain.DefaultAnalysisConfig())
	if err != nil {
		t.Fatalf("failed to create analyzer: %v", err)
	}
	return a
}

func subscribe[T any](t *testing.T, b domain.EventBus, tenantID, topic string) <-chan T {
	t.Helper()
	ch := make(chan T, 16)
	_, err := b.Subscribe(context.Background(), tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
		var v T
		if err := json.Unmarshal(msg.Payload, &v); err != nil {
			return err
		}
		ch <- v
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	return ch
}

func wait[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	var zero T
	return zero
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: repository.MemoryPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	analyzer := newAnalyzer(t)

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, repo, analyzer)
		if err := w.Start(Config{TenantIDs: []string{"tenant-001"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}
		if stats.Topics[0] != domain.TopicBatchSubmitted {
			t.Errorf("expected topic %s, got %s", domain.TopicBatchSubmitted, stats.Topics[0])
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if got := w.GetStats().SubscriptionCount; got != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", got)
		}
	})

	t.Run("ProcessBatch", func(t *testing.T) {
		w := NewWorker(eventBus, repo, analyzer)
		w.Start(Config{TenantIDs: []string{"tenant-test"}})
		defer w.Stop()

		completed := subscribe[domain.ReportCompletedEvent](t, eventBus, "tenant-test", domain.TopicReportCompleted)
		ringsCh := subscribe[domain.RingDetectedEvent](t, eventBus, "tenant-test", domain.TopicRingDetected)

		payload, _ := json.Marshal(cycleBatch("report-async"))
		if err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicBatchSubmitted, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		event := wait(t, completed)
		if event.Status != domain.ReportStatusCompleted {
			t.Fatalf("expected completed, got %s (%s)", event.Status, event.Error)
		}
		if event.ReportID != "report-async" || event.TenantID != "tenant-test" {
			t.Errorf("unexpected event %+v", event)
		}
		if event.Summary == nil || event.Summary.FraudRingsDetected != 1 {
			t.Errorf("expected 1 ring in summary, got %+v", event.Summary)
		}

		ring := wait(t, ringsCh)
		if ring.Ring.Pattern != domain.PatternCycle || ring.Ring.MemberCount != 3 {
			t.Errorf("unexpected ring %+v", ring.Ring)
		}

		stored, err := repo.GetReport(context.Background(), "tenant-test", "report-async")
		if err != nil {
			t.Fatalf("expected stored report: %v", err)
		}
		if len(stored.FraudRings) != 1 {
			t.Errorf("expected 1 stored ring, got %d", len(stored.FraudRings))
		}
		if _, err := repo.GetGraph(context.Background(), "tenant-test", "report-async"); err != nil {
			t.Errorf("expected stored graph: %v", err)
		}
	})

	t.Run("PayloadTenantIgnored", func(t *testing.T) {
		w := NewWorker(eventBus, repo, analyzer)
		w.Start(Config{TenantIDs: []string{"tenant-owner"}})
		defer w.Stop()

		completed := subscribe[domain.ReportCompletedEvent](t, eventBus, "tenant-owner", domain.TopicReportCompleted)

		batch := cycleBatch("report-owned")
		batch.TenantID = "tenant-intruder"
		payload, _ := json.Marshal(batch)
		eventBus.Publish(context.Background(), "tenant-owner", domain.TopicBatchSubmitted, payload)

		wait(t, completed)
		if _, err := repo.GetReport(context.Background(), "tenant-intruder", "report-owned"); err == nil {
			t.Error("report must not be stored under the payload tenant")
		}
	})

	t.Run("ValidationFailure", func(t *testing.T) {
		w := NewWorker(eventBus, nil, analyzer)
		w.Start(Config{TenantIDs: []string{"tenant-bad"}})
		defer w.Stop()

		completed := subscribe[domain.ReportCompletedEvent](t, eventBus, "tenant-bad", domain.TopicReportCompleted)

		batch := cycleBatch("report-bad")
		batch.Transactions[1].SenderID = ""
		payload, _ := json.Marshal(batch)
		eventBus.Publish(context.Background(), "tenant-bad", domain.TopicBatchSubmitted, payload)

		event := wait(t, completed)
		if event.Status != domain.ReportStatusFailed || event.Error == "" {
			t.Errorf("expected failed event with error, got %+v", event)
		}
	})

	t.Run("GlobalWorker", func(t *testing.T) {
		w := NewWorker(eventBus, nil, analyzer)
		if err := w.Start(Config{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		completed := subscribe[domain.ReportCompletedEvent](t, eventBus, "tenant-any", domain.TopicReportCompleted)

		payload, _ := json.Marshal(cycleBatch(""))
		eventBus.Publish(context.Background(), "tenant-any", domain.TopicBatchSubmitted, payload)

		event := wait(t, completed)
		if event.ReportID == "" {
			t.Error("expected generated report id")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, nil, analyzer)
		w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}})
		defer w.Stop()

		if got := w.GetStats().SubscriptionCount; got != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", got)
		}
	})
}

func TestProcessBatchMalformed(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, nil, newAnalyzer(t))
	err := w.ProcessBatch(context.Background(), &domain.Message{ID: "m1", TenantID: "t", Payload: []byte("{")})
	if err == nil {
		t.Error("expected parse error")
	}
}
