package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/ringscope/internal/domain"
)

var (
	_ domain.Cache = (*LRUCache)(nil)
	_ domain.Cache = (*RedisCache)(nil)
	_ domain.Cache = (*TwoPhaseCache)(nil)
	_ domain.Cache = NopCache{}
)

func sampleReport() *domain.Report {
	return &domain.Report{
		ID:       "report-001",
		TenantID: "tenant-001",
		FraudRings: []domain.Ring{{
			ID:          "RING_001",
			Members:     []string{"A", "B", "C"},
			MemberCount: 3,
			Pattern:     domain.PatternCycle,
			RiskScore:   95,
		}},
		Summary: domain.Summary{FraudRingsDetected: 1, TotalAccountsAnalyzed: 3},
	}
}

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "key2", []byte("value2"), time.Minute)
		if err := cache.Delete(ctx, tenantID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, tenantID, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewLRUCache(10)
		c.now = func() time.Time { return clock }

		_ = c.Set(ctx, tenantID, "expiring", []byte("temp"), time.Minute)
		if val, _ := c.Get(ctx, tenantID, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		clock = clock.Add(2 * time.Minute)
		if val, _ := c.Get(ctx, tenantID, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
		if size, _ := c.Stats(); size != 0 {
			t.Errorf("expected expired entry removed, size %d", size)
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)

		_ = small.Set(ctx, tenantID, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, tenantID, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, tenantID, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = small.Get(ctx, tenantID, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = small.Set(ctx, tenantID, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, tenantID, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := small.Get(ctx, tenantID, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "tenant-001", "shared-key", []byte("tenant1-value"), time.Minute)
		_ = cache.Set(ctx, "tenant-002", "shared-key", []byte("tenant2-value"), time.Minute)

		val1, _ := cache.Get(ctx, "tenant-001", "shared-key")
		val2, _ := cache.Get(ctx, "tenant-002", "shared-key")

		if string(val1) != "tenant1-value" {
			t.Errorf("expected 'tenant1-value', got '%s'", string(val1))
		}
		if string(val2) != "tenant2-value" {
			t.Errorf("expected 'tenant2-value', got '%s'", string(val2))
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := cache.Set(ctx, "", "key", []byte("value"), time.Minute); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := cache.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("Report", func(t *testing.T) {
		if err := cache.SetReport(ctx, tenantID, "abc", sampleReport(), time.Minute); err != nil {
			t.Fatalf("SetReport failed: %v", err)
		}

		got, err := cache.GetReport(ctx, tenantID, "abc")
		if err != nil {
			t.Fatalf("GetReport failed: %v", err)
		}
		if got == nil || got.ID != "report-001" || len(got.FraudRings) != 1 {
			t.Fatalf("unexpected cached report %+v", got)
		}
		if got.FraudRings[0].Pattern != domain.PatternCycle {
			t.Errorf("expected cycle ring, got %s", got.FraudRings[0].Pattern)
		}

		raw, _ := cache.Get(ctx, tenantID, ReportKey("abc"))
		if raw == nil {
			t.Error("expected report stored under report key")
		}

		miss, err := cache.GetReport(ctx, "tenant-002", "abc")
		if err != nil || miss != nil {
			t.Errorf("expected miss for other tenant, got %+v, %v", miss, err)
		}
	})

	t.Run("CorruptReport", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, ReportKey("bad"), []byte("{not json"), time.Minute)
		if _, err := cache.GetReport(ctx, tenantID, "bad"); err == nil {
			t.Error("expected decode error")
		}
	})
}

func TestFingerprint(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		{ID: "t1", SenderID: "A", ReceiverID: "B", Amount: 10, Timestamp: ts},
		{ID: "t2", SenderID: "B", ReceiverID: "C", Amount: 20, Timestamp: ts.Add(time.Hour)},
	}
	cfg := domain.DefaultAnalysisConfig()

	fp1, err := Fingerprint(txs, cfg)
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	fp2, _ := Fingerprint(txs, cfg)
	if fp1 != fp2 {
		t.Error("expected stable fingerprint")
	}
	if len(fp1) != 64 {
		t.Errorf("expected hex sha256, got %q", fp1)
	}

	changed := append([]domain.Transaction(nil), txs...)
	changed[1].Amount = 21
	if fp, _ := Fingerprint(changed, cfg); fp == fp1 {
		t.Error("expected amount change to alter fingerprint")
	}

	shifted := []domain.Transaction{
		{ID: "t1", SenderID: "AB", ReceiverID: "", Amount: 10, Timestamp: ts},
		txs[1],
	}
	if fp, _ := Fingerprint(shifted, cfg); fp == fp1 {
		t.Error("expected field boundaries to alter fingerprint")
	}

	cfg.FallbackEnabled = false
	if fp, _ := Fingerprint(txs, cfg); fp == fp1 {
		t.Error("expected config change to alter fingerprint")
	}
}

func TestNopCache(t *testing.T) {
	ctx := context.Background()
	var c NopCache
	_ = c.SetReport(ctx, "t", "fp", sampleReport(), time.Minute)
	if r, err := c.GetReport(ctx, "t", "fp"); r != nil || err != nil {
		t.Errorf("expected miss, got %+v %v", r, err)
	}
}

func TestNewCache(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("failed to create memory cache: %v", err)
		}
		defer c.Close()
		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("expected *LRUCache, got %T", c)
		}
	})

	t.Run("None", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "none"})
		if err != nil {
			t.Fatalf("failed to create nop cache: %v", err)
		}
		if _, ok := c.(NopCache); !ok {
			t.Errorf("expected NopCache, got %T", c)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported cache type")
		}
	})
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("RINGSCOPE_TEST_REDIS")
	if addr == "" {
		t.Skip("RINGSCOPE_TEST_REDIS not set")
	}

	ctx := context.Background()
	c, err := New(domain.CacheConfig{Type: "redis", RedisAddr: addr, EnableTwoPhase: true, LocalMaxSize: 10})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer c.Close()

	fp := "test-" + time.Now().Format("150405.000000")
	if err := c.SetReport(ctx, "tenant-001", fp, sampleReport(), time.Minute); err != nil {
		t.Fatalf("SetReport failed: %v", err)
	}
	got, err := c.GetReport(ctx, "tenant-001", fp)
	if err != nil || got == nil || got.ID != "report-001" {
		t.Fatalf("unexpected report %+v, %v", got, err)
	}
	_ = c.Delete(ctx, "tenant-001", ReportKey(fp))
}
