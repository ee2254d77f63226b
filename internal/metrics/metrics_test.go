package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{202, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{42, "unknown"},
	}

	for _, tt := range tests {
		if got := StatusClass(tt.code); got != tt.want {
			t.Errorf("StatusClass(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.ObserveAnalysis(120*time.Millisecond, 40, 5, nil)
	c.ObserveAnalysis(0, 0, 0, errors.New("boom"))
	c.ObserveDetector("cycle", 10*time.Millisecond, true)
	c.RingDetected("fan_in")
	c.CacheLookup(true)
	c.ObserveRequest("POST", "/analyze", 200, time.Millisecond)

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, want := range []string{
		`ringscope_analyses_total{outcome="success"} 1`,
		`ringscope_analyses_total{outcome="error"} 1`,
		`ringscope_transactions_analyzed_total 40`,
		`ringscope_detector_failures_total{detector="cycle"} 1`,
		`ringscope_rings_detected_total{pattern="fan_in"} 1`,
		`ringscope_report_cache_lookups_total{result="hit"} 1`,
		`ringscope_http_requests_total{method="POST",route="/analyze",status="2xx"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %s", want)
		}
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveAnalysis(time.Second, 1, 1, nil)
	c.ObserveDetector("cycle", time.Second, false)
	c.RingDetected("cycle")
	c.CacheLookup(false)
	c.ObserveRequest("GET", "/health", 200, time.Second)

	if c.Registry() != nil {
		t.Error("expected nil registry")
	}

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 from nil collector, got %d", w.Code)
	}
}
