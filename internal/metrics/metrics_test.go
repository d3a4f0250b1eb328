package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPCollectorRecordsMetrics(t *testing.T) {
	collector, err := NewHTTPCollector(nil)
	if err != nil {
		t.Fatalf("NewHTTPCollector returned error: %v", err)
	}

	handlerInvoked := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerInvoked = true
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	instrumented := collector.InstrumentHandler(handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	instrumented.ServeHTTP(rr, req)

	if !handlerInvoked {
		t.Fatal("expected handler to be invoked")
	}

	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	body := scrape(t, collector)
	if !strings.Contains(body, `econcal_http_requests_total{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("requests_total metric not recorded, body=%q", body)
	}

	if !strings.Contains(body, `econcal_http_request_duration_seconds_count{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("request_duration_seconds_count metric not recorded, body=%q", body)
	}
}

func TestPipelineCollectorSharesRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	httpCollector, err := NewHTTPCollector(registry)
	if err != nil {
		t.Fatalf("NewHTTPCollector returned error: %v", err)
	}
	pipeline, err := NewPipelineCollector(registry)
	if err != nil {
		t.Fatalf("NewPipelineCollector returned error: %v", err)
	}

	pipeline.ObserveFetch("Myfxbook", OutcomeFetched, 250*time.Millisecond)
	pipeline.ObserveFetch("Myfxbook", OutcomeCacheHit, 0)
	pipeline.IssueRaised("Myfxbook", "no_time")
	pipeline.BrowserLaunched()
	pipeline.BrowserTornDown("idle")
	pipeline.BrowserQueueWait(time.Second)
	pipeline.DeliveryDecisions("general", 3, 1)

	body := scrape(t, httpCollector)
	expected := []string{
		`econcal_adapter_fetch_total{outcome="fetched",source="Myfxbook"} 1`,
		`econcal_adapter_fetch_total{outcome="cache_hit",source="Myfxbook"} 1`,
		`econcal_adapter_fetch_duration_seconds_count{source="Myfxbook"} 1`,
		`econcal_quality_issues_total{source="Myfxbook",type="no_time"} 1`,
		`econcal_browser_launches_total 1`,
		`econcal_browser_teardowns_total{reason="idle"} 1`,
		`econcal_browser_queue_wait_seconds_count 1`,
		`econcal_delivery_events_total{decision="deliver",mode="general"} 3`,
		`econcal_delivery_events_total{decision="skip",mode="general"} 1`,
	}
	for _, line := range expected {
		if !strings.Contains(body, line) {
			t.Errorf("missing %q in metrics output", line)
		}
	}
}

func TestPipelineCollectorNilSafe(t *testing.T) {
	var c *PipelineCollector
	c.ObserveFetch("x", OutcomeError, time.Second)
	c.IssueRaised("x", "y")
	c.BrowserLaunched()
	c.BrowserTornDown("idle")
	c.BrowserQueueWait(time.Second)
	c.DeliveryDecisions("general", 1, 1)
}

func scrape(t *testing.T, collector *HTTPCollector) string {
	t.Helper()
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics handler to return 200, got %d", rr.Code)
	}
	return rr.Body.String()
}
