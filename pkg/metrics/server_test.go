package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCronJobMetrics(reg).ObserveRun("violation-scan", time.Second, time.Now(), nil)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `cron_job_runs_total{job="violation-scan",outcome="success"} 1`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestServeDisabledWithoutAddr(t *testing.T) {
	if err := Serve(context.Background(), "", prometheus.NewRegistry(), nil); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
