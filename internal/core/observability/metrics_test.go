package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestInit_IdempotentAndExposesSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg)
	Init(reg)

	ObserveHTTP("GET", "/api/layers", 200, 0.01)
	ObserveUpstreamLatency("wms", "GetCapabilities", 0.2)
	ObservePublishStage("loading", nil, 0.5)
	ObservePublishStage("document", errors.New("boom"), 0.1)
	IncPublishResult("rejected", "storage_write")
	ObserveDocstoreOp("redis", "insert", nil, 0.001)

	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`http_requests_total{method="GET",route="/api/layers",status="200"}`,
		`upstream_latency_seconds_bucket{operation="GetCapabilities",upstream="wms"`,
		`publish_stage_duration_seconds_bucket{outcome="ok",stage="loading"`,
		`publish_stage_duration_seconds_bucket{outcome="error",stage="document"`,
		`publish_results_total{kind="storage_write",state="rejected"}`,
		`docstore_op_total{backend="redis",op="insert",result="ok"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in:\n%s", want, body)
		}
	}
}
