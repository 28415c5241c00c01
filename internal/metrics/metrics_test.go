package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammed-shakir/geoportal/internal/core/observability"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	return rr.Body.String()
}

func TestProvider_BuildInfoAndRuntime(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test", Revision: "r", BuildDate: "now"}, Runtime: true})

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "smoke"})
	p.Register(g)
	g.Set(42)
	if n := testutil.CollectAndCount(g); n == 0 {
		t.Fatalf("expected at least 1 sample from test_gauge, got %d", n)
	}

	body := scrape(t, p)
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected go_goroutines in payload; got:\n%s", body)
	}
	if !strings.Contains(body, `geoportal_build_info{build_date="now",revision="r",version="test"} 1`) {
		t.Fatalf("expected build info in payload; got:\n%s", body)
	}
}

func TestProvider_ExposesApplicationCollectors(t *testing.T) {
	p := Init(Config{})
	observability.ObservePublishStage("validating", nil, 0.02)

	body := scrape(t, p)
	if !strings.Contains(body, `publish_stage_duration_seconds_count{outcome="ok",stage="validating"}`) {
		t.Fatalf("publish stage histogram not served; got:\n%s", body)
	}
	if strings.Contains(body, "go_goroutines") {
		t.Fatalf("runtime collectors registered without Runtime")
	}
}

func TestProvider_TrackDependency(t *testing.T) {
	p := Init(Config{})
	ok := p.Track("database", func(context.Context) error { return nil })
	down := p.Track("docstore", func(context.Context) error { return errors.New("refused") })

	if err := ok(context.Background()); err != nil {
		t.Fatalf("ok check: %v", err)
	}
	if err := down(context.Background()); err == nil {
		t.Fatal("expected docstore error to pass through")
	}

	body := scrape(t, p)
	for _, want := range []string{
		`geoportal_dependency_up{dependency="database"} 1`,
		`geoportal_dependency_up{dependency="docstore"} 0`,
		`geoportal_dependency_check_seconds_count{dependency="docstore"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in:\n%s", want, body)
		}
	}
}
