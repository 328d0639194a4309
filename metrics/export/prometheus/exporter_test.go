package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nebryx/authz"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeSource struct {
	snapshot authz.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authz.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                   { return f.dropped }

func scrape(t *testing.T, exp *Exporter) string {
	t.Helper()
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestScrapeIncludesCountersAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: authz.MetricsSnapshot{
			Counters: map[authz.MetricID]uint64{
				authz.MetricAuthorizeSuccess: 7,
			},
			Histograms: map[authz.MetricID][]uint64{
				authz.MetricAuthorizeLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := scrape(t, exp)
	for _, want := range []string{
		"authz_authorize_success_total 7",
		"authz_login_failure_total 0",
		`authz_authorize_latency_seconds_bucket{le="0.005"} 1`,
		`authz_authorize_latency_seconds_bucket{le="0.5"} 28`,
		`authz_authorize_latency_seconds_bucket{le="+Inf"} 36`,
		"authz_authorize_latency_seconds_count 36",
		"authz_activity_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestHistogramOmittedWhenLatencyDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: authz.MetricsSnapshot{
			Counters:   map[authz.MetricID]uint64{},
			Histograms: map[authz.MetricID][]uint64{},
		},
	})

	out := scrape(t, exp)
	if strings.Contains(out, "authz_authorize_latency_seconds") {
		t.Fatalf("histogram must be absent, got:\n%s", out)
	}
	if !strings.Contains(out, "authz_authorize_success_total 0") {
		t.Fatalf("counters must still be exported, got:\n%s", out)
	}
}

func TestExporterRegistersCleanly(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{})
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(exp); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}
