package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndHandler(t *testing.T) {
	t.Parallel()
	m := New()
	m.IncOutbound("onToken")
	m.IncOutbound("onToken")
	m.IncControl("configure", "ok")

	if got := testutil.ToFloat64(m.OutboundCalls.WithLabelValues("onToken")); got != 2 {
		t.Fatalf("outbound onToken = %v, want 2", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`pushbridge_outbound_calls_total{method="onToken"} 2`,
		`pushbridge_control_requests_total{request="configure",status="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.IncOutbound("x")
	m.IncDropped("x")
	m.IncPlatformEvent("x")
	m.IncLaunch("x")
	m.IncControl("x", "y")
	m.IncTopic("x", "y")
}
