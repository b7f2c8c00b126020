package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func family(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func counterValue(t *testing.T, m *Metrics, name, label, value string) float64 {
	t.Helper()
	for _, metric := range family(t, m, name).GetMetric() {
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.GuardDecision("allow")
	m.GuardDecision("allow")
	m.GuardDecision("redirect")
	m.Login("failure")
	m.FetchFailure("projects")
	m.Notice("error")
	m.ObserveHTTP(http.MethodGet, http.StatusSeeOther, 5*time.Millisecond)

	if v := counterValue(t, m, "cms_guard_decisions_total", "decision", "allow"); v != 2 {
		t.Fatalf("allow: got %v want 2", v)
	}
	if v := counterValue(t, m, "cms_logins_total", "result", "failure"); v != 1 {
		t.Fatalf("login failure: got %v want 1", v)
	}
	if v := counterValue(t, m, "cms_dashboard_fetch_failures_total", "resource", "projects"); v != 1 {
		t.Fatalf("fetch failure: got %v want 1", v)
	}
	if v := counterValue(t, m, "cms_http_requests_total", "class", "3xx"); v != 1 {
		t.Fatalf("3xx: got %v want 1", v)
	}
}

func TestMetrics_TabSessionsGauge(t *testing.T) {
	m := New()
	n := 3
	m.TrackTabSessions(func() int { return n })

	got := family(t, m, "cms_tab_sessions").GetMetric()[0].GetGauge().GetValue()
	if got != 3 {
		t.Fatalf("tab_sessions: got %v want 3", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Login("success")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rr.Body)
	if rr.Code != http.StatusOK || !strings.Contains(string(body), `cms_logins_total{result="success"} 1`) {
		t.Fatalf("got %d:\n%s", rr.Code, body)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.GuardDecision("allow")
	m.Login("success")
	m.FetchFailure("x")
	m.Notice("info")
	m.WSConnected(1)
	m.ObserveHTTP("GET", 200, time.Millisecond)
	m.TrackTabSessions(func() int { return 1 })

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("nil handler: got %d want 404", rr.Code)
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{200: "2xx", 303: "3xx", 404: "4xx", 503: "5xx", 0: "unknown"}
	for in, want := range cases {
		if got := StatusClass(in); got != want {
			t.Fatalf("StatusClass(%d): got %q want %q", in, got, want)
		}
	}
}
