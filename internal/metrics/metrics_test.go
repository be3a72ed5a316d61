package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.registry == nil {
		t.Error("Registry is nil")
	}
	if m.InvocationsTotal == nil {
		t.Error("InvocationsTotal is nil")
	}
	if m.InvocationDuration == nil {
		t.Error("InvocationDuration is nil")
	}
	if m.InvocationErrorsTotal == nil {
		t.Error("InvocationErrorsTotal is nil")
	}
	if m.BoundTools == nil {
		t.Error("BoundTools is nil")
	}
}

func TestRecordInvocation(t *testing.T) {
	m := NewMetrics()

	m.RecordInvocation("wpv/create-post", 20*time.Millisecond, OutcomeSuccess)
	m.RecordInvocation("wpv/create-post", 5*time.Millisecond, OutcomeFailure)
	m.RecordInvocation("wpv/create-post", time.Millisecond, "invalid_input")

	if got := testutil.ToFloat64(m.InvocationsTotal.WithLabelValues("wpv/create-post", OutcomeSuccess)); got != 1 {
		t.Errorf("Expected 1 successful invocation, got %v", got)
	}
	if got := testutil.ToFloat64(m.InvocationErrorsTotal.WithLabelValues("wpv/create-post", "invalid_input")); got != 1 {
		t.Errorf("Expected 1 invalid_input error, got %v", got)
	}
	if got := testutil.CollectAndCount(m.InvocationErrorsTotal); got != 1 {
		t.Errorf("Business failures must not count as errors, got %d series", got)
	}
}

func TestSetBoundTools(t *testing.T) {
	m := NewMetrics()

	m.SetBoundTools("site-content-server", 3)

	if got := testutil.ToFloat64(m.BoundTools.WithLabelValues("site-content-server")); got != 3 {
		t.Errorf("Expected 3 bound tools, got %v", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()

	m.RecordInvocation("wpv/create-post", time.Second, "timeout")
	m.SetBoundTools("site-content-server", 1)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, metric := range []string{
		"ability_invocations_total",
		"ability_invocation_duration_seconds",
		"ability_invocation_errors_total",
		"toolserver_bound_tools",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("Metrics output missing: %s", metric)
		}
	}
}
