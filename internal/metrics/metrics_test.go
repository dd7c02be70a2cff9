package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotent(t *testing.T) {
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestCountersIncrement(t *testing.T) {
	_ = Register(prometheus.DefaultRegisterer)
	IncStart("serve")
	IncReload("serve")
	IncKill("serve")
	IncExit("serve", true)
	IncExit("serve", false)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics handler status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"devmon_script_starts_total",
		"devmon_script_reloads_total",
		"devmon_process_kills_total",
		"devmon_process_exits_total",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metric %s missing from output", want)
		}
	}
}
