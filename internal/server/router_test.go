package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arlert/devmon/internal/daemon"
	"github.com/arlert/devmon/internal/history"
	"github.com/arlert/devmon/internal/history/sqlite"
)

func testDaemon() *daemon.Daemon {
	src := func(name string) ([]daemon.Command, error) { return nil, nil }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return daemon.New(daemon.Config{Script: "serve"}, src, nil, logger)
}

func TestStatusEndpoint(t *testing.T) {
	r := NewRouter(testDaemon(), nil)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code: %d", resp.StatusCode)
	}
	var got struct {
		Script  string `json:"script"`
		Running bool   `json:"running"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Script != "serve" || got.Running {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	sink, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	defer func() { _ = sink.Close() }()
	for i := 0; i < 3; i++ {
		rec := history.Record{Type: history.EventReload, OccurredAt: time.Now().Add(time.Duration(i) * time.Second), Script: "serve"}
		if err := sink.Send(context.Background(), rec); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	r := NewRouter(testDaemon(), sink)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/history?limit=2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code: %d", resp.StatusCode)
	}
	var recs []history.Record
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("limit ignored: %d records", len(recs))
	}
}

func TestHistoryEndpointWithoutSink(t *testing.T) {
	r := NewRouter(testDaemon(), nil)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/history")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404 without sink, got %d", resp.StatusCode)
	}
}

func TestHistoryEndpointBadLimit(t *testing.T) {
	sink, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	r := NewRouter(testDaemon(), sink)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/history?limit=zero")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 for bad limit, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := NewRouter(testDaemon(), nil)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code: %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("metrics body does not look like prometheus output")
	}
}
