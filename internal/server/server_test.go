package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/gokern/internal/clock"
	"github.com/me/gokern/internal/cpu"
	"github.com/me/gokern/internal/logging"
	"github.com/me/gokern/internal/mem"
	"github.com/me/gokern/internal/sched"
	"github.com/me/gokern/internal/trace"
	"github.com/me/gokern/pkg/model"
)

func newTestServer(t *testing.T) (*Server, *sched.Scheduler) {
	t.Helper()
	clk := clock.NewManual()
	m := mem.NewMapper()
	c := cpu.New(cpu.Config{Quantum: 8, Tick: time.Millisecond}, clk, m)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := sched.New(c, clk, m, trace.Nop{}, logger)
	return New(s, logger), s
}

func doRequest(t *testing.T, srv *Server, method, path string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	var resp Response
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return rr, resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rr, resp := doRequest(t, srv, http.MethodGet, "/healthz")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if resp.Status != "ok" {
		t.Errorf("envelope status = %q, want ok", resp.Status)
	}
	if resp.RequestID == "" {
		t.Error("response should carry a request id")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("response should carry the X-Request-ID header")
	}
}

func TestSchedulerView(t *testing.T) {
	srv, s := newTestServer(t)
	if _, err := s.Spawn(model.NoPid, "a", model.PriorityNormal, model.Program{model.Exit{Code: 0}}); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	rr, resp := doRequest(t, srv, http.MethodGet, "/api/scheduler")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	view, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %T, want object", resp.Data)
	}
	if view["processes"] != float64(1) || view["ready"] != float64(1) {
		t.Errorf("view = %v, want one ready process", view)
	}
}

func TestListAndGetProcess(t *testing.T) {
	srv, s := newTestServer(t)
	pid, err := s.Spawn(model.NoPid, "a", model.PriorityHigh, model.Program{model.Exit{Code: 0}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	rr, resp := doRequest(t, srv, http.MethodGet, "/api/processes")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rr.Code)
	}
	list, ok := resp.Data.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("data = %#v, want one process", resp.Data)
	}

	rr, resp = doRequest(t, srv, http.MethodGet, "/api/processes/1")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rr.Code)
	}
	proc, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %T, want object", resp.Data)
	}
	if proc["pid"] != float64(pid) || proc["priority"] != "high" {
		t.Errorf("process = %v, want pid 1 at high priority", proc)
	}
}

func TestGetProcessErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	rr, resp := doRequest(t, srv, http.MethodGet, "/api/processes/99")
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown pid status = %d, want 404", rr.Code)
	}
	if resp.Error == nil || resp.Error.Code != "not_found" {
		t.Errorf("error = %+v, want not_found", resp.Error)
	}

	rr, resp = doRequest(t, srv, http.MethodGet, "/api/processes/zero")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad pid status = %d, want 400", rr.Code)
	}
	if resp.Error == nil || resp.Error.Code != "bad_pid" {
		t.Errorf("error = %+v, want bad_pid", resp.Error)
	}
}

func TestRequestLogCarriesSchedulerProgress(t *testing.T) {
	var buf bytes.Buffer
	clk := clock.NewManual()
	m := mem.NewMapper()
	c := cpu.New(cpu.Config{Quantum: 8, Tick: time.Millisecond}, clk, m)
	logger := logging.NewLoggerWithWriter(slog.LevelInfo, "text", &buf)
	s := sched.New(c, clk, m, trace.Nop{}, logger)
	srv := New(s, logger)

	s.Pass() // idle pass; advances the pass counter and the clock

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.ServeHTTP(httptest.NewRecorder(), req)

	output := buf.String()
	if !strings.Contains(output, "component=inspector") {
		t.Errorf("expected component=inspector in request log, got: %s", output)
	}
	if !strings.Contains(output, "pass=1") {
		t.Errorf("expected pass=1 in request log, got: %s", output)
	}
	if !strings.Contains(output, "kernel_now=1ms") {
		t.Errorf("expected kernel_now=1ms in request log, got: %s", output)
	}
	if !strings.Contains(output, "request_id=req_") {
		t.Errorf("expected a request id in request log, got: %s", output)
	}
}

func TestRunsWithoutTraceReader(t *testing.T) {
	srv, _ := newTestServer(t)

	rr, resp := doRequest(t, srv, http.MethodGet, "/api/runs")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
	if resp.Error == nil || resp.Error.Code != "no_trace" {
		t.Errorf("error = %+v, want no_trace", resp.Error)
	}
}
