package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ledgerreports/internal/core"
)

type fakeReports struct {
	id       string
	statuses map[string]string
	err      error
	lastKind core.Kind
}

func (f *fakeReports) Generate(context.Context) (string, error) {
	return f.id, f.err
}

func (f *fakeReports) Status(_ context.Context, requestID string, kind core.Kind) (string, error) {
	f.lastKind = kind
	if f.err != nil {
		return "", f.err
	}
	if s, ok := f.statuses[requestID+"/"+string(kind)]; ok {
		return s, nil
	}
	return core.NotFoundText, nil
}

func (f *fakeReports) StatusAll(_ context.Context, requestID string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]string{}
	for _, k := range core.AllKinds() {
		s, ok := f.statuses[requestID+"/"+string(k)]
		if !ok {
			s = core.NotFoundText
		}
		out[k.FileName()] = s
	}
	return out, nil
}

func newTestServer(t *testing.T, reports ReportAPI) *Server {
	t.Helper()
	srv := NewServer(":0", reports, nil)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeReports{})
	rr := do(t, srv, http.MethodGet, "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if decode(t, rr)["status"] != "ok" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing trace id header")
	}
}

func TestGenerate(t *testing.T) {
	srv := newTestServer(t, &fakeReports{id: "0b7c9e34"})

	rr := do(t, srv, http.MethodPost, "/api/v1/reports")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	body := decode(t, rr)
	if body["requestId"] != "0b7c9e34" || body["message"] == "" {
		t.Fatalf("unexpected body %v", body)
	}

	rr = do(t, srv, http.MethodGet, "/api/v1/reports")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestGenerate_StoreFailure(t *testing.T) {
	srv := newTestServer(t, &fakeReports{err: &core.StoreError{Op: "create batch", Err: errors.New("disk I/O error")}})

	rr := do(t, srv, http.MethodPost, "/api/v1/reports")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "disk I/O") {
		t.Errorf("internal error leaked: %s", rr.Body.String())
	}
}

func TestStatus(t *testing.T) {
	reports := &fakeReports{statuses: map[string]string{
		"r1/accounts": "finished in 1.53",
		"r1/yearly":   "processing",
		"r1/fs":       "error",
	}}
	srv := newTestServer(t, reports)

	tests := []struct {
		path     string
		wantKind string
		want     string
	}{
		{"/api/v1/reports/r1/accounts", "accounts", "finished in 1.53"},
		{"/api/v1/reports/r1/balance", "accounts", "finished in 1.53"},
		{"/api/v1/reports/r1/yearly", "yearly", "processing"},
		{"/api/v1/reports/r1/fs", "fs", "error"},
		{"/api/v1/reports/r2/fs", "fs", "not found"},
		{"/api/v1/reports/r1/monthly", "monthly", "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, tt.path)
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d", rr.Code)
			}
			body := decode(t, rr)
			if body["status"] != tt.want || body["kind"] != tt.wantKind {
				t.Errorf("got %v, want kind=%s status=%s", body, tt.wantKind, tt.want)
			}
		})
	}
}

func TestStatusAll(t *testing.T) {
	srv := newTestServer(t, &fakeReports{statuses: map[string]string{
		"r1/accounts": "pending",
		"r1/yearly":   "finished in 0.25",
	}})

	rr := do(t, srv, http.MethodGet, "/api/v1/reports/r1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := decode(t, rr)
	want := map[string]string{"accounts.csv": "pending", "yearly.csv": "finished in 0.25", "fs.csv": "not found"}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("%s = %q, want %q", k, body[k], v)
		}
	}
}

func TestStatus_StoreFailure(t *testing.T) {
	srv := newTestServer(t, &fakeReports{err: errors.New("database is locked")})

	for _, path := range []string{"/api/v1/reports/r1", "/api/v1/reports/r1/yearly"} {
		rr := do(t, srv, http.MethodGet, path)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, rr.Code)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.stop()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if !rl.allowAt("1.2.3.4", now) || !rl.allowAt("1.2.3.4", now) {
		t.Fatal("first two requests should pass")
	}
	if rl.allowAt("1.2.3.4", now) {
		t.Fatal("third request in the window should be refused")
	}
	if !rl.allowAt("5.6.7.8", now) {
		t.Fatal("other clients are independent")
	}
	if !rl.allowAt("1.2.3.4", now.Add(61*time.Second)) {
		t.Fatal("new window should reset the counter")
	}

	rl.cleanupStaleEntries(now.Add(time.Hour))
	if len(rl.clients) != 0 {
		t.Errorf("expected stale entries removed, got %d", len(rl.clients))
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.7:5000", "", "203.0.113.7"},
		{"untrusted peer ignores header", "203.0.113.7:5000", "198.51.100.1", "203.0.113.7"},
		{"trusted proxy", "10.0.0.2:5000", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"trusted proxy bad header", "10.0.0.2:5000", "not-an-ip", "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractClientIP(req); got != tt.want {
				t.Errorf("extractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
