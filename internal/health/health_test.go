package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/myra/internal/resilience"
)

func get(t *testing.T, h *Handler, path string) (*httptest.ResponseRecorder, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body result
	if rec.Code != http.StatusNotFound {
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec, body := get(t, New(nil), "/healthz")
	if rec.Code != http.StatusOK || body.Status != "ok" {
		t.Errorf("got %d %q, want 200 ok", rec.Code, body.Status)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	ok := func(context.Context) error { return nil }
	bad := func(context.Context) error { return errors.New("stream closed") }

	tests := []struct {
		name     string
		checkers []Checker
		wantCode int
		wantFail string
	}{
		{"no checkers", nil, http.StatusOK, ""},
		{"all pass", []Checker{{"capture", ok}, {"stt", ok}}, http.StatusOK, ""},
		{"one fails", []Checker{{"capture", bad}, {"stt", ok}}, http.StatusServiceUnavailable, "capture"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec, body := get(t, New(tt.checkers), "/readyz")
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if len(body.Checks) != len(tt.checkers) {
				t.Errorf("checks = %v", body.Checks)
			}
			if tt.wantFail != "" && !strings.HasPrefix(body.Checks[tt.wantFail], "fail: ") {
				t.Errorf("check %s = %q, want failure", tt.wantFail, body.Checks[tt.wantFail])
			}
		})
	}
}

func TestReadyz_ChecksHaveDeadline(t *testing.T) {
	t.Parallel()
	h := New([]Checker{{Name: "slow", Check: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}}})
	if rec, body := get(t, h, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("code = %d, checks = %v", rec.Code, body.Checks)
	}
}

func TestStatusz(t *testing.T) {
	t.Parallel()
	rec, _ := get(t, New(nil), "/statusz")
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404 without a status func", rec.Code)
	}

	h := New(nil, WithStatus(func() any { return map[string]string{"status": "awake"} }))
	rec, body := get(t, h, "/statusz")
	if rec.Code != http.StatusOK || body.Status != "awake" {
		t.Errorf("got %d %q, want 200 awake", rec.Code, body.Status)
	}
}

func TestRunning(t *testing.T) {
	t.Parallel()
	var up atomic.Bool
	c := Running("capture", up.Load)
	if err := c.Check(context.Background()); err == nil {
		t.Error("expected failure while stopped")
	}
	up.Store(true)
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestBreakerClosed(t *testing.T) {
	t.Parallel()
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "stt", MaxFailures: 1, ResetTimeout: time.Hour})
	c := BreakerClosed("stt", cb)
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("closed breaker: %v", err)
	}
	_ = cb.Execute(func() error { return errors.New("unavailable") })
	if err := c.Check(context.Background()); err == nil {
		t.Error("expected failure while open")
	}
}
