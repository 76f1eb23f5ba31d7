package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"smartinlet/internal/logs"
	"smartinlet/internal/models"
)

func init() { logs.Discard() }

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc")
	h.ServeHTTP(rec, req)
	if seen != "abc" || rec.Header().Get("X-Request-Id") != "abc" {
		t.Fatalf("reqid = %q, header %q", seen, rec.Header().Get("X-Request-Id"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "abc" {
		t.Fatalf("expected generated reqid, got %q", seen)
	}
}

func TestRecovererWritesProblem(t *testing.T) {
	h := RequestID(Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var p models.Problem
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Status != http.StatusInternalServerError || p.Success {
		t.Fatalf("problem = %+v", p)
	}
}

func TestLoggerRecordsStatus(t *testing.T) {
	r := mux.NewRouter()
	r.Use(LoggerMW)
	r.HandleFunc("/things/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/7", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRateLimiterPerKey(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 2, DeviceKey)
	l.now = func() time.Time { return now }

	r := mux.NewRouter()
	r.Use(l.Middleware)
	r.HandleFunc("/iot/{kind}/{sensorId}/try", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	call := func(path string) int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if got := call("/iot/air/1/try"); got != http.StatusOK {
			t.Fatalf("burst request %d: %d", i, got)
		}
	}
	if got := call("/iot/air/1/try"); got != http.StatusTooManyRequests {
		t.Fatalf("over budget: %d", got)
	}
	if got := call("/iot/temp/1/try"); got != http.StatusOK {
		t.Fatalf("other key must have its own budget: %d", got)
	}

	now = now.Add(time.Second)
	if got := call("/iot/air/1/try"); got != http.StatusOK {
		t.Fatalf("after refill: %d", got)
	}
}

func TestDeviceKeyFallsBackToIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4321"
	if got := DeviceKey(req); got != "10.0.0.5" {
		t.Fatalf("key = %q", got)
	}
}
