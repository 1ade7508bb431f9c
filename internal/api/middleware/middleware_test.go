package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tnjtools/alertqueue/internal/api/middleware"
)

func TestCorrelationID(t *testing.T) {
	var seen string
	h := middleware.CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.GetCorrelationID(r.Context())
	}))

	tests := []struct {
		name     string
		inbound  string
		wantSame bool
	}{
		{"generated when absent", "", false},
		{"echoed when supplied", "bot-42", true},
		{"replaced when too long", strings.Repeat("x", 200), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.inbound != "" {
				r.Header.Set("X-Correlation-ID", tc.inbound)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			if seen == "" || w.Header().Get("X-Correlation-ID") != seen {
				t.Fatalf("context id %q does not match header %q", seen, w.Header().Get("X-Correlation-ID"))
			}
			if (seen == tc.inbound) != tc.wantSame {
				t.Fatalf("unexpected id %q for inbound %q", seen, tc.inbound)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := middleware.CorrelationID(middleware.RequestLogger(zap.New(core))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/queue/advance", nil))

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) || fields["path"] != "/api/v1/queue/advance" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if fields["correlation_id"] == "" {
		t.Fatal("expected correlation id in log line")
	}
}
