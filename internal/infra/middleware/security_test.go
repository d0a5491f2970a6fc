package middleware

import (
	"bytes"
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/switches", nil))

	expected := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
	}
	for header, want := range expected {
		if got := w.Header().Get(header); got != want {
			t.Errorf("Header %s = %q, want %q", header, got, want)
		}
	}
	if hsts := w.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("HSTS header should not be set without TLS, got: %q", hsts)
	}
}

func TestSecurityHeadersHSTSWithTLS(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.TLS = &tls.ConnectionState{}
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, req)

	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}

func send(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/api/v1/switches", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimitAllowsBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(ctx, 60, 10)(okHandler())

	for i := 0; i < 10; i++ {
		if w := send(h, "192.168.1.1:12345"); w.Code != http.StatusOK {
			t.Errorf("request %d: status %d", i+1, w.Code)
		}
	}
}

func TestRateLimitBlocksExcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(ctx, 6, 3)(okHandler())

	ok, blocked := 0, 0
	var last *httptest.ResponseRecorder
	for i := 0; i < 10; i++ {
		w := send(h, "192.168.1.1:12345")
		switch w.Code {
		case http.StatusOK:
			ok++
		case http.StatusTooManyRequests:
			blocked++
			last = w
		}
	}
	if ok != 3 || blocked != 7 {
		t.Fatalf("ok=%d blocked=%d, want 3/7", ok, blocked)
	}
	if last.Header().Get("Retry-After") != "11" {
		t.Errorf("Retry-After = %q, want 11", last.Header().Get("Retry-After"))
	}
	if !strings.Contains(last.Body.String(), `"RATE_LIMIT"`) {
		t.Errorf("body = %s", last.Body.String())
	}
}

func TestRateLimitSeparatesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(ctx, 6, 1)(okHandler())

	if w := send(h, "10.0.0.1:1"); w.Code != http.StatusOK {
		t.Fatalf("client 1 first request: %d", w.Code)
	}
	if w := send(h, "10.0.0.1:2"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("client 1 second request: %d", w.Code)
	}
	if w := send(h, "10.0.0.2:1"); w.Code != http.StatusOK {
		t.Fatalf("client 2 should have its own bucket: %d", w.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimit(context.Background(), 0, 0)(okHandler())
	for i := 0; i < 50; i++ {
		if w := send(h, "10.0.0.1:1"); w.Code != http.StatusOK {
			t.Fatalf("request %d limited with limiting disabled", i)
		}
	}
}

func TestRateLimitTokenRefill(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// 600/min is one token every 100ms.
	h := RateLimit(ctx, 600, 1)(okHandler())

	if w := send(h, "10.0.0.1:1"); w.Code != http.StatusOK {
		t.Fatal("first request should pass")
	}
	if w := send(h, "10.0.0.1:1"); w.Code != http.StatusTooManyRequests {
		t.Fatal("second request should be limited")
	}
	time.Sleep(150 * time.Millisecond)
	if w := send(h, "10.0.0.1:1"); w.Code != http.StatusOK {
		t.Errorf("request after refill: %d", w.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		trusted []string
		want    string
	}{
		{"direct", "203.0.113.5:4000", nil, nil, "203.0.113.5"},
		{"ipv6", "[::1]:4000", nil, nil, "::1"},
		{"spoofed xff ignored", "203.0.113.5:4000", map[string]string{"X-Forwarded-For": "1.2.3.4"}, nil, "203.0.113.5"},
		{"untrusted peer", "203.0.113.5:4000", map[string]string{"X-Forwarded-For": "1.2.3.4"}, []string{"10.0.0.1"}, "203.0.113.5"},
		{"trusted xff chain", "10.0.0.1:4000", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.9"}, []string{"10.0.0.1"}, "1.2.3.4"},
		{"trusted real ip", "10.0.0.1:4000", map[string]string{"X-Real-IP": " 5.6.7.8 "}, []string{"10.0.0.1"}, "5.6.7.8"},
		{"trusted no headers", "10.0.0.1:4000", nil, []string{"10.0.0.1"}, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req, tt.trusted); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := RequestLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/switches/wifi/toggle", nil))

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "status=502") {
		t.Errorf("log = %s", out)
	}
	if !strings.Contains(out, "path=/api/v1/switches/wifi/toggle") {
		t.Errorf("log = %s", out)
	}
}
