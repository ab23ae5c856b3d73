package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"devmarket/internal/apperr"
	"devmarket/internal/model"
)

func TestAuthenticate(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	ctx := context.Background()
	activeID := ts.CreateTestUser(t, "active@example.com", model.RoleProgrammer)

	inactive := &model.User{Email: "inactive@example.com", Role: model.RoleProgrammer, IsActive: false}
	if err := ts.DB.CreateUser(ctx, inactive); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	key, err := ts.DB.CreateAPIKey(ctx, activeID, "ci", nil)
	if err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantError  string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing authorization header"},
		{"no credential", "Bearer", http.StatusUnauthorized, "invalid authorization header format"},
		{"unsupported scheme", "Basic abc", http.StatusUnauthorized, "unsupported authorization type"},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized, "invalid or expired token"},
		{"unknown user", "Bearer " + ts.GenerateTestToken(t, 9999, model.RoleClient), http.StatusUnauthorized, "unknown account"},
		{"inactive user", "Bearer " + ts.GenerateTestToken(t, inactive.ID, model.RoleProgrammer), http.StatusUnauthorized, "account is inactive"},
		{"bad api key", "ApiKey nope", http.StatusUnauthorized, "invalid or expired API key"},
		{"valid jwt", "Bearer " + ts.GenerateTestToken(t, activeID, model.RoleProgrammer), http.StatusOK, ""},
		{"valid api key", "ApiKey " + key.Key, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			rec, req := MakeRequest(t, http.MethodGet, "/api/notifications", nil, headers)
			ts.handler.ServeHTTP(rec, req)

			if tt.wantError != "" {
				AssertError(t, rec, tt.wantStatus, tt.wantError, "unauthorized")
				return
			}
			AssertStatusCode(t, rec.Code, tt.wantStatus)
		})
	}
}

func TestAuthenticate_RoleComesFromAccount(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	// A programmer presenting a token that claims the client role still acts as a programmer.
	devID := ts.CreateTestUser(t, "dev@example.com", model.RoleProgrammer)
	token := ts.GenerateTestToken(t, devID, model.RoleClient)

	rec := ts.Do(t, http.MethodPost, "/api/projects", map[string]any{"title": "Site"}, token)
	AssertError(t, rec, http.StatusForbidden, "", "forbidden")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindForbidden, http.StatusForbidden},
		{apperr.KindInvalidTransition, http.StatusConflict},
		{apperr.KindConflict, http.StatusConflict},
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindUnauthorized, http.StatusUnauthorized},
		{apperr.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := statusFor(tt.kind); got != tt.want {
				t.Errorf("statusFor(%q) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}

func TestRespondAppError_HidesInternalMessage(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	rec, req := MakeRequest(t, http.MethodGet, "/", nil, nil)
	ts.respondAppError(rec, req, context.DeadlineExceeded)

	AssertError(t, rec, http.StatusInternalServerError, "internal server error", "internal_error")
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter(2)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow(ctx, "ip:1"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if ok, _ := l.Allow(ctx, "ip:1"); ok {
		t.Error("third request within the burst should be rejected")
	}
	if ok, _ := l.Allow(ctx, "ip:2"); !ok {
		t.Error("a different key has its own bucket")
	}

	// 2 per minute refills one token every 30s.
	now = now.Add(30 * time.Second)
	if ok, _ := l.Allow(ctx, "ip:1"); !ok {
		t.Error("expected a refilled token after 30s")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	ts := newTestServerWithLimiter(t, NewMemoryLimiter(2))
	defer ts.Close()

	userID := ts.CreateTestUser(t, "dev@example.com", model.RoleProgrammer)
	token := ts.GenerateTestToken(t, userID, model.RoleProgrammer)

	for i := 0; i < 2; i++ {
		rec := ts.Do(t, http.MethodGet, "/api/notifications", nil, token)
		AssertStatusCode(t, rec.Code, http.StatusOK)
	}
	rec := ts.Do(t, http.MethodGet, "/api/notifications", nil, token)
	AssertError(t, rec, http.StatusTooManyRequests, "rate limit exceeded", "rate_limit_exceeded")
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, context.DeadlineExceeded
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	ts := newTestServerWithLimiter(t, failingLimiter{})
	defer ts.Close()

	userID := ts.CreateTestUser(t, "dev@example.com", model.RoleProgrammer)
	rec := ts.Do(t, http.MethodGet, "/api/notifications", nil, ts.GenerateTestToken(t, userID, model.RoleProgrammer))
	AssertStatusCode(t, rec.Code, http.StatusOK)
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	if got := rateLimitKey(req); got != "ip:10.0.0.7" {
		t.Errorf("rateLimitKey() = %q, want %q", got, "ip:10.0.0.7")
	}

	req = req.WithContext(context.WithValue(req.Context(), ActorKey, model.Actor{ID: 42}))
	if got := rateLimitKey(req); got != "user:42" {
		t.Errorf("rateLimitKey() = %q, want %q", got, "user:42")
	}
}

func TestRequestLogger_ObservesRoutePattern(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	rec := ts.Do(t, http.MethodGet, "/api/projects/12345", nil, "")
	AssertStatusCode(t, rec.Code, http.StatusUnauthorized)

	rec = ts.Do(t, http.MethodGet, "/metrics", nil, "")
	AssertStatusCode(t, rec.Code, http.StatusOK)
	body := rec.Body.String()
	if !strings.Contains(body, `route="/api/projects/{id}"`) {
		t.Errorf("expected latency series labelled with the route pattern, got:\n%s", body)
	}

	if n := testutil.CollectAndCount(ts.metrics.HTTPRequestDuration); n == 0 {
		t.Error("expected at least one latency series")
	}
}
