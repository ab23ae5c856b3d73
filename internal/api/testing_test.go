package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"devmarket/internal/activity"
	"devmarket/internal/auth"
	"devmarket/internal/config"
	"devmarket/internal/db"
	"devmarket/internal/filestore"
	"devmarket/internal/lifecycle"
	"devmarket/internal/metrics"
	"devmarket/internal/model"
	"devmarket/internal/notify"
	"devmarket/internal/phasedef"
)

// syncNotifier stores notifications inline so tests can read them back at once.
type syncNotifier struct {
	transport *notify.DBTransport
}

func (n syncNotifier) Notify(ctx context.Context, userID int64, typ, title, message string, projectID *int64) {
	n.transport.Send(ctx, model.Notification{
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		ProjectID: projectID,
	})
}

// TestServer holds test server dependencies
type TestServer struct {
	*Server
	DB       *db.DB
	Registry *prometheus.Registry
	handler  http.Handler
}

// NewTestServer creates a new test server with in-memory SQLite database
func NewTestServer(t *testing.T) *TestServer {
	return newTestServerWithLimiter(t, nil)
}

func newTestServerWithLimiter(t *testing.T, limiter Limiter) *TestServer {
	t.Helper()

	logger := zaptest.NewLogger(t)

	database, err := db.New(db.Config{
		Driver:         "sqlite",
		DBPath:         ":memory:",
		MigrationsPath: "../db/migrations",
	}, logger)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	templates, err := phasedef.LoadTemplates()
	if err != nil {
		t.Fatalf("Failed to load templates: %v", err)
	}
	files, err := filestore.NewLocal(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}

	testCfg := &config.Config{
		Env:                "test",
		JWTSecret:          "test-secret-key",
		JWTExpiryHours:     24,
		RateLimitRequests:  1000,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		UploadMaxMB:        1,
		DBQueryTimeout:     5 * time.Second,
		ServiceName:        "devmarket",
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	recorder := activity.NewRecorder(database, logger)
	deps := lifecycle.Deps{
		Recorder: recorder,
		Notifier: syncNotifier{transport: notify.NewDBTransport(database)},
		Metrics:  m,
		Logger:   logger,
	}

	server := NewServer(database, testCfg, logger, Services{
		Projects: lifecycle.NewProjectEngine(database, deps),
		Phases:   lifecycle.NewPhaseEngine(database, phasedef.NewSource(database, templates, logger), files, deps),
		Activity: recorder,
		Metrics:  m,
		Gatherer: registry,
		Limiter:  limiter,
	})

	return &TestServer{
		Server:   server,
		DB:       database,
		Registry: registry,
		handler:  server.Router(),
	}
}

// Close cleans up test server resources
func (ts *TestServer) Close() {
	if ts.DB != nil {
		ts.DB.Close()
	}
}

// CreateTestUser creates an active user for testing and returns the user ID
func (ts *TestServer) CreateTestUser(t *testing.T, email string, role model.Role) int64 {
	t.Helper()

	u := &model.User{Email: email, Role: role, IsActive: true}
	if err := ts.DB.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return u.ID
}

// GenerateTestToken generates a JWT token for testing
func (ts *TestServer) GenerateTestToken(t *testing.T, userID int64, role model.Role) string {
	t.Helper()

	token, err := auth.GenerateToken(userID, role, ts.config.JWTSecret, ts.config.JWTExpiry())
	if err != nil {
		t.Fatalf("Failed to generate test token: %v", err)
	}
	return token
}

// Do sends a request through the full router. An empty token sends no credential.
func (ts *TestServer) Do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	headers := map[string]string{}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	rec, req := MakeRequest(t, method, path, body, headers)
	ts.handler.ServeHTTP(rec, req)
	return rec
}

// MakeRequest is a helper to make HTTP requests in tests
// Returns both the ResponseRecorder and the Request for testing
func MakeRequest(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, *http.Request) {
	t.Helper()

	var reqBody []byte
	switch b := body.(type) {
	case nil:
	case string:
		reqBody = []byte(b)
	default:
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return httptest.NewRecorder(), req
}

// MakeAuthRequest creates an HTTP request carrying the resolved actor and optional chi URL params
func (ts *TestServer) MakeAuthRequest(t *testing.T, method, path string, body any, actor model.Actor, urlParams map[string]string) (*httptest.ResponseRecorder, *http.Request) {
	t.Helper()

	rec, req := MakeRequest(t, method, path, body, nil)

	ctx := context.WithValue(req.Context(), ActorKey, actor)

	if len(urlParams) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range urlParams {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}

	return rec, req.WithContext(ctx)
}

// DecodeJSON decodes a JSON response into the provided value
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()

	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}

// AssertStatusCode checks if the response status code matches expected
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()

	if got != want {
		t.Errorf("Status code mismatch: got %d, want %d", got, want)
	}
}

// AssertError checks if the error response matches expected error and code
func AssertError(t *testing.T, rec *httptest.ResponseRecorder, wantCode int, wantErrorContains, wantCodeContains string) {
	t.Helper()

	AssertStatusCode(t, rec.Code, wantCode)

	var errResp ErrorResponse
	DecodeJSON(t, rec, &errResp)

	if wantErrorContains != "" && !strings.Contains(errResp.Error, wantErrorContains) {
		t.Errorf("Error message %q does not contain %q", errResp.Error, wantErrorContains)
	}

	if wantCodeContains != "" && !strings.Contains(errResp.Code, wantCodeContains) {
		t.Errorf("Error code %q does not contain %q", errResp.Code, wantCodeContains)
	}
}
