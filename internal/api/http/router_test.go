package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civic-kit/grievance-service/internal/api/http/handlers"
	"github.com/civic-kit/grievance-service/internal/auth"
	"github.com/civic-kit/grievance-service/internal/bootstrap"
	"github.com/civic-kit/grievance-service/internal/config"
	"github.com/civic-kit/grievance-service/internal/llm"
	"github.com/civic-kit/grievance-service/internal/observability"
	"github.com/civic-kit/grievance-service/internal/service"
)

type testServer struct {
	app      *fiber.App
	services *bootstrap.Services
}

type inlineTrigger struct{ monitoring *service.MonitoringService }

func (t inlineTrigger) RunNow(ctx context.Context) (*service.CycleReport, bool, error) {
	report, err := t.monitoring.RunCycle(ctx)
	return report, true, err
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	hash, err := auth.HashPassword("operator-pass", 4)
	require.NoError(t, err)
	adminHash, err := auth.HashPassword("admin-pass", 4)
	require.NoError(t, err)

	authCfg := config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 5,
		OperatorEmail:         "ops@example.com",
		OperatorPasswordHash:  hash,
		AdminEmail:            "admin@example.com",
		AdminPasswordHash:     adminHash,
	}
	cfg := &config.Config{
		App:        config.AppConfig{Name: "grievance-service", Version: "test"},
		Auth:       authCfg,
		LLM:        config.LLMConfig{SchemaCacheSize: 8},
		Monitoring: config.MonitoringConfig{Workers: 2, ScanLimit: 50, StaleDays: 7, FollowUpDays: 3},
		Community:  config.CommunityConfig{HighVotes: 2, UrgentVotes: 4},
	}
	metrics := observability.NewMetrics()
	services, err := bootstrap.Build(cfg, bootstrap.Options{Completer: llm.Disabled{}, Metrics: metrics})
	require.NoError(t, err)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("grievance-service", "test", nil),
		Complaints:     handlers.NewComplaintsHandler(services.Pipeline, services.Complaints),
		Admin:          handlers.NewAdminHandler(services.Complaints, inlineTrigger{services.Monitoring}),
		Auth:           handlers.NewAuthHandler(services.Auth),
		AuthMiddleware: auth.NewMiddleware(services.Tokens),
		Metrics:        metrics,
	})
	return &testServer{app: app, services: services}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (s *testServer) submit(t *testing.T, description string) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/complaints", map[string]any{
		"description": description,
		"contact":     map[string]string{"email": "citizen@example.org"},
		"location":    map[string]string{"city": "Pune", "pincode": "411001"},
	}, "")
	require.Equal(t, http.StatusCreated, status, body)
	complaint := body["data"].(map[string]any)["complaint"].(map[string]any)
	return complaint["id"].(string)
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	return s.loginAs(t, "ops@example.com", "operator-pass")
}

func (s *testServer) loginAs(t *testing.T, email, password string) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": password,
	}, "")
	require.Equal(t, http.StatusOK, status, body)
	return body["data"].(map[string]any)["access_token"].(string)
}

func TestSubmitAndFetchComplaint(t *testing.T) {
	s := newTestServer(t)
	id := s.submit(t, "Live wire hanging low over the road near the school")

	status, body := s.do(t, http.MethodGet, "/complaints/"+id, nil, "")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "urgent", data["urgency"])
	assert.Equal(t, "open", data["status"])
	assert.Equal(t, "none", data["escalation_level"])
	assert.Contains(t, data, "time_remaining_hours")
	assert.NotContains(t, data, "metadata")

	status, body = s.do(t, http.MethodGet, "/complaints?status=open", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = s.do(t, http.MethodGet, "/complaints/"+id+"/escalations", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["data"])
}

func TestSubmitRejectsInvalidPincode(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodPost, "/complaints", map[string]any{
		"description": "Garbage piling up behind the market",
		"location":    map[string]string{"pincode": "12"},
	}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", body["error"].(map[string]any)["code"])
}

func TestUnknownComplaintAndRoute(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/complaints/does-not-exist", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])

	status, body = s.do(t, http.MethodGet, "/nowhere", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestMalformedComplaintIDIsNotFound(t *testing.T) {
	s := newTestServer(t)
	id := s.submit(t, "Drainage is overflowing onto the street near the market")
	token := s.login(t)

	for _, req := range []struct {
		method string
		path   string
		body   any
		token  string
	}{
		{http.MethodGet, "/complaints/42", nil, ""},
		{http.MethodGet, "/complaints/not-a-uuid/escalations", nil, ""},
		{http.MethodPost, "/complaints/zzzzzzzz-not-valid/upvote", nil, ""},
		{http.MethodGet, "/admin/complaints/12345", nil, token},
		{http.MethodPatch, "/admin/complaints/abc/status", map[string]string{"status": "resolved"}, token},
	} {
		status, body := s.do(t, req.method, req.path, req.body, req.token)
		assert.Equal(t, http.StatusNotFound, status, req.path)
		assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"], req.path)
	}

	status, body := s.do(t, http.MethodGet, "/complaints/"+strings.ToUpper(id), nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, body["data"].(map[string]any)["id"])
}

func TestUpvoteEndpointRaisesUrgency(t *testing.T) {
	s := newTestServer(t)
	id := s.submit(t, "The public notice board in our ward is missing")

	var data map[string]any
	for i := 0; i < 4; i++ {
		status, body := s.do(t, http.MethodPost, "/complaints/"+id+"/upvote", nil, "")
		require.Equal(t, http.StatusOK, status)
		data = body["data"].(map[string]any)
	}
	assert.Equal(t, float64(4), data["upvotes"])
	assert.Equal(t, "urgent", data["urgency"])
}

func TestAdminRoutesRequireOperatorToken(t *testing.T) {
	s := newTestServer(t)
	id := s.submit(t, "Streetlight outside house number 12 has been off for a week")

	status, _ := s.do(t, http.MethodGet, "/admin/complaints/"+id, nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "ops@example.com", "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	token := s.login(t)
	status, body := s.do(t, http.MethodGet, "/admin/complaints/"+id, nil, token)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body["data"], "metadata")
	assert.Contains(t, body["data"], "contact")
}

func TestAdminStatusTransitions(t *testing.T) {
	s := newTestServer(t)
	id := s.submit(t, "Water supply has been irregular in our society for days")
	token := s.login(t)

	status, body := s.do(t, http.MethodPatch, "/admin/complaints/"+id+"/status", map[string]string{"status": "resolved", "note": "pipeline repaired"}, token)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "resolved", body["data"].(map[string]any)["status"])

	status, body = s.do(t, http.MethodPatch, "/admin/complaints/"+id+"/status", map[string]string{"status": "open"}, token)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body["error"].(map[string]any)["code"])

	status, _ = s.do(t, http.MethodPatch, "/admin/complaints/"+id+"/status", map[string]string{"status": "archived"}, token)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAdminMonitoringRunReturnsReport(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodPost, "/admin/monitoring/run", nil, s.login(t))
	assert.Equal(t, http.StatusForbidden, status)

	token := s.loginAs(t, "admin@example.com", "admin-pass")
	status, body := s.do(t, http.MethodPost, "/admin/monitoring/run", nil, token)
	require.Equal(t, http.StatusOK, status, body)
	report := body["data"].(map[string]any)
	assert.Equal(t, float64(0), report["breaching"])
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	s.submit(t, "Potholes all along the main road to the station")
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "pipeline")
}
