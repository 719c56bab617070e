package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consentry/consentry/internal/api"
	"github.com/consentry/consentry/internal/api/models"
	"github.com/consentry/consentry/internal/auth"
	"github.com/consentry/consentry/internal/cmpapi"
	"github.com/consentry/consentry/internal/consent"
	"github.com/consentry/consentry/internal/events"
	"github.com/consentry/consentry/internal/gvl"
	"github.com/consentry/consentry/internal/storage"
)

// fixedLists serves a static vendor list.
type fixedLists struct {
	list *gvl.Snapshot
}

func (f fixedLists) Snapshot(context.Context) *gvl.Snapshot { return f.list }

func testVendorList() *gvl.Snapshot {
	list := gvl.NewSnapshot()
	list.VendorListVersion = 42
	list.TCFPolicyVersion = 4
	list.Purposes[1] = &gvl.Purpose{ID: 1, Name: "Store and/or access information on a device"}
	list.Purposes[2] = &gvl.Purpose{ID: 2, Name: "Use limited data to select advertising"}
	list.Vendors[10] = &gvl.Vendor{ID: 10, Name: "Acme Ads", Purposes: []int{1, 2}, LegIntPurposes: []int{2}}
	list.Vendors[20] = &gvl.Vendor{ID: 20, Name: "Beacon Metrics", Purposes: []int{1}}
	return list
}

func testSiteConfig() consent.SiteConfig {
	return consent.SiteConfig{
		CmpID:            300,
		CmpVersion:       1,
		ConsentScreen:    1,
		GVLBaseURL:       "https://vendor-list.consensu.test/v3",
		EnabledVendorIDs: []int{10, 20},
		Language:         "EN",
	}
}

func testVerifier() *auth.Verifier {
	return auth.NewVerifier(auth.VerifierConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://admin.consentry.test",
		Audience:   "consentry-api",
	})
}

type testEnv struct {
	router   http.Handler
	registry *consent.Registry
	configs  *consent.ConfigStore
	verifier *auth.Verifier
}

func newTestEnv() *testEnv {
	logger := zerolog.New(io.Discard)
	configs := consent.NewConfigStore(testSiteConfig())
	lists := fixedLists{list: testVendorList()}
	registry := consent.NewRegistry(consent.RegistryConfig{
		Configs:   configs,
		Store:     storage.NewMemoryStore(),
		Lists:     lists,
		Publisher: events.NoopPublisher{},
		Logger:    logger,
	})
	verifier := testVerifier()

	router := api.NewRouter(api.RouterConfig{
		Version:   "test",
		BuildTime: "2026-01-01T00:00:00Z",
		Logger:    logger,
		Verifier:  verifier,
		Registry:  registry,
		Configs:   configs,
		Lists:     lists,
	})
	return &testEnv{router: router, registry: registry, configs: configs, verifier: verifier}
}

// addAuthHeader adds a valid admin bearer token to the request.
func (e *testEnv) addAuthHeader(t *testing.T, req *http.Request) {
	t.Helper()
	token, _, err := e.verifier.Mint("test-admin", auth.ScopeConfigWrite)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
}

// createSession creates a session over HTTP and returns its id.
func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()

	body, _ := json.Marshal(models.CreateSessionRequest{Scope: "site-a:visitor-1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var session models.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	require.NotEmpty(t, session.SessionID)
	return session.SessionID
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.NotEmpty(t, health.Time)
}

func TestRouter_ReadinessCheck(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_SystemStatus_RequiresAuth(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	env.addAuthHeader(t, req)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	err := json.Unmarshal(w.Body.Bytes(), &status)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, status.Status)
	assert.NotEmpty(t, status.Providers)
}

func TestRouter_CreateSession(t *testing.T) {
	env := newTestEnv()

	body, _ := json.Marshal(models.CreateSessionRequest{Scope: "site-a:visitor-1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get("Location"))

	var session models.SessionResponse
	err := json.Unmarshal(w.Body.Bytes(), &session)
	require.NoError(t, err)

	assert.Contains(t, session.SessionID, "ses_")
	assert.Equal(t, "site-a:visitor-1", session.Scope)
	assert.Equal(t, 1, env.registry.Len())
}

func TestRouter_CreateSession_MissingScope(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var problem models.Problem
	err := json.Unmarshal(w.Body.Bytes(), &problem)
	require.NoError(t, err)
	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
	assert.NotEmpty(t, problem.TraceID)
}

func TestRouter_CreateSession_Disabled(t *testing.T) {
	env := newTestEnv()
	env.configs.Replace(consent.SiteConfig{CmpID: 300, CmpVersion: 1})

	body, _ := json.Marshal(models.CreateSessionRequest{Scope: "site-a:visitor-1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_Ping(t *testing.T) {
	env := newTestEnv()
	sessionID := env.createSession(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+sessionID+"/ping", http.NoBody)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var ping cmpapi.Ping
	err := json.Unmarshal(w.Body.Bytes(), &ping)
	require.NoError(t, err)

	assert.True(t, ping.GDPRApplies)
	assert.True(t, ping.CMPLoaded)
	assert.Equal(t, 300, ping.CMPID)
}

func TestRouter_TCData(t *testing.T) {
	env := newTestEnv()
	sessionID := env.createSession(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+sessionID+"/tcdata", http.NoBody)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var data cmpapi.TCData
	err := json.Unmarshal(w.Body.Bytes(), &data)
	require.NoError(t, err)

	assert.True(t, data.GDPRApplies)
	assert.Equal(t, cmpapi.EventTCLoaded, data.EventStatus)
}

func TestRouter_TCData_UnknownSession(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/ses_doesnotexist/tcdata", http.NoBody)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestRouter_UIAction_SaveFlow(t *testing.T) {
	env := newTestEnv()
	sessionID := env.createSession(t)

	shown, _ := json.Marshal(models.UIActionRequest{Action: models.UIActionShown})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sessionID+"/ui", bytes.NewReader(shown))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var data cmpapi.TCData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	assert.Equal(t, cmpapi.EventCMPUIShown, data.EventStatus)

	saved, _ := json.Marshal(models.UIActionRequest{
		Action: models.UIActionSaved,
		Selection: &models.ConsentSelection{
			Purposes:       []int{1},
			VendorConsents: []int{10},
		},
	})
	req = httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sessionID+"/ui", bytes.NewReader(saved))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	assert.Equal(t, cmpapi.EventUserActionComplete, data.EventStatus)
	assert.NotEmpty(t, data.TCString)
	assert.True(t, data.Purpose.Consents[1])
	assert.True(t, data.Vendor.Consents[10])
}

func TestRouter_UIAction_SavedWithoutSelection(t *testing.T) {
	env := newTestEnv()
	sessionID := env.createSession(t)

	body, _ := json.Marshal(models.UIActionRequest{Action: models.UIActionSaved})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sessionID+"/ui", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_UIAction_UnknownAction(t *testing.T) {
	env := newTestEnv()
	sessionID := env.createSession(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sessionID+"/ui",
		bytes.NewReader([]byte(`{"action":"dance"}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_RemoveListener_NotFound(t *testing.T) {
	env := newTestEnv()
	sessionID := env.createSession(t)

	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+sessionID+"/events/lst_unknown", http.NoBody)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RemoveListener(t *testing.T) {
	env := newTestEnv()
	sessionID := env.createSession(t)

	session, err := env.registry.Get(sessionID)
	require.NoError(t, err)
	listenerID := session.Orchestrator.API().AddEventListener(func(*cmpapi.TCData, bool) {})

	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+sessionID+"/events/"+listenerID, http.NoBody)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_AdminConfig_RequiresAuth(t *testing.T) {
	env := newTestEnv()

	body, _ := json.Marshal(models.SiteConfigRequest{CmpID: 300, CmpVersion: 2})
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/config", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_AdminConfig_Replace(t *testing.T) {
	env := newTestEnv()

	body, _ := json.Marshal(models.SiteConfigRequest{
		CmpID:            300,
		CmpVersion:       2,
		GVLBaseURL:       "https://vendor-list.consensu.test/v3",
		EnabledVendorIDs: []int{10},
	})
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/config", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	env.addAuthHeader(t, req)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.SiteConfigResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.True(t, resp.Enabled)
	assert.Equal(t, 2, resp.CmpVersion)

	assert.Equal(t, 2, env.configs.Current().CmpVersion)
}

func TestRouter_AdminConfig_RateLimitedPerSubject(t *testing.T) {
	env := newTestEnv()

	body, _ := json.Marshal(models.SiteConfigRequest{
		CmpID:            300,
		CmpVersion:       2,
		GVLBaseURL:       "https://vendor-list.consensu.test/v3",
		EnabledVendorIDs: []int{10},
	})

	send := func() int {
		req := httptest.NewRequest(http.MethodPut, "/v1/admin/config", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		env.addAuthHeader(t, req)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, send(), "request %d should be allowed", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestRouter_AdminConfig_ValidationError(t *testing.T) {
	env := newTestEnv()

	body, _ := json.Marshal(models.SiteConfigRequest{CmpID: 0, CmpVersion: 0})
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/config", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	env.addAuthHeader(t, req)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var problem models.Problem
	err := json.Unmarshal(w.Body.Bytes(), &problem)
	require.NoError(t, err)
	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
	assert.Len(t, problem.Errors, 2)
}

func TestRouter_AdminConfig_DisableFeature(t *testing.T) {
	env := newTestEnv()

	// No GVL URL and no vendors turns the feature off
	body, _ := json.Marshal(models.SiteConfigRequest{CmpID: 300, CmpVersion: 2})
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/config", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	env.addAuthHeader(t, req)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.SiteConfigResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Enabled)
}

func TestRouter_RequestID_Generated(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	requestID := w.Header().Get("X-Request-Id")
	assert.NotEmpty(t, requestID)
	assert.Contains(t, requestID, "req_")
}

func TestRouter_RequestID_Preserved(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Request-Id", "custom_request_id")
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, "custom_request_id", w.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/v1/nonexistent", http.NoBody)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
