package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/config"
	featuredomain "github.com/smallbiznis/warrantyhub/internal/feature/domain"
	"github.com/smallbiznis/warrantyhub/internal/migration"
	"github.com/smallbiznis/warrantyhub/internal/observability"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	"github.com/smallbiznis/warrantyhub/internal/server"
	"github.com/smallbiznis/warrantyhub/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const adminToken = "e2e-admin-token"

type testEnv struct {
	app         *fx.App
	db          *gorm.DB
	features    featuredomain.Service
	seats       orgdomain.SeatReserver
	invalidator orgdomain.FeatureInvalidator
	baseURL     string
	httpSrv     *httptest.Server
	dir         string
}

var (
	env     *testEnv
	tenants atomic.Int64
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	dir, err := os.MkdirTemp("", "warrantyhub-e2e")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create temp dir:", err)
		os.Exit(1)
	}
	setDefaultEnv(filepath.Join(dir, "e2e.db"))

	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		_ = os.RemoveAll(dir)
		os.Exit(1)
	}
	env.dir = dir

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_SignupLoginAndMe(t *testing.T) {
	tenant := signup(t)

	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/org/login", map[string]any{
		"email":    tenant.Email,
		"password": "password123",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for login, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/org/login", map[string]any{
		"email":    tenant.Email,
		"password": "wrong-password",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for bad password, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/org/me", nil, tenant.auth())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for me, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/check-subdomain/"+tenant.Slug, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for slug check, got %d: %s", resp.StatusCode, string(body))
	}
	var check struct {
		Data struct {
			Available bool `json:"available"`
		} `json:"data"`
	}
	decode(t, body, &check)
	if check.Data.Available {
		t.Fatalf("expected slug %s to be taken", tenant.Slug)
	}
}

func TestE2E_DeviceCoverageAndPublicLookup(t *testing.T) {
	tenant := signup(t)
	companyID := createCompany(t, tenant, "Globex")
	serial := fmt.Sprintf("SN-%d", time.Now().UnixNano())
	deviceID := createDevice(t, tenant, companyID, serial, http.StatusCreated)

	createDevice(t, tenant, companyID, serial, http.StatusConflict)

	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/api/org/devices/"+deviceID+"/coverage", nil, tenant.auth())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for coverage, got %d: %s", resp.StatusCode, string(body))
	}
	var coverage struct {
		Data struct {
			Verdict string `json:"verdict"`
		} `json:"data"`
	}
	decode(t, body, &coverage)
	if coverage.Data.Verdict != "active" {
		t.Fatalf("expected active coverage, got %q", coverage.Data.Verdict)
	}

	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/public/"+tenant.Slug+"/warranty?q="+serial, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for public lookup, got %d: %s", resp.StatusCode, string(body))
	}
	var lookup struct {
		Data struct {
			CompanyName string `json:"company_name"`
		} `json:"data"`
	}
	decode(t, body, &lookup)
	if lookup.Data.CompanyName != "Globex" {
		t.Fatalf("expected company Globex, got %q", lookup.Data.CompanyName)
	}

	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/public/"+tenant.Slug+"/warranty?q=UNKNOWN-1", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown serial, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_TenantIsolation(t *testing.T) {
	owner := signup(t)
	other := signup(t)
	companyID := createCompany(t, owner, "Initech")
	deviceID := createDevice(t, owner, companyID, fmt.Sprintf("ISO-%d", time.Now().UnixNano()), http.StatusCreated)

	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/api/org/devices/"+deviceID, nil, other.auth())
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404 across tenants, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_DeviceLimitFromOverride(t *testing.T) {
	tenant := signup(t)
	companyID := createCompany(t, tenant, "Hooli")

	resp, body := doJSON(t, http.MethodPut, env.baseURL+"/api/admin/organizations/"+tenant.OrgID+"/feature-overrides",
		map[string]any{"max_devices": 1},
		map[string]string{"X-Admin-Token": adminToken},
	)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for overrides, got %d: %s", resp.StatusCode, string(body))
	}

	createDevice(t, tenant, companyID, fmt.Sprintf("LIM-A-%d", time.Now().UnixNano()), http.StatusCreated)
	createDevice(t, tenant, companyID, fmt.Sprintf("LIM-B-%d", time.Now().UnixNano()), http.StatusPaymentRequired)

	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/org/limits/devices", nil, tenant.auth())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for limit, got %d: %s", resp.StatusCode, string(body))
	}
	var limit struct {
		Data struct {
			Allowed bool  `json:"allowed"`
			Current int64 `json:"current"`
			Limit   int64 `json:"limit"`
		} `json:"data"`
	}
	decode(t, body, &limit)
	if limit.Data.Allowed || limit.Data.Current != 1 || limit.Data.Limit != 1 {
		t.Fatalf("unexpected limit result %+v", limit.Data)
	}
}

func TestE2E_FeatureServiceSharedAcrossBindings(t *testing.T) {
	if env.seats == nil || env.invalidator == nil {
		t.Fatalf("seat reserver and feature invalidator must be provided")
	}
	if any(env.seats) != any(env.features) {
		t.Fatalf("seat reserver is not the feature service instance")
	}
	if any(env.invalidator) != any(env.features) {
		t.Fatalf("feature invalidator is not the feature service instance")
	}
}

func TestE2E_UserLimitEnforced(t *testing.T) {
	tenant := signup(t)

	// plan_free allows two users and the owner already holds one.
	addUser(t, tenant, "Staff One", http.StatusCreated)
	addUser(t, tenant, "Staff Two", http.StatusPaymentRequired)

	limit := getLimit(t, tenant, "users")
	if limit.Allowed || limit.Current != 2 || limit.Limit != 2 {
		t.Fatalf("unexpected user limit result %+v", limit)
	}
}

func TestE2E_OverrideVisibleWithWarmCache(t *testing.T) {
	tenant := signup(t)

	before := getLimit(t, tenant, "devices")
	if before.Limit == 3 {
		t.Fatalf("free plan device limit unexpectedly equals the override")
	}

	resp, body := doJSON(t, http.MethodPut, env.baseURL+"/api/admin/organizations/"+tenant.OrgID+"/feature-overrides",
		map[string]any{"max_devices": 3},
		map[string]string{"X-Admin-Token": adminToken},
	)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for overrides, got %d: %s", resp.StatusCode, string(body))
	}

	after := getLimit(t, tenant, "devices")
	if after.Limit != 3 {
		t.Fatalf("expected device limit 3 right after override, got %d", after.Limit)
	}
}

func TestE2E_DashboardAndSupportChat(t *testing.T) {
	tenant := signup(t)
	companyID := createCompany(t, tenant, "Umbrella")
	createDevice(t, tenant, companyID, fmt.Sprintf("DASH-%d", time.Now().UnixNano()), http.StatusCreated)

	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/api/org/dashboard", nil, tenant.auth())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for dashboard, got %d: %s", resp.StatusCode, string(body))
	}
	var stats struct {
		Data struct {
			CompaniesCount   int64 `json:"companies_count"`
			UsersCount       int64 `json:"users_count"`
			DevicesCount     int64 `json:"devices_count"`
			ActiveWarranties int64 `json:"active_warranties"`
		} `json:"data"`
	}
	decode(t, body, &stats)
	if stats.Data.CompaniesCount != 1 || stats.Data.UsersCount != 1 || stats.Data.DevicesCount != 1 || stats.Data.ActiveWarranties != 1 {
		t.Fatalf("unexpected dashboard stats %+v", stats.Data)
	}

	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/org/support/chats", nil, tenant.auth())
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected status 403 for support chat on free plan, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodPut, env.baseURL+"/api/admin/organizations/"+tenant.OrgID+"/feature-overrides",
		map[string]any{"ai_support_bot": true},
		map[string]string{"X-Admin-Token": adminToken},
	)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for overrides, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/org/support/chats", nil, tenant.auth())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201 for support chat, got %d: %s", resp.StatusCode, string(body))
	}
	var chat struct {
		Data struct {
			Chats int64 `json:"ai_chats_this_month"`
		} `json:"data"`
	}
	decode(t, body, &chat)
	if chat.Data.Chats != 1 {
		t.Fatalf("expected 1 chat this month, got %d", chat.Data.Chats)
	}
}

type limitResult struct {
	Allowed bool  `json:"allowed"`
	Current int64 `json:"current"`
	Limit   int64 `json:"limit"`
}

func getLimit(t *testing.T, tn tenant, kind string) limitResult {
	t.Helper()

	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/api/org/limits/"+kind, nil, tn.auth())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for %s limit, got %d: %s", kind, resp.StatusCode, string(body))
	}
	var out struct {
		Data limitResult `json:"data"`
	}
	decode(t, body, &out)
	return out.Data
}

func addUser(t *testing.T, tn tenant, name string, wantStatus int) {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/org/users", map[string]any{
		"name":     name,
		"email":    fmt.Sprintf("user%d-%d@example.test", tenants.Add(1), time.Now().UnixNano()),
		"password": "password123",
		"role":     "staff",
	}, tn.auth())
	if resp.StatusCode != wantStatus {
		t.Fatalf("expected status %d for user, got %d: %s", wantStatus, resp.StatusCode, string(body))
	}
}

func startEnv() (*testEnv, error) {
	var (
		srv         *server.Server
		dbConn      *gorm.DB
		features    featuredomain.Service
		seats       orgdomain.SeatReserver
		invalidator orgdomain.FeatureInvalidator
	)

	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		fx.Provide(func() (*snowflake.Node, error) {
			return snowflake.NewNode(1)
		}),
		server.DomainModules,
		migration.Module,
		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Populate(&srv, &dbConn, &features, &seats, &invalidator),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:         app,
		db:          dbConn,
		features:    features,
		seats:       seats,
		invalidator: invalidator,
		baseURL:     httpSrv.URL,
		httpSrv:     httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
	if e.dir != "" {
		_ = os.RemoveAll(e.dir)
	}
}

func setDefaultEnv(dbPath string) {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("DATABASE_TYPE", "sqlite")
	setEnvIfEmpty("DATABASE_NAME", dbPath)
	setEnvIfEmpty("AUTH_JWT_SECRET", "e2e-secret")
	setEnvIfEmpty("ADMIN_API_TOKEN", adminToken)
	setEnvIfEmpty("PUBLIC_LOOKUP_RATE", "1000")
	setEnvIfEmpty("LOG_LEVEL", "error")
}

func setEnvIfEmpty(key, value string) {
	if os.Getenv(key) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

type tenant struct {
	OrgID string
	Slug  string
	Email string
	Token string
}

func (t tenant) auth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + t.Token}
}

func signup(t *testing.T) tenant {
	t.Helper()

	n := tenants.Add(1)
	email := fmt.Sprintf("owner%d-%d@example.test", n, time.Now().UnixNano())
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/signup", map[string]any{
		"organization_name": fmt.Sprintf("E2E Tenant %d %d", n, time.Now().UnixNano()),
		"owner_name":        "Owner",
		"owner_email":       email,
		"owner_password":    "password123",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201 for signup, got %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Data struct {
			Organization struct {
				ID   string `json:"id"`
				Slug string `json:"slug"`
			} `json:"organization"`
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	decode(t, body, &out)
	if out.Data.AccessToken == "" || out.Data.Organization.Slug == "" {
		t.Fatalf("signup response missing token or slug: %s", string(body))
	}
	return tenant{
		OrgID: out.Data.Organization.ID,
		Slug:  out.Data.Organization.Slug,
		Email: email,
		Token: out.Data.AccessToken,
	}
}

func createCompany(t *testing.T, tn tenant, name string) string {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/org/companies", map[string]any{"name": name}, tn.auth())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201 for company, got %d: %s", resp.StatusCode, string(body))
	}
	return dataID(t, body)
}

func createDevice(t *testing.T, tn tenant, companyID, serial string, wantStatus int) string {
	t.Helper()

	today := time.Now().UTC()
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/org/devices", map[string]any{
		"company_id":        companyID,
		"device_type":       "laptop",
		"brand":             "Dell",
		"model":             "Latitude 7440",
		"serial_number":     serial,
		"purchase_date":     today.AddDate(0, -2, 0).Format("2006-01-02"),
		"warranty_end_date": today.AddDate(1, 0, 0).Format("2006-01-02"),
	}, tn.auth())
	if resp.StatusCode != wantStatus {
		t.Fatalf("expected status %d for device, got %d: %s", wantStatus, resp.StatusCode, string(body))
	}
	if wantStatus != http.StatusCreated {
		return ""
	}
	return dataID(t, body)
}

func dataID(t *testing.T, body []byte) string {
	t.Helper()

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	decode(t, body, &out)
	if out.Data.ID == "" {
		t.Fatalf("response missing id: %s", string(body))
	}
	return out.Data.ID
}

func decode(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode response: %v: %s", err, string(body))
	}
}

func doJSON(t *testing.T, method, reqURL string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, reqURL, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}
