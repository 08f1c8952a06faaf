package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	assetdomain "github.com/smallbiznis/warrantyhub/internal/asset/domain"
	"github.com/smallbiznis/warrantyhub/internal/auth/token"
	"github.com/smallbiznis/warrantyhub/internal/authorization"
	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/config"
	"github.com/smallbiznis/warrantyhub/internal/coverage"
	featuredomain "github.com/smallbiznis/warrantyhub/internal/feature/domain"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
	"github.com/smallbiznis/warrantyhub/internal/ratelimit"
	signupdomain "github.com/smallbiznis/warrantyhub/internal/signup/domain"
	usagedomain "github.com/smallbiznis/warrantyhub/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testOrgID  = snowflake.ID(1001)
	testUserID = snowflake.ID(2002)
)

type fakeSignupService struct {
	signupdomain.Service
	created []signupdomain.Request
}

func (f *fakeSignupService) CreateOrganization(_ context.Context, req signupdomain.Request) (*signupdomain.Result, error) {
	f.created = append(f.created, req)
	return &signupdomain.Result{
		Organization: &orgdomain.Organization{ID: testOrgID, Name: req.Name, Slug: "acme"},
		Owner:        &orgdomain.OrgUser{ID: testUserID, OrgID: testOrgID, Email: req.OwnerEmail, Role: orgdomain.RoleOwner},
		AccessToken:  "signed-token",
	}, nil
}

type fakeOrgService struct {
	orgdomain.Service
	orgs      map[string]*orgdomain.Organization
	activated []orgdomain.SubscriptionPayload
	failed    []snowflake.ID
}

func (f *fakeOrgService) GetBySlug(_ context.Context, slug string) (*orgdomain.Organization, error) {
	if org, ok := f.orgs[slug]; ok {
		return org, nil
	}
	return nil, orgdomain.ErrNotFound
}

func (f *fakeOrgService) HandleSubscriptionActivated(_ context.Context, _ snowflake.ID, sub orgdomain.SubscriptionPayload) error {
	f.activated = append(f.activated, sub)
	return nil
}

func (f *fakeOrgService) HandlePaymentFailed(_ context.Context, orgID snowflake.ID) error {
	f.failed = append(f.failed, orgID)
	return nil
}

type fakeFeatureService struct {
	featuredomain.Service
	features featuredomain.FeatureSet
}

func (f *fakeFeatureService) EffectiveFeatures(context.Context, snowflake.ID) featuredomain.FeatureSet {
	return f.features
}

func (f *fakeFeatureService) HasFeature(_ context.Context, _ snowflake.ID, flag string) bool {
	return f.features.Bool(flag)
}

func (f *fakeFeatureService) RequireFeature(_ context.Context, _ snowflake.ID, flag string) error {
	if !f.features.Bool(flag) {
		return &featuredomain.FeatureError{Flag: flag}
	}
	return nil
}

func (f *fakeFeatureService) CheckLimit(_ context.Context, _ snowflake.ID, kind string) featuredomain.LimitResult {
	return featuredomain.LimitResult{Kind: kind, Allowed: true, Current: 3, Limit: 10}
}

type fakeAssetService struct {
	assetdomain.Service
	createErr  error
	created    int
	partFilter *snowflake.ID
	amcFilter  *snowflake.ID
}

func (f *fakeAssetService) CreateDevice(_ context.Context, orgID snowflake.ID, req assetdomain.CreateDeviceRequest) (*assetdomain.Device, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &assetdomain.Device{ID: 1, OrgID: orgID, SerialNumber: req.SerialNumber}, nil
}

func (f *fakeAssetService) ListParts(_ context.Context, orgID, deviceID snowflake.ID) ([]*assetdomain.Part, error) {
	f.partFilter = &deviceID
	if deviceID == 404 {
		return nil, assetdomain.ErrDeviceNotFound
	}
	return []*assetdomain.Part{{ID: 5, OrgID: orgID, DeviceID: deviceID, PartName: "SSD"}}, nil
}

func (f *fakeAssetService) ListAMCs(_ context.Context, orgID, deviceID snowflake.ID) ([]*assetdomain.AMC, error) {
	f.amcFilter = &deviceID
	return []*assetdomain.AMC{{ID: 6, OrgID: orgID, DeviceID: deviceID, EndDate: "2025-12-31"}}, nil
}

func (f *fakeAssetService) Stats(_ context.Context, orgID snowflake.ID) (*assetdomain.DashboardStats, error) {
	return &assetdomain.DashboardStats{
		DevicesCount:      4,
		ActiveWarranties:  3,
		ExpiredWarranties: 1,
		RecentDevices:     []*assetdomain.Device{{ID: 1, OrgID: orgID, SerialNumber: "SN-1"}},
	}, nil
}

type fakeUsageService struct {
	usagedomain.Service
	chats int64
}

func (f *fakeUsageService) IncrementAIChats(_ context.Context, _ snowflake.ID, amount int) error {
	f.chats += int64(amount)
	return nil
}

func (f *fakeUsageService) GetUsage(_ context.Context, orgID snowflake.ID) (*usagedomain.UsageRecord, error) {
	return &usagedomain.UsageRecord{OrgID: orgID, AIChatsThisMonth: f.chats}, nil
}

type fakeLookup struct {
	result *coverage.LookupResult
	err    error
}

func (f *fakeLookup) Lookup(context.Context, snowflake.ID, string) (*coverage.LookupResult, error) {
	return f.result, f.err
}

type fakeAuthz struct {
	deny bool
}

func (f *fakeAuthz) Authorize(context.Context, string, string, string, string) error {
	if f.deny {
		return authorization.ErrForbidden
	}
	return nil
}

type testServer struct {
	*Server
	router   *gin.Engine
	signup   *fakeSignupService
	orgs     *fakeOrgService
	features *fakeFeatureService
	assets   *fakeAssetService
	usage    *fakeUsageService
	lookupFn *fakeLookup
	authz    *fakeAuthz
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{AuthJWTSecret: "test-secret", AuthTokenTTL: time.Hour}
	cfg.Tenancy.AdminToken = "admin-secret"
	cfg.Tenancy.PublicLookupRate = 0.01
	cfg.Tenancy.PublicLookupBurst = 1
	for _, m := range mutate {
		m(&cfg)
	}

	clk := clock.NewFakeClock(time.Date(2025, 6, 15, 6, 0, 0, 0, time.UTC))
	issuer, err := token.NewIssuer(cfg, clk)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)

	ts := &testServer{
		router:   gin.New(),
		signup:   &fakeSignupService{},
		orgs:     &fakeOrgService{orgs: map[string]*orgdomain.Organization{"acme": {ID: testOrgID, Name: "Acme", Slug: "acme", IsActive: true}}},
		features: &fakeFeatureService{features: featuredomain.FeatureSet{}},
		assets:   &fakeAssetService{},
		usage:    &fakeUsageService{},
		lookupFn: &fakeLookup{},
		authz:    &fakeAuthz{},
	}
	ts.router.Use(ErrorHandlingMiddleware())
	ts.Server = &Server{
		engine:        ts.router,
		cfg:           cfg,
		log:           log,
		tokens:        issuer,
		signupsvc:     ts.signup,
		orgSvc:        ts.orgs,
		featureSvc:    ts.features,
		assetSvc:      ts.assets,
		usageSvc:      ts.usage,
		lookup:        ts.lookupFn,
		authzSvc:      ts.authz,
		publicLimiter: ratelimit.NewPublicLookupLimiter(cfg, nil, log),
	}
	ts.registerRoutes()
	return ts
}

func (ts *testServer) accessToken(t *testing.T) string {
	t.Helper()
	raw, _, err := ts.tokens.Issue(token.Subject{UserID: testUserID, OrgID: testOrgID, Role: orgdomain.RoleStaff})
	require.NoError(t, err)
	return raw
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	return resp
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out.Error
}

func TestSignupReturnsCreatedTenant(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(jsonRequest(http.MethodPost, "/api/signup",
		`{"organization_name":"Acme IT","owner_name":"Asha","owner_email":"asha@acme.test","owner_password":"password123"}`))

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	require.Len(t, ts.signup.created, 1)
	assert.Equal(t, "Acme IT", ts.signup.created[0].Name)
	assert.Contains(t, resp.Body.String(), `"access_token":"signed-token"`)
}

func TestOrgRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/api/org/features", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/org/features", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp = ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/org/features", nil)
	req.Header.Set("Authorization", "Bearer "+ts.accessToken(t))
	resp = ts.do(req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestGetLimit(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/org/limits/devices", nil)
	req.Header.Set("Authorization", "Bearer "+ts.accessToken(t))
	resp := ts.do(req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"current":3`)

	req = httptest.NewRequest(http.MethodGet, "/api/org/limits/widgets", nil)
	req.Header.Set("Authorization", "Bearer "+ts.accessToken(t))
	resp = ts.do(req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_kind", decodeError(t, resp).Errors[0].Code)
}

func TestCreateDeviceLimitExceededCarriesCounts(t *testing.T) {
	ts := newTestServer(t)
	ts.assets.createErr = &featuredomain.LimitError{Kind: "devices", Current: 10, Limit: 10}

	req := jsonRequest(http.MethodPost, "/api/org/devices", `{"serial_number":"SN-1"}`)
	req.Header.Set("Authorization", "Bearer "+ts.accessToken(t))
	resp := ts.do(req)

	require.Equal(t, http.StatusPaymentRequired, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "limit_exceeded", payload.Type)
	assert.Equal(t, "devices", payload.Kind)
	require.NotNil(t, payload.Current)
	require.NotNil(t, payload.Limit)
	assert.EqualValues(t, 10, *payload.Current)
	assert.EqualValues(t, 10, *payload.Limit)
	assert.Contains(t, payload.Message, "upgrade")
}

func TestDeniedActionNeverReachesService(t *testing.T) {
	ts := newTestServer(t)
	ts.authz.deny = true

	req := jsonRequest(http.MethodPost, "/api/org/devices", `{"serial_number":"SN-1"}`)
	req.Header.Set("Authorization", "Bearer "+ts.accessToken(t))
	resp := ts.do(req)

	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Zero(t, ts.assets.created)
}

func TestExportRequiresPlanFeature(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/org/devices/export", nil)
	req.Header.Set("Authorization", "Bearer "+ts.accessToken(t))
	resp := ts.do(req)

	require.Equal(t, http.StatusForbidden, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "feature_disabled", payload.Type)
	assert.Equal(t, plandomain.FlagExportReports, payload.Flag)
}

func TestDashboardReturnsStats(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/org/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+ts.accessToken(t))
	resp := ts.do(req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var out struct {
		Data assetdomain.DashboardStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.EqualValues(t, 4, out.Data.DevicesCount)
	assert.EqualValues(t, 3, out.Data.ActiveWarranties)
	assert.EqualValues(t, 1, out.Data.ExpiredWarranties)
	require.Len(t, out.Data.RecentDevices, 1)
	assert.Equal(t, "SN-1", out.Data.RecentDevices[0].SerialNumber)

	ts.authz.deny = true
	resp = ts.do(req)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestListPartsFiltersByDevice(t *testing.T) {
	ts := newTestServer(t)
	auth := "Bearer " + ts.accessToken(t)

	req := httptest.NewRequest(http.MethodGet, "/api/org/parts", nil)
	req.Header.Set("Authorization", auth)
	resp := ts.do(req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.NotNil(t, ts.assets.partFilter)
	assert.Zero(t, *ts.assets.partFilter)

	req = httptest.NewRequest(http.MethodGet, "/api/org/parts?device_id=77", nil)
	req.Header.Set("Authorization", auth)
	resp = ts.do(req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, snowflake.ID(77), *ts.assets.partFilter)
	assert.Contains(t, resp.Body.String(), `"part_name":"SSD"`)

	req = httptest.NewRequest(http.MethodGet, "/api/org/parts?device_id=404", nil)
	req.Header.Set("Authorization", auth)
	resp = ts.do(req)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/org/parts?device_id=abc", nil)
	req.Header.Set("Authorization", auth)
	resp = ts.do(req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "device_id", decodeError(t, resp).Errors[0].Field)
}

func TestListAMCsFiltersByDevice(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/org/amc?device_id=88", nil)
	req.Header.Set("Authorization", "Bearer "+ts.accessToken(t))
	resp := ts.do(req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.NotNil(t, ts.assets.amcFilter)
	assert.Equal(t, snowflake.ID(88), *ts.assets.amcFilter)
	assert.Contains(t, resp.Body.String(), `"end_date":"2025-12-31"`)
}

func TestSupportChatRequiresBotFeature(t *testing.T) {
	ts := newTestServer(t)
	auth := "Bearer " + ts.accessToken(t)

	req := httptest.NewRequest(http.MethodPost, "/api/org/support/chats", nil)
	req.Header.Set("Authorization", auth)
	resp := ts.do(req)
	require.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, plandomain.FlagAISupportBot, decodeError(t, resp).Flag)
	assert.Zero(t, ts.usage.chats)

	ts.features.features = featuredomain.FeatureSet{plandomain.FlagAISupportBot: true}
	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/api/org/support/chats", nil)
		req.Header.Set("Authorization", auth)
		resp = ts.do(req)
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	}
	assert.EqualValues(t, 2, ts.usage.chats)
	assert.Contains(t, resp.Body.String(), `"ai_chats_this_month":2`)
}

func TestPublicLookupHidesInternalErrors(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) { cfg.Tenancy.PublicLookupRate = 0 })

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/api/public/nobody/warranty?q=SN-1", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	ts.lookupFn.err = errors.New("connection reset by peer")
	resp = ts.do(httptest.NewRequest(http.MethodGet, "/api/public/acme/warranty?q=SN-1", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.NotContains(t, resp.Body.String(), "connection reset")

	ts.lookupFn.err = coverage.ErrInvalidQuery
	resp = ts.do(httptest.NewRequest(http.MethodGet, "/api/public/acme/warranty?q=x", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	ts.lookupFn.err = nil
	ts.lookupFn.result = &coverage.LookupResult{CompanyName: "Globex"}
	resp = ts.do(httptest.NewRequest(http.MethodGet, "/api/public/acme/warranty?q=SN-1", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "Globex")
}

func TestPublicLookupIsRateLimited(t *testing.T) {
	ts := newTestServer(t)
	ts.lookupFn.result = &coverage.LookupResult{}

	first := ts.do(httptest.NewRequest(http.MethodGet, "/api/public/acme/warranty?q=SN-1", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := ts.do(httptest.NewRequest(http.MethodGet, "/api/public/acme/warranty?q=SN-1", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestAdminRoutesNeedToken(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/api/admin/organizations/abc", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/organizations/abc", nil)
	req.Header.Set(headerAdminToken, "admin-secret")
	resp = ts.do(req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	hidden := newTestServer(t, func(cfg *config.Config) { cfg.Tenancy.AdminToken = "" })
	req = httptest.NewRequest(http.MethodGet, "/api/admin/organizations/abc", nil)
	req.Header.Set(headerAdminToken, "anything")
	resp = hidden.do(req)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSubscriptionWebhookVerifiesSignature(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) { cfg.Tenancy.WebhookSecret = "whsec" })
	body := `{"event":"subscription.activated","payload":{"subscription":{"entity":{"id":"sub_1","notes":{"org_id":"1001","plan_id":"plan_business"}}}}}`

	req := jsonRequest(http.MethodPost, "/api/webhooks/subscription", body)
	req.Header.Set(headerWebhookSignature, "deadbeef")
	resp := ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Empty(t, ts.orgs.activated)

	mac := hmac.New(sha256.New, []byte("whsec"))
	mac.Write([]byte(body))
	req = jsonRequest(http.MethodPost, "/api/webhooks/subscription", body)
	req.Header.Set(headerWebhookSignature, hex.EncodeToString(mac.Sum(nil)))
	resp = ts.do(req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Len(t, ts.orgs.activated, 1)
	assert.Equal(t, "sub_1", ts.orgs.activated[0].ID)
	assert.Equal(t, "plan_business", ts.orgs.activated[0].Notes["plan_id"])
}

func TestPaymentFailedWebhook(t *testing.T) {
	ts := newTestServer(t)
	body := `{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_1","notes":{"org_id":"1001"}}}}}`

	resp := ts.do(jsonRequest(http.MethodPost, "/api/webhooks/subscription", body))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []snowflake.ID{testOrgID}, ts.orgs.failed)

	resp = ts.do(jsonRequest(http.MethodPost, "/api/webhooks/subscription", `{"event":"invoice.paid","payload":{}}`))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "ignored")
}
