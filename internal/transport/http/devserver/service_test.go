package devserver

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"medialink-client-go/internal/domain/session/model"
	"medialink-client-go/internal/platform/config"
	"medialink-client-go/internal/platform/storage"
	platformtesting "medialink-client-go/internal/platform/testing"
	"medialink-client-go/internal/transport/api"
	httptransport "medialink-client-go/internal/transport/http"
)

var testDBCounter int

func newTestService(t *testing.T) (*Service, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	testDBCounter++
	dsn := fmt.Sprintf("file:devserver-test-%d?mode=memory&cache=shared", testDBCounter)
	db, err := storage.Open(dsn, &storage.Account{})
	platformtesting.AssertNoError(t, err)

	svc, err := NewService(config.DevServerConfig{
		JWTSecret:    "test-secret",
		PairExpiry:   30 * time.Second,
		PairInterval: time.Second,
	}, db, platformtesting.NopLogger{})
	platformtesting.AssertNoError(t, err)
	platformtesting.AssertNoError(t, svc.EnsureAccount("dev@example.com", "dev", "devpass", "admin"))

	engine := gin.New()
	router := &httptransport.Router{Engine: engine, API: engine.Group("/api")}
	platformtesting.AssertNoError(t, svc.Register(context.Background(), router))
	return svc, engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, bearer string, payload, out interface{}) int {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := sonic.Marshal(payload)
		platformtesting.AssertNoError(t, err)
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		platformtesting.AssertNoError(t, sonic.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestHealthEndpoint(t *testing.T) {
	_, engine := newTestService(t)

	var resp httptransport.APIResponse
	code := doJSON(t, engine, http.MethodGet, "/health", "", nil, &resp)
	platformtesting.AssertEqual(t, http.StatusOK, code)
	if !resp.Success {
		t.Fatal("health should report success")
	}
}

func TestLoginIssuesUsableToken(t *testing.T) {
	_, engine := newTestService(t)

	var login api.LoginResponse
	code := doJSON(t, engine, http.MethodPost, "/api/auth/login", "",
		api.LoginRequest{Identifier: "dev", Password: "devpass"}, &login)
	platformtesting.AssertEqual(t, http.StatusOK, code)
	platformtesting.AssertEqual(t, "dev", login.User.Username)
	if login.Token == "" {
		t.Fatal("expected a signed token")
	}

	var profile model.UserProfile
	code = doJSON(t, engine, http.MethodGet, "/api/auth/me", login.Token, nil, &profile)
	platformtesting.AssertEqual(t, http.StatusOK, code)
	platformtesting.AssertEqual(t, login.User.ID, profile.ID)
	platformtesting.AssertEqual(t, "admin", profile.Role)
}

func TestLoginByEmail(t *testing.T) {
	_, engine := newTestService(t)

	var login api.LoginResponse
	code := doJSON(t, engine, http.MethodPost, "/api/auth/login", "",
		api.LoginRequest{Identifier: "dev@example.com", Password: "devpass"}, &login)
	platformtesting.AssertEqual(t, http.StatusOK, code)
	platformtesting.AssertEqual(t, "dev", login.User.Username)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	_, engine := newTestService(t)

	code := doJSON(t, engine, http.MethodPost, "/api/auth/login", "",
		api.LoginRequest{Identifier: "dev", Password: "wrong"}, nil)
	platformtesting.AssertEqual(t, http.StatusUnauthorized, code)
}

func TestMeRequiresToken(t *testing.T) {
	_, engine := newTestService(t)

	code := doJSON(t, engine, http.MethodGet, "/api/auth/me", "", nil, nil)
	platformtesting.AssertEqual(t, http.StatusUnauthorized, code)

	code = doJSON(t, engine, http.MethodGet, "/api/auth/me", "not-a-jwt", nil, nil)
	platformtesting.AssertEqual(t, http.StatusUnauthorized, code)
}

func TestPairingRoundTrip(t *testing.T) {
	_, engine := newTestService(t)

	var grant api.PairRequestResponse
	code := doJSON(t, engine, http.MethodPost, "/pair/request", "", struct{}{}, &grant)
	platformtesting.AssertEqual(t, http.StatusOK, code)
	if grant.DeviceCode == "" || len(grant.UserCode) != 4 {
		t.Fatalf("malformed grant: %+v", grant)
	}
	platformtesting.AssertEqual(t, 30, grant.ExpiresIn)
	platformtesting.AssertEqual(t, 1, grant.Interval)

	// Device polls before anyone typed the code.
	var poll api.PairPollResponse
	code = doJSON(t, engine, http.MethodPost, "/pair/poll", "",
		api.PairPollRequest{DeviceCode: grant.DeviceCode}, &poll)
	platformtesting.AssertEqual(t, http.StatusOK, code)
	platformtesting.AssertEqual(t, api.PairStatusPending, poll.Status)

	// Second screen activates the code with real credentials.
	activate := map[string]string{
		"user_code":  grant.UserCode,
		"identifier": "dev",
		"password":   "devpass",
	}
	code = doJSON(t, engine, http.MethodPost, "/pair/activate", "", activate, nil)
	platformtesting.AssertEqual(t, http.StatusOK, code)

	// Next poll hands out a token the authed endpoints accept.
	code = doJSON(t, engine, http.MethodPost, "/pair/poll", "",
		api.PairPollRequest{DeviceCode: grant.DeviceCode}, &poll)
	platformtesting.AssertEqual(t, http.StatusOK, code)
	platformtesting.AssertEqual(t, api.PairStatusAuthorized, poll.Status)
	if poll.AccessToken == "" {
		t.Fatal("authorized poll must carry a token")
	}

	var profile model.UserProfile
	code = doJSON(t, engine, http.MethodGet, "/api/auth/me", poll.AccessToken, nil, &profile)
	platformtesting.AssertEqual(t, http.StatusOK, code)
	platformtesting.AssertEqual(t, "dev", profile.Username)

	// The grant is single-use.
	code = doJSON(t, engine, http.MethodPost, "/pair/poll", "",
		api.PairPollRequest{DeviceCode: grant.DeviceCode}, &poll)
	platformtesting.AssertEqual(t, http.StatusOK, code)
	platformtesting.AssertEqual(t, api.PairStatusExpired, poll.Status)
}

func TestPairActivateRejectsBadCredentials(t *testing.T) {
	_, engine := newTestService(t)

	var grant api.PairRequestResponse
	doJSON(t, engine, http.MethodPost, "/pair/request", "", struct{}{}, &grant)

	activate := map[string]string{
		"user_code":  grant.UserCode,
		"identifier": "dev",
		"password":   "wrong",
	}
	code := doJSON(t, engine, http.MethodPost, "/pair/activate", "", activate, nil)
	platformtesting.AssertEqual(t, http.StatusUnauthorized, code)

	var poll api.PairPollResponse
	doJSON(t, engine, http.MethodPost, "/pair/poll", "",
		api.PairPollRequest{DeviceCode: grant.DeviceCode}, &poll)
	platformtesting.AssertEqual(t, api.PairStatusPending, poll.Status)
}

func TestPairActivateUnknownCode(t *testing.T) {
	_, engine := newTestService(t)

	activate := map[string]string{
		"user_code":  "ZZZZ",
		"identifier": "dev",
		"password":   "devpass",
	}
	code := doJSON(t, engine, http.MethodPost, "/pair/activate", "", activate, nil)
	platformtesting.AssertEqual(t, http.StatusNotFound, code)
}

func TestPollUnknownDeviceCodeIsExpired(t *testing.T) {
	_, engine := newTestService(t)

	var poll api.PairPollResponse
	code := doJSON(t, engine, http.MethodPost, "/pair/poll", "",
		api.PairPollRequest{DeviceCode: "nope"}, &poll)
	platformtesting.AssertEqual(t, http.StatusOK, code)
	platformtesting.AssertEqual(t, api.PairStatusExpired, poll.Status)
}
