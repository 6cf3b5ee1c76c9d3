// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uitsmijter/uitsmijter/pkg/config"
	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/keystore"
	"github.com/uitsmijter/uitsmijter/pkg/provider"
	"github.com/uitsmijter/uitsmijter/pkg/session"
	"github.com/uitsmijter/uitsmijter/pkg/token"
)

const testClientIdent = "d0d4a582-3a87-4f39-8f78-c29e6d63f507"

const testProviders = `
UserLoginProvider = {}
function UserLoginProvider:new(credentials)
	local instance = {}
	instance.canLogin = credentials.username == "valid_user"
		and credentials.password == "valid_password"
	if instance.canLogin then
		commit(credentials.username)
		instance.userProfile = { displayName = "Valid User" }
		instance.role = "staff"
		instance.scopes = {"user:list", "admin:write"}
	end
	return instance
end

UserValidationProvider = {}
function UserValidationProvider:new(input)
	return { isValid = input.username == "valid_user" }
end
`

func testTenantSpec() entities.TenantSpec {
	return entities.TenantSpec{
		Hosts:     []string{"localhost", "example.com", "*.example.com"},
		Providers: []string{testProviders},
		Interceptor: &entities.InterceptorSettings{
			Enabled: true,
			Domain:  "login.example.com",
		},
	}
}

func testClientSpec() entities.ClientSpec {
	return entities.ClientSpec{
		Ident:        testClientIdent,
		TenantName:   "cheese",
		RedirectURLs: []string{`http://localhost:9090.*`},
		GrantTypes: []entities.GrantType{
			entities.GrantTypeAuthorizationCode,
			entities.GrantTypeRefreshToken,
			entities.GrantTypePassword,
		},
		Scopes:    []string{"test", "access", "openid"},
		Referrers: []string{`http://localhost.*`},
	}
}

type serverOptions struct {
	tenantSpec entities.TenantSpec
	clientSpec entities.ClientSpec
	algorithm  string
}

func newTestServer(t *testing.T, opts serverOptions) (*Server, http.Handler) {
	t.Helper()

	cfg := &config.Config{
		JWTAlgorithm:          opts.algorithm,
		TokenExpiration:       2 * time.Hour,
		CookieExpiration:      7 * 24 * time.Hour,
		RefreshExpiration:     720 * time.Hour,
		ProviderTimeout:       2 * time.Second,
		ProviderFetchTimeout:  time.Second,
		ProviderFetchMaxBytes: 1 << 20,
	}
	if cfg.JWTAlgorithm == "" {
		cfg.JWTAlgorithm = config.AlgorithmHS256
	}
	if cfg.JWTAlgorithm == config.AlgorithmHS256 {
		cfg.JWTSecret = "vinegar"
	}

	store := entities.NewStore()
	tenant, err := entities.NewTenant("cheese", opts.tenantSpec, entities.FileRef("/t/cheese.yaml"))
	require.NoError(t, err)
	store.ApplyEvent(entities.Event{Op: entities.EventAdded, Tenant: tenant, Ref: tenant.Ref})

	client, err := entities.NewClient("shop", opts.clientSpec, entities.FileRef("/c/shop.yaml"))
	require.NoError(t, err)
	store.ApplyEvent(entities.Event{Op: entities.EventAdded, Client: client, Ref: client.Ref, IsClient: true})

	sessions := session.NewMemoryStore()
	t.Cleanup(func() { _ = sessions.Close() })

	keys := keystore.NewManager(keystore.NewMemoryStore(), 0)
	signer := keystore.NewSigner(keys, cfg)

	srv := New(cfg, store, sessions, keys, signer, provider.New(cfg),
		VersionInfo{Version: "test", BuildDate: "today"})
	return srv, srv.Routes()
}

func defaultTestServer(t *testing.T) (*Server, http.Handler) {
	return newTestServer(t, serverOptions{
		tenantSpec: testTenantSpec(),
		clientSpec: testClientSpec(),
	})
}

func doRequest(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func postForm(h http.Handler, path string, form url.Values, cookie string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != "" {
		r.AddCookie(&http.Cookie{Name: CookieName, Value: cookie})
	}
	return doRequest(h, r)
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == CookieName {
			return c.Value
		}
	}
	t.Fatal("no session cookie set")
	return ""
}

const authorizePath = "/authorize?response_type=code&client_id=" + testClientIdent +
	"&redirect_uri=http%3A%2F%2Flocalhost%3A9090&scope=test&state=rii4EPh5"

func TestHappyCodeFlow(t *testing.T) {
	_, h := defaultTestServer(t)

	// Unauthenticated authorize renders the login page.
	w := doRequest(h, httptest.NewRequest(http.MethodGet, authorizePath, nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `action="/login"`)

	// Login with valid credentials sets the SSO cookie and returns to the
	// authorize URL.
	w = postForm(h, "/login", url.Values{
		"username": {"valid_user"},
		"password": {"valid_password"},
		"location": {authorizePath},
	}, "")
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, authorizePath, w.Header().Get("Location"))
	cookie := sessionCookie(t, w)
	require.NotEmpty(t, cookie)
	require.NotEqual(t, invalidCookieValue, cookie)

	// Authorize with the cookie issues an authorization code.
	r := httptest.NewRequest(http.MethodGet, authorizePath, nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: cookie})
	w = doRequest(h, r)
	require.Equal(t, http.StatusSeeOther, w.Code)

	redirect, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:9090", redirect.Host)
	assert.Equal(t, "rii4EPh5", redirect.Query().Get("state"))
	code := redirect.Query().Get("code")
	require.Len(t, code, 16)

	// The code buys a token pair.
	w = postForm(h, "/token", url.Values{
		"grant_type": {"authorization_code"},
		"client_id":  {testClientIdent},
		"code":       {code},
	}, "")
	require.Equal(t, http.StatusOK, w.Code)

	var tokens struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		RefreshToken string `json:"refresh_token"`
		Scope        string `json:"scope"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokens))
	assert.NotEmpty(t, tokens.AccessToken)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "test", tokens.Scope)

	// Double redemption of the same code fails.
	w = postForm(h, "/token", url.Values{
		"grant_type": {"authorization_code"},
		"client_id":  {testClientIdent},
		"code":       {code},
	}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), ReasonInvalidCode)

	// Logout invalidates the cookie.
	r = httptest.NewRequest(http.MethodGet, "/logout/finalize", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: cookie})
	w = doRequest(h, r)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Equal(t, invalidCookieValue, sessionCookie(t, w))
}

func TestRefreshTokenGrant(t *testing.T) {
	_, h := defaultTestServer(t)
	refresh := obtainRefreshToken(t, h)

	w := postForm(h, "/token", url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {testClientIdent},
		"refresh_token": {refresh},
	}, "")
	require.Equal(t, http.StatusOK, w.Code)

	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokens))
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.NotEqual(t, refresh, tokens.RefreshToken)

	// The old refresh token was consumed by the rotation.
	w = postForm(h, "/token", url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {testClientIdent},
		"refresh_token": {refresh},
	}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), ReasonInvalidCode)
}

func TestRefreshRejectsInvalidatedUser(t *testing.T) {
	spec := testTenantSpec()
	spec.Providers = []string{strings.Replace(testProviders,
		`input.username == "valid_user"`, `false`, 1)}
	_, h := newTestServer(t, serverOptions{tenantSpec: spec, clientSpec: testClientSpec()})

	refresh := obtainRefreshToken(t, h)
	w := postForm(h, "/token", url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {testClientIdent},
		"refresh_token": {refresh},
	}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), ReasonInvalidate)
}

// obtainRefreshToken walks the code flow up to the first token response.
func obtainRefreshToken(t *testing.T, h http.Handler) string {
	t.Helper()

	w := postForm(h, "/login", url.Values{
		"username": {"valid_user"},
		"password": {"valid_password"},
		"location": {authorizePath},
	}, "")
	require.Equal(t, http.StatusSeeOther, w.Code)
	cookie := sessionCookie(t, w)

	r := httptest.NewRequest(http.MethodGet, authorizePath, nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: cookie})
	w = doRequest(h, r)
	require.Equal(t, http.StatusSeeOther, w.Code)
	redirect, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)

	w = postForm(h, "/token", url.Values{
		"grant_type": {"authorization_code"},
		"client_id":  {testClientIdent},
		"code":       {redirect.Query().Get("code")},
	}, "")
	require.Equal(t, http.StatusOK, w.Code)

	var tokens struct {
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokens))
	require.NotEmpty(t, tokens.RefreshToken)
	return tokens.RefreshToken
}

func TestPasswordGrantScopeFiltering(t *testing.T) {
	clientSpec := testClientSpec()
	clientSpec.Scopes = []string{"access", "openid"}
	clientSpec.AllowedProviderScopes = []string{"user:*"}
	_, h := newTestServer(t, serverOptions{tenantSpec: testTenantSpec(), clientSpec: clientSpec})

	w := postForm(h, "/token", url.Values{
		"grant_type": {"password"},
		"client_id":  {testClientIdent},
		"username":   {"valid_user"},
		"password":   {"valid_password"},
		"scope":      {"access openid admin:delete"},
	}, "")
	require.Equal(t, http.StatusOK, w.Code)

	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		Scope        string `json:"scope"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokens))
	assert.NotEmpty(t, tokens.AccessToken)
	// The password grant issues no refresh token.
	assert.Empty(t, tokens.RefreshToken)
	assert.ElementsMatch(t,
		[]string{"access", "openid", "user:list"},
		strings.Fields(tokens.Scope))
}

func TestPasswordGrantWrongCredentials(t *testing.T) {
	srv, h := defaultTestServer(t)

	w := postForm(h, "/token", url.Values{
		"grant_type": {"password"},
		"client_id":  {testClientIdent},
		"username":   {"valid_user"},
		"password":   {"wrong"},
	}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), ReasonWrongCredentials)
	assert.Equal(t, 1, srv.metrics.DeniedAttempts(testClientIdent))
}

func TestUnknownGrantType(t *testing.T) {
	_, h := defaultTestServer(t)
	w := postForm(h, "/token", url.Values{
		"grant_type": {"client_credentials"},
		"client_id":  {testClientIdent},
	}, "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Contains(t, w.Body.String(), ReasonGrantTypeNotImplemented)
}

func TestUnknownClient(t *testing.T) {
	_, h := defaultTestServer(t)
	w := postForm(h, "/token", url.Values{
		"grant_type": {"authorization_code"},
		"client_id":  {uuid.NewString()},
		"code":       {"whatever12345678"},
	}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), ReasonNoClient)

	w = doRequest(h, httptest.NewRequest(http.MethodGet,
		"/authorize?response_type=code&client_id="+uuid.NewString()+
			"&redirect_uri=http%3A%2F%2Flocalhost%3A9090&state=x", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), ReasonNoClient)
}

func TestWrongPKCEMethodNotImplemented(t *testing.T) {
	_, h := defaultTestServer(t)
	w := doRequest(h, httptest.NewRequest(http.MethodGet,
		authorizePath+"&code_challenge=abc&code_challenge_method=nonexistent", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestForgedReferer(t *testing.T) {
	_, h := defaultTestServer(t)
	r := httptest.NewRequest(http.MethodGet, authorizePath, nil)
	r.Header.Set("Referer", "http://evilhackerssite/hoho")
	w := doRequest(h, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), ReasonWrongReferer)
}

func TestPKCEFlow(t *testing.T) {
	_, h := defaultTestServer(t)

	verifier := "AAbb"
	challenge := "wd0obL9-LvFPXDvrEMbPUlN6pgT-AqndJ1DpABlGmkQ"

	w := postForm(h, "/login", url.Values{
		"username": {"valid_user"},
		"password": {"valid_password"},
		"location": {authorizePath},
	}, "")
	require.Equal(t, http.StatusSeeOther, w.Code)
	cookie := sessionCookie(t, w)

	pkcePath := authorizePath + "&code_challenge=" + challenge + "&code_challenge_method=S256"
	r := httptest.NewRequest(http.MethodGet, pkcePath, nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: cookie})
	w = doRequest(h, r)
	require.Equal(t, http.StatusSeeOther, w.Code)
	redirect, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	code := redirect.Query().Get("code")

	// A wrong verifier is rejected.
	w = postForm(h, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientIdent},
		"code":          {code},
		"code_verifier": {"not-the-verifier"},
	}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), ReasonChallengeMethodMismatch)

	// The code is consumed; even the right verifier cannot redeem it now.
	w = postForm(h, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientIdent},
		"code":          {code},
		"code_verifier": {verifier},
	}, "")
	assert.Contains(t, w.Body.String(), ReasonInvalidCode)
}

func TestInterceptorRedirectsToLogin(t *testing.T) {
	_, h := defaultTestServer(t)

	r := httptest.NewRequest(http.MethodGet, "/interceptor", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "app.example.com")
	r.Header.Set("X-Forwarded-Uri", "/private")
	w := doRequest(h, r)

	require.Equal(t, http.StatusTemporaryRedirect, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "login.example.com", location.Host)
	assert.Equal(t, "/login", location.Path)
	assert.Equal(t, "https://app.example.com/private", location.Query().Get("for"))
	assert.Equal(t, ModeInterceptor, location.Query().Get("mode"))
}

func TestInterceptorDisabledTenant(t *testing.T) {
	spec := testTenantSpec()
	spec.Interceptor.Enabled = false
	_, h := newTestServer(t, serverOptions{tenantSpec: spec, clientSpec: testClientSpec()})

	r := httptest.NewRequest(http.MethodGet, "/interceptor", nil)
	r.Header.Set("X-Forwarded-Host", "app.example.com")
	w := doRequest(h, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), ReasonTenantNotAllowed)
}

func interceptorCookie(t *testing.T, srv *Server, expiresIn time.Duration) string {
	t.Helper()
	now := time.Now()
	payload := &token.Payload{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "valid_user",
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		AuthTime:       jwt.NewNumericDate(now),
		Tenant:         "cheese",
		User:           "valid_user",
		Responsibility: token.ResponsibilityHash("app.example.com"),
	}
	signed, _, err := srv.signer.Sign(t.Context(), payload)
	require.NoError(t, err)
	return signed
}

func TestInterceptorAllowsValidSession(t *testing.T) {
	srv, h := defaultTestServer(t)

	r := httptest.NewRequest(http.MethodGet, "/interceptor", nil)
	r.Header.Set("X-Forwarded-Host", "app.example.com")
	r.AddCookie(&http.Cookie{Name: CookieName, Value: interceptorCookie(t, srv, 6*24*time.Hour)})
	w := doRequest(h, r)

	assert.Equal(t, http.StatusOK, w.Code)
	// Far from expiry, no refresh happens.
	assert.Empty(t, w.Header().Get("Authorization"))
}

func TestInterceptorSlidingRefresh(t *testing.T) {
	srv, h := defaultTestServer(t)

	r := httptest.NewRequest(http.MethodGet, "/interceptor", nil)
	r.Header.Set("X-Forwarded-Host", "app.example.com")
	r.AddCookie(&http.Cookie{Name: CookieName, Value: interceptorCookie(t, srv, time.Minute)})
	w := doRequest(h, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Authorization"), "Bearer "))
	refreshed := sessionCookie(t, w)
	assert.NotEmpty(t, refreshed)

	payload, err := srv.signer.Verify(t.Context(), refreshed)
	require.NoError(t, err)
	assert.Greater(t, payload.ExpiresAt.Unix(), time.Now().Add(24*time.Hour).Unix())
}

func TestInterceptorRejectsForeignResponsibility(t *testing.T) {
	srv, h := defaultTestServer(t)

	// Cookie bound to app.example.com presented from other.example.com.
	r := httptest.NewRequest(http.MethodGet, "/interceptor", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "other.example.com")
	r.AddCookie(&http.Cookie{Name: CookieName, Value: interceptorCookie(t, srv, 6*24*time.Hour)})
	w := doRequest(h, r)

	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
}

func TestJWKSDocumentIsServed(t *testing.T) {
	_, h := newTestServer(t, serverOptions{
		tenantSpec: testTenantSpec(),
		clientSpec: testClientSpec(),
		algorithm:  config.AlgorithmRS256,
	})

	w := doRequest(h, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.NotEmpty(t, doc.Keys)
	assert.Equal(t, "RSA", doc.Keys[0]["kty"])
}

func TestTokenInfo(t *testing.T) {
	srv, h := defaultTestServer(t)

	signed := interceptorCookie(t, srv, time.Hour)
	w := postForm(h, "/token/info", url.Values{"token": {signed}}, "")
	require.Equal(t, http.StatusOK, w.Code)

	var info map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, true, info["active"])
	assert.Equal(t, "cheese", info["tenant"])

	w = postForm(h, "/token/info", url.Values{"token": {"garbage"}}, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, false, info["active"])
}

func TestOperationalEndpoints(t *testing.T) {
	_, h := defaultTestServer(t)

	w := doRequest(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(h, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tenants":1`)

	w = doRequest(h, httptest.NewRequest(http.MethodGet, "/versions", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"test"`)
	assert.Contains(t, w.Body.String(), `"builddate":"today"`)

	w = doRequest(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginWithoutLocation(t *testing.T) {
	_, h := defaultTestServer(t)
	w := postForm(h, "/login", url.Values{
		"username": {"valid_user"},
		"password": {"valid_password"},
	}, "")
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Contains(t, w.Body.String(), ReasonMissingLocation)
}

func TestLoginRejectsForeignAbsoluteLocation(t *testing.T) {
	_, h := defaultTestServer(t)

	// An absolute location on a foreign host is rejected even when it embeds
	// a valid redirect_uri for the client.
	evil := "http://evil.example.org/authorize?client_id=" + testClientIdent +
		"&redirect_uri=http%3A%2F%2Flocalhost%3A9090"
	w := postForm(h, "/login", url.Values{
		"username": {"valid_user"},
		"password": {"valid_password"},
		"location": {evil},
	}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), ReasonForbidden)

	// An absolute location matching the client's redirect patterns passes.
	allowed := "http://localhost:9090/welcome?client_id=" + testClientIdent
	w = postForm(h, "/login", url.Values{
		"username": {"valid_user"},
		"password": {"valid_password"},
		"location": {allowed},
	}, "")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, allowed, w.Header().Get("Location"))
}

func TestLoginWrongCredentialsCountsDenied(t *testing.T) {
	srv, h := defaultTestServer(t)
	w := postForm(h, "/login", url.Values{
		"username": {"valid_user"},
		"password": {"wrong"},
		"location": {authorizePath},
	}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), ReasonWrongCredentials)
	assert.Equal(t, 1, srv.metrics.DeniedAttempts(testClientIdent))

	// Removing the client resets the tracking.
	srv.store.ApplyEvent(entities.Event{
		Op:       entities.EventDeleted,
		Ref:      entities.FileRef("/c/shop.yaml"),
		IsClient: true,
	})
	assert.Equal(t, 0, srv.metrics.DeniedAttempts(testClientIdent))
}

func TestAuthorizeMissingResponseType(t *testing.T) {
	_, h := defaultTestServer(t)
	w := doRequest(h, httptest.NewRequest(http.MethodGet,
		"/authorize?client_id="+testClientIdent+"&redirect_uri=http%3A%2F%2Flocalhost%3A9090&state=x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No String was found at 'response_type'")
}

func TestAuthorizeUnknownRedirectURI(t *testing.T) {
	_, h := defaultTestServer(t)
	w := doRequest(h, httptest.NewRequest(http.MethodGet,
		"/authorize?response_type=code&client_id="+testClientIdent+
			"&redirect_uri=https%3A%2F%2Fevil.example.org%2Fcb&state=x", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCookieDomainSelection(t *testing.T) {
	srv, _ := defaultTestServer(t)

	tenant := srv.store.FindTenantByName("cheese")
	require.NotNil(t, tenant)

	// Interceptor override wins.
	assert.Equal(t, "login.example.com", srv.cookieDomain(&ClientInfo{Tenant: tenant, Host: "x"}))

	// Then the referer host.
	assert.Equal(t, "ref.example.com", srv.cookieDomain(&ClientInfo{
		Referer: "https://ref.example.com/page", Host: "x",
	}))

	// Then the requested host, then localhost.
	assert.Equal(t, "x", srv.cookieDomain(&ClientInfo{Host: "x"}))
	assert.Equal(t, "localhost", srv.cookieDomain(&ClientInfo{}))
}
