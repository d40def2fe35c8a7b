package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	httpapi "github.com/aussiebroadwan/idsrv/internal/idsrv/http"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/metrics"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/revocation"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/service"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store/drivers/sqlite"
	"github.com/aussiebroadwan/idsrv/pkg/authsdk"
	"github.com/aussiebroadwan/idsrv/pkg/cryptox"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
)

const issuer = "http://localhost:8080"

type failingPinger struct{}

func (failingPinger) Ping(_ context.Context) error { return errors.New("connection refused") }

// unreachableList stands in for a revocation backend that is down.
type unreachableList struct{}

func (unreachableList) Revoke(context.Context, string, time.Time) error { return store.ErrUnavailable }
func (unreachableList) IsRevoked(context.Context, string) (bool, error) {
	return false, store.ErrUnavailable
}
func (unreachableList) Purge(context.Context, time.Time) (int64, error) { return 0, store.ErrUnavailable }

func newRouter(t *testing.T, opts ...func(*httpapi.Router)) *httpapi.Router {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    issuer,
		NumKeys:   1,
	})
	require.NoError(t, err)

	m := metrics.New()
	revs := revocation.NewStoreList(st)
	creds := &service.CredentialService{Store: st, Hasher: cryptox.NewHasher("pepper"), Metrics: m}
	introspector := &service.Introspector{Verifier: km.Verifier(), Revocations: revs, Metrics: m}
	tokens := &service.TokenService{
		Validator:    &service.GrantValidator{Credentials: creds},
		Issuer:       &service.TokenIssuer{Keys: km, Issuer: issuer, AccessTTL: time.Hour},
		Introspector: introspector,
		Revocations:  revs,
		Metrics:      m,
		RefreshTTL:   24 * time.Hour,
	}
	discovery, err := service.NewDiscoveryPublisher(service.DiscoveryConfig{
		Issuer:            issuer,
		GrantTypes:        service.SupportedGrantTypes,
		Scopes:            []string{"openid", "profile", "api1", "offline_access"},
		SigningAlgorithms: []string{km.Algorithm()},
	})
	require.NoError(t, err)

	for _, res := range creds.Seed(t.Context(), service.DefaultSeed()) {
		require.Equal(t, service.ProvisionCreated, res.Outcome, res.Name)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := httpapi.NewRouter(km.KeySet(), "test", st, httpapi.DefaultRateLimits, logger)
	r.Credentials = creds
	r.Tokens = tokens
	r.Introspector = introspector
	r.Discovery = discovery
	r.Metrics = m
	for _, opt := range opts {
		opt(r)
	}
	r.ApplyRoutes()
	return r
}

func postForm(t *testing.T, h http.Handler, path string, form url.Values, basic ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if len(basic) == 2 {
		req.SetBasicAuth(basic[0], basic[1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func getWithBearer(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func passwordToken(t *testing.T, h http.Handler, username, scope string) authsdk.TokenResponse {
	t.Helper()
	rec := postForm(t, h, service.PathToken, url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {"Pass123$"},
		"scope":      {scope},
	}, "ro.client", "secret")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[authsdk.TokenResponse](t, rec)
}

func TestTokenEndpoint(t *testing.T) {
	r := newRouter(t)

	t.Run("basic auth", func(t *testing.T) {
		rec := postForm(t, r, service.PathToken, url.Values{
			"grant_type": {"client_credentials"},
			"scope":      {"api1"},
		}, "client", "secret")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		tok := decode[authsdk.TokenResponse](t, rec)
		require.Equal(t, "Bearer", tok.TokenType)
		require.Equal(t, 3600, tok.ExpiresIn)
		require.Equal(t, "api1", tok.Scope)
		require.Empty(t, tok.RefreshToken)
	})

	t.Run("form credentials", func(t *testing.T) {
		rec := postForm(t, r, service.PathToken, url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {"client"},
			"client_secret": {"secret"},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("offline access returns refresh token", func(t *testing.T) {
		tok := passwordToken(t, r, "alice", "openid api1 offline_access")
		require.NotEmpty(t, tok.RefreshToken)

		rec := postForm(t, r, service.PathToken, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {tok.RefreshToken},
		}, "ro.client", "secret")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NotEqual(t, tok.RefreshToken, decode[authsdk.TokenResponse](t, rec).RefreshToken)
	})

	tests := []struct {
		name   string
		form   url.Values
		basic  []string
		status int
		code   string
	}{
		{"wrong client secret", url.Values{"grant_type": {"client_credentials"}}, []string{"client", "nope"}, http.StatusUnauthorized, authsdk.ErrorCodeInvalidClient},
		{"unknown grant", url.Values{"grant_type": {"implicit"}}, []string{"client", "secret"}, http.StatusBadRequest, authsdk.ErrorCodeUnsupportedGrantType},
		{"missing grant", url.Values{}, []string{"client", "secret"}, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest},
		{"grant not allowed", url.Values{"grant_type": {"password"}, "username": {"alice"}, "password": {"Pass123$"}}, []string{"client", "secret"}, http.StatusBadRequest, authsdk.ErrorCodeUnauthorizedClient},
		{"wrong password", url.Values{"grant_type": {"password"}, "username": {"alice"}, "password": {"x"}}, []string{"ro.client", "secret"}, http.StatusBadRequest, authsdk.ErrorCodeInvalidGrant},
		{"scope not allowed", url.Values{"grant_type": {"client_credentials"}, "scope": {"openid"}}, []string{"client", "secret"}, http.StatusBadRequest, authsdk.ErrorCodeInvalidScope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postForm(t, r, service.PathToken, tt.form, tt.basic...)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.Equal(t, tt.code, decode[authsdk.OAuth2Error](t, rec).Code)
		})
	}
}

func TestTokenEndpointRequiresForm(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodPost, service.PathToken, strings.NewReader(`{"grant_type":"client_credentials"}`))
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("client", "secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, authsdk.ErrorCodeInvalidRequest, decode[authsdk.OAuth2Error](t, rec).Code)
}

func TestIdentityEndpoint(t *testing.T) {
	r := newRouter(t)
	tok := passwordToken(t, r, "alice", "api1")

	rec := getWithBearer(t, r, "/identity", tok.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	claims := decode[[]authsdk.IdentityClaim](t, rec)
	require.Contains(t, claims, authsdk.IdentityClaim{Type: "iss", Value: issuer})
	require.Contains(t, claims, authsdk.IdentityClaim{Type: "scope", Value: "api1"})
	require.Contains(t, claims, authsdk.IdentityClaim{Type: "amr", Value: "pwd"})
	for i := 1; i < len(claims); i++ {
		require.LessOrEqual(t, claims[i-1].Type, claims[i].Type)
	}

	require.Equal(t, http.StatusUnauthorized, getWithBearer(t, r, "/identity", "").Code)
	require.Equal(t, http.StatusUnauthorized, getWithBearer(t, r, "/identity", tok.AccessToken+"x").Code)

	openidOnly := passwordToken(t, r, "alice", "openid")
	require.Equal(t, http.StatusForbidden, getWithBearer(t, r, "/identity", openidOnly.AccessToken).Code)
}

func TestUserinfoEndpoint(t *testing.T) {
	r := newRouter(t)
	tok := passwordToken(t, r, "bob", "openid profile")

	rec := getWithBearer(t, r, service.PathUserinfo, tok.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	info := decode[map[string]any](t, rec)
	require.NotEmpty(t, info["sub"])
	require.Equal(t, "Bob Smith", info["name"])
	require.Equal(t, "bob", info["preferred_username"])
	require.NotContains(t, info, "email")

	api := passwordToken(t, r, "bob", "api1")
	require.Equal(t, http.StatusForbidden, getWithBearer(t, r, service.PathUserinfo, api.AccessToken).Code)
}

func TestIntrospectAndRevoke(t *testing.T) {
	r := newRouter(t)
	tok := passwordToken(t, r, "alice", "api1")

	rec := postForm(t, r, service.PathIntrospect, url.Values{"token": {tok.AccessToken}}, "client", "secret")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[authsdk.IntrospectionResponse](t, rec)
	require.True(t, resp.Active)
	require.Equal(t, "ro.client", resp.ClientID)
	require.Equal(t, "api1", resp.Scope)

	rec = postForm(t, r, service.PathIntrospect, url.Values{"token": {tok.AccessToken}}, "client", "wrong")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	rec = postForm(t, r, service.PathIntrospect, url.Values{}, "client", "secret")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postForm(t, r, service.PathRevoke, url.Values{"token": {tok.AccessToken}}, "ro.client", "secret")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = postForm(t, r, service.PathIntrospect, url.Values{"token": {tok.AccessToken}}, "client", "secret")
	require.False(t, decode[authsdk.IntrospectionResponse](t, rec).Active)

	require.Equal(t, http.StatusUnauthorized, getWithBearer(t, r, "/identity", tok.AccessToken).Code)

	// Unknown tokens are accepted silently.
	rec = postForm(t, r, service.PathRevoke, url.Values{"token": {"garbage"}}, "ro.client", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRevocationOutageIsServerError(t *testing.T) {
	r := newRouter(t)
	tok := passwordToken(t, r, "alice", "openid api1")

	r.Introspector.Revocations = unreachableList{}

	for _, path := range []string{"/identity", service.PathUserinfo} {
		rec := getWithBearer(t, r, path, tok.AccessToken)
		require.Equal(t, http.StatusInternalServerError, rec.Code, path)
		require.Equal(t, "server_error", decode[authsdk.OAuth2Error](t, rec).Code, path)
	}

	rec := postForm(t, r, service.PathIntrospect, url.Values{"token": {tok.AccessToken}}, "client", "secret")
	require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
	require.Equal(t, "server_error", decode[authsdk.OAuth2Error](t, rec).Code)

	// Garbage is rejected before the list is consulted.
	rec = postForm(t, r, service.PathIntrospect, url.Values{"token": {"garbage"}}, "client", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decode[authsdk.IntrospectionResponse](t, rec).Active)
}

func TestDiscoveryAndJWKS(t *testing.T) {
	r := newRouter(t)

	rec := getWithBearer(t, r, service.PathDiscovery, "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[authsdk.DiscoveryDocument](t, rec)
	require.Equal(t, issuer, doc.Issuer)
	require.Equal(t, issuer+service.PathToken, doc.TokenEndpoint)
	require.Equal(t, issuer+service.PathJWKS, doc.JWKSURI)
	require.Equal(t, service.SupportedGrantTypes, doc.GrantTypesSupported)

	rec = getWithBearer(t, r, service.PathJWKS, "")
	require.Equal(t, http.StatusOK, rec.Code)
	set := decode[jwtx.JWKS](t, rec)
	require.Len(t, set.Keys, 1)
	require.Equal(t, "OKP", set.Keys[0].Kty)
}

func TestHealthEndpoints(t *testing.T) {
	r := newRouter(t)

	rec := getWithBearer(t, r, "/livez", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "test", decode[authsdk.HealthResponse](t, rec).Version)

	rec = getWithBearer(t, r, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[authsdk.HealthResponse](t, rec)
	require.Equal(t, "ok", ready.Checks["database"])
	require.Equal(t, "ok", ready.Checks["signer"])
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))


	degraded := newRouter(t, func(r *httpapi.Router) {
		r.Checks = map[string]httpapi.Pinger{"redis": failingPinger{}}
	})
	rec = getWithBearer(t, degraded, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	ready = decode[authsdk.HealthResponse](t, rec)
	require.Equal(t, "degraded", ready.Status)
	require.Equal(t, "ok", ready.Checks["database"])
	require.Equal(t, "error: connection refused", ready.Checks["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	r := newRouter(t)
	_ = getWithBearer(t, r, service.PathDiscovery, "")

	rec := getWithBearer(t, r, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `idsrv_http_request_duration_seconds_count{code="200",route="GET /.well-known/openid-configuration"} 1`)
}
