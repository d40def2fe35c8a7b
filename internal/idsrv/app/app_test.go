package app

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	httpapi "github.com/aussiebroadwan/idsrv/internal/idsrv/http"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/service"
	"github.com/aussiebroadwan/idsrv/pkg/authsdk"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		Issuer:               "http://localhost:8080",
		Scopes:               []string{"openid", "profile", "email", "address", "api1", "offline_access"},
		Algorithm:            jwtx.AlgorithmEdDSA,
		NumKeys:              1,
		KeyStorageMode:       KeyStorageEphemeral,
		KeyLifetime:          90 * 24 * time.Hour,
		MasterKeyPath:        filepath.Join(dir, "master.key"),
		AccessTTL:            time.Hour,
		RefreshTTL:           24 * time.Hour,
		DatabaseDriver:       DriverSQLite,
		DatabaseFile:         ":memory:",
		StoreTimeout:         5 * time.Second,
		PepperFile:           filepath.Join(dir, "pepper"),
		RevocationBackend:    RevocationStore,
		Env:                  "test",
		LogLevel:             "error",
		LogOutput:            io.Discard,
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
		RateLimits:           httpapi.DefaultRateLimits,
	}
}

func newTestApp(t *testing.T, cfg Config) (*Application, *authsdk.SDKClient) {
	t.Helper()

	app, err := New(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	return app, authsdk.NewSDKClient(srv.URL)
}

func TestApplicationPasswordFlow(t *testing.T) {
	app, client := newTestApp(t, testConfig(t))
	for _, res := range app.Seed(t.Context(), nil) {
		require.Equal(t, service.ProvisionCreated, res.Outcome, res.Name)
	}

	doc, err := client.Discover(t.Context())
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", doc.Issuer)
	require.Equal(t, "http://localhost:8080/connect/token", doc.TokenEndpoint)

	session, err := client.AuthenticateWithPassword(t.Context(), authsdk.PasswordCredentials{
		ClientID:     "ro.client",
		ClientSecret: "secret",
		Username:     "alice",
		Password:     "Pass123$",
		Scopes:       []string{"api1"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"api1"}, session.Scopes())
	require.Empty(t, session.RefreshToken())

	claims, err := session.Identity(t.Context())
	require.NoError(t, err)
	require.Contains(t, claims, authsdk.IdentityClaim{Type: "scope", Value: "api1"})
	require.Contains(t, claims, authsdk.IdentityClaim{Type: "client_id", Value: "ro.client"})

	info, err := client.Introspect(t.Context(), "ro.client", "secret", session.AccessToken())
	require.NoError(t, err)
	require.True(t, info.Active)
	require.Equal(t, "alice", info.Username)

	require.NoError(t, client.Revoke(t.Context(), "ro.client", "secret", session.AccessToken(), ""))

	info, err = client.Introspect(t.Context(), "ro.client", "secret", session.AccessToken())
	require.NoError(t, err)
	require.False(t, info.Active)

	_, err = session.Identity(t.Context())
	require.ErrorIs(t, err, authsdk.ErrInvalidToken)
}

func TestApplicationRejectsBadCredentials(t *testing.T) {
	app, client := newTestApp(t, testConfig(t))
	app.Seed(t.Context(), nil)

	_, err := client.PasswordGrant(t.Context(), authsdk.PasswordCredentials{
		ClientID:     "ro.client",
		ClientSecret: "secret",
		Username:     "alice",
		Password:     "wrong",
	})
	require.ErrorIs(t, err, authsdk.ErrInvalidGrant)

	_, err = client.ClientCredentialsGrant(t.Context(), "client", "not-the-secret", nil)
	require.ErrorIs(t, err, authsdk.ErrInvalidClient)
}

func TestApplicationSeedIsIdempotent(t *testing.T) {
	app, _ := newTestApp(t, testConfig(t))

	app.Seed(t.Context(), nil)
	for _, res := range app.Seed(t.Context(), nil) {
		require.Equal(t, service.ProvisionAlreadyExists, res.Outcome, res.Name)
	}
}

func TestApplicationHealth(t *testing.T) {
	_, client := newTestApp(t, testConfig(t))

	live, err := client.Liveness(t.Context())
	require.NoError(t, err)
	require.Equal(t, BuildVersion, live.Version)

	ready, err := client.Readiness(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Checks["database"])
}

func TestApplicationServesMetrics(t *testing.T) {
	app, client := newTestApp(t, testConfig(t))
	_, err := client.Discover(t.Context())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "idsrv_http_request_duration_seconds")
}

func TestPersistentKeysSurviveRestart(t *testing.T) {
	cfg := testConfig(t)
	cfg.KeyStorageMode = KeyStoragePersistent
	cfg.DatabaseFile = filepath.Join(t.TempDir(), "idsrv.db")
	require.NoError(t, os.WriteFile(cfg.MasterKeyPath, []byte("correct horse battery staple"), 0o600))

	first, err := New(t.Context(), cfg)
	require.NoError(t, err)
	first.Seed(t.Context(), nil)

	tok, err := first.tokens.Exchange(t.Context(), clientCredentials("client", "secret"))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	claims, err := second.introspector.Verify(t.Context(), tok.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "client", claims.ClientID)
}

func TestNewFailsWithoutMasterKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.KeyStorageMode = KeyStoragePersistent

	_, err := New(t.Context(), cfg)
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func clientCredentials(id, secret string) domain.GrantRequest {
	return domain.GrantRequest{
		GrantType:    domain.GrantClientCredentials,
		ClientID:     id,
		ClientSecret: secret,
	}
}
