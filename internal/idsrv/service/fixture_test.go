package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/metrics"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/revocation"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store/drivers/sqlite"
	"github.com/aussiebroadwan/idsrv/pkg/authsdk"
	"github.com/aussiebroadwan/idsrv/pkg/cryptox"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
)

const testIssuer = "http://localhost:8080"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store        store.Store
	clock        *testClock
	keys         *jwtx.KeyManager
	revocations  revocation.List
	creds        *CredentialService
	introspector *Introspector
	tokens       *TokenService
}

// newFixture wires the services over a migrated in-memory store seeded
// with the default clients and users.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    testIssuer,
		Audience:  []string{"idsrv"},
		NumKeys:   1,
	})
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m := metrics.New()
	revs := revocation.NewStoreList(st)

	creds := &CredentialService{
		Store:   st,
		Hasher:  cryptox.NewHasher("test-pepper"),
		Metrics: m,
		Now:     clock.Now,
	}
	introspector := &Introspector{
		Verifier:    km.Verifier(),
		Revocations: revs,
		Metrics:     m,
		Now:         clock.Now,
	}
	tokens := &TokenService{
		Validator: &GrantValidator{Credentials: creds, Now: clock.Now},
		Issuer: &TokenIssuer{
			Keys:      km,
			Issuer:    testIssuer,
			Audience:  []string{"idsrv"},
			AccessTTL: time.Hour,
			Now:       clock.Now,
		},
		Introspector: introspector,
		Revocations:  revs,
		Metrics:      m,
		RefreshTTL:   24 * time.Hour,
		Now:          clock.Now,
	}

	f := &fixture{
		store:        st,
		clock:        clock,
		keys:         km,
		revocations:  revs,
		creds:        creds,
		introspector: introspector,
		tokens:       tokens,
	}

	for _, res := range creds.Seed(t.Context(), DefaultSeed()) {
		require.Equal(t, ProvisionCreated, res.Outcome, res.Name)
	}
	return f
}

func passwordGrant(username, password string, scopes ...string) domain.GrantRequest {
	return domain.GrantRequest{
		GrantType:      domain.GrantPassword,
		ClientID:       "ro.client",
		ClientSecret:   "secret",
		Username:       username,
		Password:       password,
		Scopes:         scopes,
		ScopeRequested: len(scopes) > 0,
	}
}

func (f *fixture) exchange(t *testing.T, req domain.GrantRequest) domain.TokenPair {
	t.Helper()
	pair, err := f.tokens.Exchange(t.Context(), req)
	require.NoError(t, err)
	return pair
}

func (f *fixture) client(t *testing.T, id string) domain.Client {
	t.Helper()
	c, err := f.creds.client(t.Context(), id)
	require.NoError(t, err)
	return c
}

func (f *fixture) user(t *testing.T, username string) domain.User {
	t.Helper()
	u, err := f.creds.FindUser(t.Context(), username)
	require.NoError(t, err)
	return u
}

// flipPayloadBit toggles bit b of byte i of the payload segment of a
// compact JWS.
func flipPayloadBit(t *testing.T, token string, i int, b uint) string {
	t.Helper()

	start := strings.IndexByte(token, '.') + 1
	end := strings.LastIndexByte(token, '.')
	require.Less(t, start+i, end)

	out := []byte(token)
	out[start+i] ^= 1 << b
	return string(out)
}

func payloadLen(token string) int {
	return strings.LastIndexByte(token, '.') - strings.IndexByte(token, '.') - 1
}

func (f *fixture) introspect(t *testing.T, token string) authsdk.IntrospectionResponse {
	t.Helper()
	resp, err := f.introspector.Introspect(t.Context(), token)
	require.NoError(t, err)
	return resp
}

// downList is a revocation list whose backend cannot be reached.
type downList struct{}

func (downList) Revoke(context.Context, string, time.Time) error { return store.ErrUnavailable }
func (downList) IsRevoked(context.Context, string) (bool, error) { return false, store.ErrUnavailable }
func (downList) Purge(context.Context, time.Time) (int64, error) { return 0, store.ErrUnavailable }

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
