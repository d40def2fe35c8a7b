// Package storetest holds a behavioural test suite that every store.Store
// driver must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
	"github.com/aussiebroadwan/idsrv/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Factory returns a migrated, empty store. The suite does not close it.
type Factory func(t *testing.T) store.Store

// Run executes the suite. Each subtest gets a fresh store.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"users", testUsers},
		{"provision is atomic", testProvisionAtomic},
		{"claims keep insertion order", testClaimsOrder},
		{"concurrent create of one username", testConcurrentCreate},
		{"transaction rollback", testTxRollback},
		{"clients", testClients},
		{"refresh tokens", testRefreshTokens},
		{"revocations", testRevocations},
		{"signing keys", testSigningKeys},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// NewUser returns a user with a fresh id and fixed timestamps.
func NewUser(username string) domain.User {
	return domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		Scopes:       []string{"api1", "openid"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func testUsers(t *testing.T, s store.Store) {
	ctx := t.Context()

	empty, err := s.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	secret := "JBSWY3DPEHPK3PXP"
	alice := NewUser("alice")
	alice.TOTPSecret = &secret
	require.NoError(t, s.Users().CreateUser(ctx, alice))

	got, err := s.Users().GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, alice.ID, got.ID)
	require.Equal(t, alice.PasswordHash, got.PasswordHash)
	require.Equal(t, []string{"api1", "openid"}, got.Scopes)
	require.NotNil(t, got.TOTPSecret)
	require.Equal(t, secret, *got.TOTPSecret)
	require.True(t, got.CreatedAt.Equal(now))

	got, err = s.Users().GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)

	_, err = s.Users().GetUserByUsername(ctx, "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.Users().CreateUser(ctx, NewUser("alice"))
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	empty, err = s.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)
}

func testProvisionAtomic(t *testing.T, s store.Store) {
	ctx := t.Context()

	bob := NewUser("bob")
	claims := []domain.Claim{
		{Type: "name", Value: "Bob Smith", ValueType: domain.ClaimString},
		{Type: "email_verified", Value: "true", ValueType: domain.ClaimBoolean},
	}
	require.NoError(t, s.Users().ProvisionUser(ctx, bob, claims))

	got, err := s.Claims().ListClaims(ctx, bob.ID)
	require.NoError(t, err)
	require.Equal(t, claims, got)

	// The store rejects the unknown value type after the user row was
	// written; the user must not survive.
	dave := NewUser("dave")
	err = s.Users().ProvisionUser(ctx, dave, []domain.Claim{
		{Type: "name", Value: "Dave"},
		{Type: "broken", Value: "x", ValueType: "bogus"},
	})
	require.Error(t, err)

	_, err = s.Users().GetUserByUsername(ctx, "dave")
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err = s.Claims().ListClaims(ctx, dave.ID)
	require.NoError(t, err)
	require.Empty(t, got)

	err = s.Users().ProvisionUser(ctx, NewUser("bob"), nil)
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func testClaimsOrder(t *testing.T, s store.Store) {
	ctx := t.Context()

	u := NewUser("erin")
	require.NoError(t, s.Users().CreateUser(ctx, u))

	require.NoError(t, s.Claims().AddClaims(ctx, u.ID, []domain.Claim{
		{Type: "given_name", Value: "Erin"},
		{Type: "family_name", Value: "Jones"},
	}))
	require.NoError(t, s.Claims().AddClaims(ctx, u.ID, []domain.Claim{
		{Type: "address", Value: `{"country":"Germany"}`, ValueType: domain.ClaimJSON},
	}))

	got, err := s.Claims().ListClaims(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "given_name", got[0].Type)
	require.Equal(t, domain.ClaimString, got[0].ValueType)
	require.Equal(t, "family_name", got[1].Type)
	require.Equal(t, "address", got[2].Type)
	require.Equal(t, domain.ClaimJSON, got[2].ValueType)

	err = s.Claims().AddClaims(ctx, idx.New().String(), []domain.Claim{{Type: "name", Value: "ghost"}})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testConcurrentCreate(t *testing.T, s store.Store) {
	ctx := t.Context()

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		conflict int
		other    []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Users().CreateUser(ctx, NewUser("carol"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, store.ErrAlreadyExists):
				conflict++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, other)
	require.Equal(t, 1, created)
	require.Equal(t, workers-1, conflict)

	_, err := s.Users().GetUserByUsername(ctx, "carol")
	require.NoError(t, err)
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := t.Context()
	boom := errors.New("boom")

	frank := NewUser("frank")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, frank); err != nil {
			return err
		}
		if err := tx.Claims().AddClaims(ctx, frank.ID, []domain.Claim{{Type: "name", Value: "Frank"}}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Users().GetUserByID(ctx, frank.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().ProvisionUser(ctx, frank, []domain.Claim{{Type: "name", Value: "Frank"}})
	})
	require.NoError(t, err)

	claims, err := s.Claims().ListClaims(ctx, frank.ID)
	require.NoError(t, err)
	require.Len(t, claims, 1)

	cancelled, cancel := context.WithCancel(ctx)
	gina := NewUser("gina")
	err = s.WithTx(cancelled, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(cancelled, gina); err != nil {
			return err
		}
		cancel()
		return cancelled.Err()
	})
	require.ErrorIs(t, err, context.Canceled)

	_, err = s.Users().GetUserByID(ctx, gina.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testClients(t *testing.T, s store.Store) {
	ctx := t.Context()

	c := domain.Client{
		ID:         "ro.client",
		Name:       "Resource Owner Client",
		SecretHash: "hash",
		GrantTypes: []string{domain.GrantPassword, domain.GrantRefreshToken},
		Scopes:     []string{"openid", "api1"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, s.Clients().CreateClient(ctx, c))

	got, err := s.Clients().GetClientByID(ctx, "ro.client")
	require.NoError(t, err)
	require.Equal(t, c.Name, got.Name)
	require.Equal(t, c.GrantTypes, got.GrantTypes)
	require.Equal(t, c.Scopes, got.Scopes)

	require.ErrorIs(t, s.Clients().CreateClient(ctx, c), store.ErrAlreadyExists)

	_, err = s.Clients().GetClientByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testRefreshTokens(t *testing.T, s store.Store) {
	ctx := t.Context()

	u := NewUser("henry")
	require.NoError(t, s.Users().CreateUser(ctx, u))
	require.NoError(t, s.Clients().CreateClient(ctx, domain.Client{
		ID: "c", Name: "c", SecretHash: "h", CreatedAt: now, UpdatedAt: now,
	}))

	live := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		ClientID:  "c",
		TokenHash: "live-hash",
		Scopes:    []string{"api1", "offline_access"},
		AMR:       []string{"pwd"},
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	stale := live
	stale.ID = idx.New().String()
	stale.TokenHash = "stale-hash"
	stale.ExpiresAt = now.Add(-time.Hour)

	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, live))
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, stale))

	got, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, "live-hash")
	require.NoError(t, err)
	require.Equal(t, live.ID, got.ID)
	require.Equal(t, live.Scopes, got.Scopes)
	require.Equal(t, live.AMR, got.AMR)
	require.False(t, got.Revoked)
	require.True(t, got.ExpiresAt.Equal(live.ExpiresAt))

	require.NoError(t, s.RefreshTokens().RevokeRefreshToken(ctx, live.ID))
	require.ErrorIs(t, s.RefreshTokens().RevokeRefreshToken(ctx, live.ID), store.ErrNotFound)

	got, err = s.RefreshTokens().GetRefreshTokenByHash(ctx, "live-hash")
	require.NoError(t, err)
	require.True(t, got.Revoked)

	n, err := s.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.RefreshTokens().GetRefreshTokenByHash(ctx, "stale-hash")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testRevocations(t *testing.T, s store.Store) {
	ctx := t.Context()

	rev := domain.Revocation{TokenID: "jti-1", ExpiresAt: now.Add(time.Hour), RevokedAt: now}
	require.NoError(t, s.Revocations().RevokeToken(ctx, rev))
	require.NoError(t, s.Revocations().RevokeToken(ctx, rev))

	revoked, err := s.Revocations().IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = s.Revocations().IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	require.False(t, revoked)

	n, err := s.Revocations().DeleteExpiredRevocations(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	revoked, err = s.Revocations().IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)
}

func testSigningKeys(t *testing.T, s store.Store) {
	ctx := t.Context()

	retired := now.Add(-time.Minute)
	keys := []domain.SigningKey{
		{Kid: "old", Algorithm: "EdDSA", PrivateKeyEncrypted: []byte{1}, CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
		{Kid: "retired", Algorithm: "EdDSA", PrivateKeyEncrypted: []byte{2}, CreatedAt: now.Add(-24 * time.Hour), RetiredAt: &retired, ExpiresAt: now.Add(time.Hour)},
		{Kid: "active", Algorithm: "EdDSA", PrivateKeyEncrypted: []byte{3}, CreatedAt: now, ExpiresAt: now.Add(24 * time.Hour)},
	}
	for _, k := range keys {
		require.NoError(t, s.SigningKeys().CreateSigningKey(ctx, k))
	}

	got, err := s.SigningKeys().ListSigningKeys(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "retired", got[0].Kid)
	require.NotNil(t, got[0].RetiredAt)
	require.True(t, got[0].RetiredAt.Equal(retired))
	require.Equal(t, "active", got[1].Kid)
	require.Nil(t, got[1].RetiredAt)
	require.Equal(t, []byte{3}, got[1].PrivateKeyEncrypted)

	n, err := s.SigningKeys().DeleteExpiredSigningKeys(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
