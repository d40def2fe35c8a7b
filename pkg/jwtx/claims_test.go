package jwtx

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewAccessClaims(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 750_000_000, time.UTC)
	c := NewAccessClaims(AccessClaimsParams{
		ID:       "jti-1",
		Issuer:   "http://localhost:5000",
		Subject:  "user-1",
		Audience: []string{"api1"},
		ClientID: "ro.client",
		Scopes:   []string{"api1"},
		AMR:      []string{AMRPassword},
		Username: "alice",
		IssuedAt: now,
		TTL:      time.Hour,
	})

	require.Equal(t, now.Truncate(time.Second), c.IssuedAt.Time)
	require.Equal(t, now.Truncate(time.Second).Add(time.Hour), c.ExpiresAt.Time)
	require.Equal(t, c.IssuedAt.Time, c.NotBefore.Time)
	require.True(t, c.HasScope("api1"))
	require.False(t, c.HasScope("openid"))
}

func TestClaims_JSONFlattensIdentity(t *testing.T) {
	t.Parallel()

	c := NewAccessClaims(AccessClaimsParams{
		ID:       "jti-2",
		Issuer:   "iss",
		Subject:  "sub",
		Scopes:   []string{"profile", "address"},
		IssuedAt: time.Unix(1_700_000_000, 0),
		TTL:      time.Minute,
		Identity: map[string]any{
			"name":           "Alice Smith",
			"email_verified": true,
			"address":        json.RawMessage(`{"locality":"Heidelberg","postal_code":69118}`),
			"sub":            "must-not-override",
		},
	})

	raw, err := json.Marshal(c)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	require.Equal(t, "Alice Smith", flat["name"])
	require.Equal(t, true, flat["email_verified"])
	require.Equal(t, "sub", flat["sub"])
	require.Equal(t, "Heidelberg", flat["address"].(map[string]any)["locality"])
	require.Equal(t, []any{"profile", "address"}, flat["scope"])

	var back Claims
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, "sub", back.Subject)
	require.Equal(t, []string{"profile", "address"}, back.Scopes)
	require.Equal(t, "Alice Smith", back.Identity["name"])
	require.Equal(t, true, back.Identity["email_verified"])
	require.NotContains(t, back.Identity, "sub")
	require.NotContains(t, back.Identity, "exp")
}

func TestClaims_JSONWithoutIdentity(t *testing.T) {
	t.Parallel()

	c := Claims{ClientID: "client"}
	raw, err := json.Marshal(c)
	require.NoError(t, err)
	require.JSONEq(t, `{"client_id":"client"}`, string(raw))

	var back Claims
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Nil(t, back.Identity)
}

func TestClaims_ValidateExpiryBoundary(t *testing.T) {
	t.Parallel()

	c := NewAccessClaims(AccessClaimsParams{IssuedAt: time.Unix(1_000, 0), TTL: 10 * time.Second})
	exp := c.ExpiresAt.Time

	require.NoError(t, c.ValidateExpiry(exp.Add(-time.Second)))
	require.NoError(t, c.ValidateExpiry(exp))
	require.ErrorIs(t, c.ValidateExpiry(exp.Add(time.Nanosecond)), ErrExpired)
	require.ErrorIs(t, c.ValidateExpiry(c.IssuedAt.Time.Add(-time.Second)), ErrNotYetValid)
}

func TestClaims_ValidateIssuerAndAudience(t *testing.T) {
	t.Parallel()

	c := NewAccessClaims(AccessClaimsParams{Issuer: "a", Audience: []string{"api1", "api2"}})

	require.NoError(t, c.ValidateIssuer(""))
	require.NoError(t, c.ValidateIssuer("a"))
	require.ErrorIs(t, c.ValidateIssuer("b"), ErrIssuer)

	require.NoError(t, c.ValidateAudience(nil))
	require.NoError(t, c.ValidateAudience([]string{"other", "api2"}))
	require.ErrorIs(t, c.ValidateAudience([]string{"other"}), ErrAudience)
}
