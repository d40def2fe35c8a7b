package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClaimValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		claim   Claim
		wantErr bool
	}{
		{"string default", Claim{Type: "name", Value: "Alice Smith"}, false},
		{"boolean", Claim{Type: "email_verified", Value: "true", ValueType: ClaimBoolean}, false},
		{"bad boolean", Claim{Type: "email_verified", Value: "yes please", ValueType: ClaimBoolean}, true},
		{"json", Claim{Type: "address", Value: `{"locality":"Heidelberg"}`, ValueType: ClaimJSON}, false},
		{"single quoted json", Claim{Type: "address", Value: `{ 'locality': 'Heidelberg' }`, ValueType: ClaimJSON}, true},
		{"unknown type", Claim{Type: "x", Value: "1", ValueType: "integer"}, true},
		{"empty type", Claim{Value: "1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.claim.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestReleasedClaims(t *testing.T) {
	t.Parallel()

	claims := []Claim{
		{Type: "name", Value: "Alice Smith"},
		{Type: "email", Value: "AliceSmith@email.com"},
		{Type: "email_verified", Value: "true", ValueType: ClaimBoolean},
		{Type: "address", Value: `{"country":"Germany"}`, ValueType: ClaimJSON},
		{Type: "internal_flag", Value: "x"},
	}

	require.Nil(t, ReleasedClaims(claims, []string{"api1"}))

	got := ReleasedClaims(claims, []string{"email", "address"})
	require.Equal(t, "AliceSmith@email.com", got["email"])
	require.Equal(t, true, got["email_verified"])
	require.Equal(t, json.RawMessage(`{"country":"Germany"}`), got["address"])
	require.NotContains(t, got, "name")
	require.NotContains(t, got, "internal_flag")
}

func TestIssuedTokenStateAt(t *testing.T) {
	t.Parallel()

	exp := time.Unix(2_000, 0)
	tok := IssuedToken{IssuedAt: exp.Add(-time.Hour), ExpiresAt: exp}

	require.Equal(t, TokenActive, tok.StateAt(tok.IssuedAt, false))
	require.Equal(t, TokenActive, tok.StateAt(exp, false))
	require.Equal(t, TokenExpired, tok.StateAt(exp.Add(time.Nanosecond), false))
	require.Equal(t, TokenRevoked, tok.StateAt(tok.IssuedAt, true))
	require.Equal(t, TokenRevoked, tok.StateAt(exp.Add(time.Hour), true))
	require.Equal(t, "expired", TokenExpired.String())
}

func TestValidatedGrantSubject(t *testing.T) {
	t.Parallel()

	g := ValidatedGrant{Client: Client{ID: "client"}}
	require.Equal(t, "client", g.Subject())

	g.User = &User{ID: "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV"}
	require.Equal(t, "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV", g.Subject())
}
