package jwtx

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultAccessTokenTTL is the lifetime of an access token when the
	// issuer is not configured otherwise.
	DefaultAccessTokenTTL = time.Hour

	// DefaultRefreshTokenTTL is the lifetime of a refresh token.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Authentication method references (RFC 8176) carried in the "amr" claim.
const (
	AMRPassword = "pwd"
	AMROTP      = "otp"
	AMRMFA      = "mfa"
	AMRClient   = "client"
	AMRRefresh  = "refresh"
)

// Claims are the access token claims shared by the issuer and every
// resource that verifies tokens.
type Claims struct {
	jwt.RegisteredClaims

	// ClientID is the OAuth2 client the token was issued to.
	ClientID string `json:"client_id,omitempty"`

	// Scopes granted to the token.
	Scopes []string `json:"scope,omitempty"`

	// AMR lists how the subject authenticated ("pwd", "otp", "client").
	AMR []string `json:"amr,omitempty"`

	// Username is set for user subjects only.
	Username string `json:"username,omitempty"`

	// Identity holds additional subject claims (name, email, address, ...)
	// that are flattened into the top level of the JSON payload.
	Identity map[string]any `json:"-"`
}

// registeredNames are the payload members owned by the typed fields above.
// Identity entries never override them.
var registeredNames = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "exp": {}, "nbf": {}, "iat": {}, "jti": {},
	"client_id": {}, "scope": {}, "amr": {}, "username": {},
}

// AccessClaimsParams describes a token about to be minted.
type AccessClaimsParams struct {
	ID       string
	Issuer   string
	Subject  string
	Audience []string
	ClientID string
	Scopes   []string
	AMR      []string
	Username string
	Identity map[string]any
	IssuedAt time.Time
	TTL      time.Duration
}

// NewAccessClaims builds claims from p. Timestamps are truncated to whole
// seconds because that is the resolution of the NumericDate encoding.
func NewAccessClaims(p AccessClaimsParams) Claims {
	iat := p.IssuedAt.UTC().Truncate(time.Second)

	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        p.ID,
			Issuer:    p.Issuer,
			Subject:   p.Subject,
			Audience:  jwt.ClaimStrings(p.Audience),
			IssuedAt:  jwt.NewNumericDate(iat),
			NotBefore: jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(p.TTL)),
		},
		ClientID: p.ClientID,
		Scopes:   p.Scopes,
		AMR:      p.AMR,
		Username: p.Username,
		Identity: p.Identity,
	}
}

// MarshalJSON encodes the typed claims and merges Identity into the same
// object.
func (c Claims) MarshalJSON() ([]byte, error) {
	type plain Claims
	base, err := json.Marshal(plain(c))
	if err != nil || len(c.Identity) == 0 {
		return base, err
	}

	merged := make(map[string]json.RawMessage, len(c.Identity)+8)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for name, value := range c.Identity {
		if _, taken := registeredNames[name]; taken {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		merged[name] = raw
	}
	return json.Marshal(merged)
}

// UnmarshalJSON is the inverse of MarshalJSON: members that are not typed
// fields land in Identity.
func (c *Claims) UnmarshalJSON(data []byte) error {
	type plain Claims
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	for name, raw := range members {
		if _, taken := registeredNames[name]; taken {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if p.Identity == nil {
			p.Identity = make(map[string]any)
		}
		p.Identity[name] = v
	}

	*c = Claims(p)
	return nil
}

// HasScope reports whether scope was granted.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// ValidateIssuer checks the iss claim. An empty expectation is not enforced.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected != "" && c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience requires at least one of expected in aud.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateExpiry checks exp and nbf against now. A token is still valid at
// the exact instant of exp and expired strictly after it.
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
