package domain

import "time"

// TokenState is a point in the access token lifecycle:
// Issued -> Active -> {Expired | Revoked}. Expired and Revoked are terminal.
type TokenState int

const (
	TokenInvalid TokenState = iota
	TokenActive
	TokenExpired
	TokenRevoked
)

func (s TokenState) String() string {
	switch s {
	case TokenActive:
		return "active"
	case TokenExpired:
		return "expired"
	case TokenRevoked:
		return "revoked"
	}
	return "invalid"
}

// IssuedToken is a freshly minted access token.
type IssuedToken struct {
	ID        string // jti, key of the revocation list
	Subject   string
	ClientID  string
	Audience  []string
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Token     string // compact JWS
}

// StateAt derives the lifecycle state at now for a validly signed token.
// Revocation wins over expiry.
func (t IssuedToken) StateAt(now time.Time, revoked bool) TokenState {
	switch {
	case revoked:
		return TokenRevoked
	case now.After(t.ExpiresAt):
		return TokenExpired
	}
	return TokenActive
}

// TokenPair is the token endpoint success response.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    time.Duration
	Scopes       []string
}

// RefreshToken is a stored refresh token. Only the fingerprint of the
// opaque value is kept.
type RefreshToken struct {
	ID        string
	UserID    string
	ClientID  string
	TokenHash string
	Scopes    []string
	AMR       []string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Revocation is an entry in the revocation list. Entries are only needed
// until the token would have expired anyway.
type Revocation struct {
	TokenID   string
	ExpiresAt time.Time
	RevokedAt time.Time
}
