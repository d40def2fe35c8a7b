package domain

// GrantRequest is one token endpoint call. It only lives for the duration
// of a single validation.
type GrantRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string

	Username string
	Password string
	OTP      string

	RefreshToken string

	// Scopes as requested. ScopeRequested distinguishes "scope" being absent
	// from it being present but empty.
	Scopes         []string
	ScopeRequested bool
}

// ValidatedGrant is what the validator hands to the issuer: the resolved
// subject and the final scope.
type ValidatedGrant struct {
	GrantType string
	Client    Client
	User      *User // nil for client_credentials
	Claims    []Claim
	Scopes    []string
	AMR       []string

	// RefreshTokenID is set when the grant consumed a refresh token that
	// must be rotated.
	RefreshTokenID string
}

// Subject is the token "sub": the user id, or the client id when a client
// acts on its own behalf.
func (g ValidatedGrant) Subject() string {
	if g.User != nil {
		return g.User.ID
	}
	return g.Client.ID
}
