package domain

import (
	"slices"
	"time"
)

// Grant types understood by the token endpoint.
const (
	GrantPassword          = "password"
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
)

// ScopeOfflineAccess asks for a refresh token alongside the access token.
const ScopeOfflineAccess = "offline_access"

type Client struct {
	ID         string // client_id presented on the wire
	Name       string
	SecretHash string
	GrantTypes []string
	Scopes     []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c Client) AllowsGrant(grantType string) bool {
	return slices.Contains(c.GrantTypes, grantType)
}
