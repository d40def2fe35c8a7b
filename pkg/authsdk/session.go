package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
)

// refreshSkew renews the access token this long before it expires.
const refreshSkew = 30 * time.Second

// Session holds the tokens of one grant. It is safe for concurrent use.
type Session struct {
	client       *SDKClient
	clientID     string
	clientSecret string

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	scopes       []string
}

func newSession(client *SDKClient, clientID, clientSecret string, tok *TokenResponse) *Session {
	s := &Session{client: client, clientID: clientID, clientSecret: clientSecret}
	s.store(tok)
	return s
}

// store must be called with mu held for writing, or before s is shared.
func (s *Session) store(tok *TokenResponse) {
	s.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		s.refreshToken = tok.RefreshToken
	}
	s.expiresAt = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - refreshSkew)
	s.scopes = strings.Fields(tok.Scope)
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Scopes returns the granted scopes.
func (s *Session) Scopes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.scopes)
}

func (s *Session) HasScope(scope string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.scopes, scope)
}

// Identity calls the protected /identity API and returns the caller's
// claims as the server sees them.
func (s *Session) Identity(ctx context.Context) ([]IdentityClaim, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/identity")
	if err != nil {
		return nil, err
	}
	var out []IdentityClaim
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

// UserInfo returns the OpenID Connect userinfo claims.
func (s *Session) UserInfo(ctx context.Context) (map[string]any, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/connect/userinfo")
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

// Revoke revokes the refresh token, or the access token when there is
// none.
func (s *Session) Revoke(ctx context.Context) error {
	s.mu.RLock()
	token, hint := s.refreshToken, "refresh_token"
	if token == "" {
		token, hint = s.accessToken, "access_token"
	}
	s.mu.RUnlock()

	return s.client.Revoke(ctx, s.clientID, s.clientSecret, token, hint)
}

func (s *Session) doAuthRequest(ctx context.Context, method, path string) (*http.Response, error) {
	token, err := s.validToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.doRequest(ctx, method, path, nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// validToken returns the access token, refreshing it first when it is
// about to expire and a refresh token is held.
func (s *Session) validToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) || s.refreshToken == "" {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}

	tok, err := s.client.RefreshGrant(ctx, s.clientID, s.clientSecret, s.refreshToken)
	if err != nil {
		var oauthErr *OAuth2Error
		if errors.As(err, &oauthErr) {
			return "", err
		}
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	s.store(tok)
	return s.accessToken, nil
}
