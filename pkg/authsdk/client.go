package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
)

// SDKClient talks to an idsrv instance.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// PasswordCredentials is a resource owner password grant request.
type PasswordCredentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	OTP          string // required for users with a second factor
	Scopes       []string
}

// Discover fetches the OpenID Provider metadata.
func (c *SDKClient) Discover(ctx context.Context) (*DiscoveryDocument, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/.well-known/openid-configuration", nil, nil)
	if err != nil {
		return nil, err
	}
	var doc DiscoveryDocument
	if err := decodeJSON(resp, &doc, http.StatusOK); err != nil {
		return nil, err
	}
	return &doc, nil
}

// JWKS fetches the public signing keys.
func (c *SDKClient) JWKS(ctx context.Context) (*jwtx.JWKS, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/.well-known/jwks.json", nil, nil)
	if err != nil {
		return nil, err
	}
	var set jwtx.JWKS
	if err := decodeJSON(resp, &set, http.StatusOK); err != nil {
		return nil, err
	}
	return &set, nil
}

func (c *SDKClient) PasswordGrant(ctx context.Context, creds PasswordCredentials) (*TokenResponse, error) {
	data := url.Values{
		"grant_type": {"password"},
		"username":   {creds.Username},
		"password":   {creds.Password},
	}
	if creds.OTP != "" {
		data.Set("otp", creds.OTP)
	}
	setScopes(data, creds.Scopes)
	return c.requestToken(ctx, creds.ClientID, creds.ClientSecret, data)
}

// ClientCredentialsGrant requests a token for the client itself. No
// refresh token is issued.
func (c *SDKClient) ClientCredentialsGrant(ctx context.Context, clientID, clientSecret string, scopes []string) (*TokenResponse, error) {
	data := url.Values{"grant_type": {"client_credentials"}}
	setScopes(data, scopes)
	return c.requestToken(ctx, clientID, clientSecret, data)
}

// RefreshGrant exchanges a refresh token. The old refresh token is
// invalidated and a new one returned.
func (c *SDKClient) RefreshGrant(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return c.requestToken(ctx, clientID, clientSecret, data)
}

// Introspect asks the server whether token is active (RFC 7662).
func (c *SDKClient) Introspect(ctx context.Context, clientID, clientSecret, token string) (*IntrospectionResponse, error) {
	resp, err := c.postForm(ctx, "/connect/introspect", clientID, clientSecret, url.Values{"token": {token}})
	if err != nil {
		return nil, err
	}
	var out IntrospectionResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Revoke invalidates an access or refresh token (RFC 7009). hint may be
// empty, "access_token" or "refresh_token".
func (c *SDKClient) Revoke(ctx context.Context, clientID, clientSecret, token, hint string) error {
	data := url.Values{"token": {token}}
	if hint != "" {
		data.Set("token_type_hint", hint)
	}
	resp, err := c.postForm(ctx, "/connect/revoke", clientID, clientSecret, data)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusOK)
}

func (c *SDKClient) Liveness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

func (c *SDKClient) Readiness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *SDKClient) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var out HealthResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthenticateWithPassword runs the password grant and wraps the result in
// a Session.
func (c *SDKClient) AuthenticateWithPassword(ctx context.Context, creds PasswordCredentials) (*Session, error) {
	tok, err := c.PasswordGrant(ctx, creds)
	if err != nil {
		return nil, err
	}
	return newSession(c, creds.ClientID, creds.ClientSecret, tok), nil
}

// AuthenticateWithClientCredentials runs the client credentials grant and
// wraps the result in a Session.
func (c *SDKClient) AuthenticateWithClientCredentials(ctx context.Context, clientID, clientSecret string, scopes []string) (*Session, error) {
	tok, err := c.ClientCredentialsGrant(ctx, clientID, clientSecret, scopes)
	if err != nil {
		return nil, err
	}
	return newSession(c, clientID, clientSecret, tok), nil
}

func (c *SDKClient) requestToken(ctx context.Context, clientID, clientSecret string, data url.Values) (*TokenResponse, error) {
	resp, err := c.postForm(ctx, "/connect/token", clientID, clientSecret, data)
	if err != nil {
		return nil, err
	}
	var tok TokenResponse
	if err := decodeJSON(resp, &tok, http.StatusOK); err != nil {
		return nil, err
	}
	return &tok, nil
}

func setScopes(data url.Values, scopes []string) {
	if len(scopes) > 0 {
		data.Set("scope", strings.Join(scopes, " "))
	}
}
