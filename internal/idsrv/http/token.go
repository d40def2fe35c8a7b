package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/service"
	"github.com/aussiebroadwan/idsrv/pkg/authsdk"
	"github.com/aussiebroadwan/idsrv/pkg/httpx"
)

// TokenHandler serves POST /connect/token.
type TokenHandler struct {
	Tokens *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Endpoint
//	@Description	Issues an access token, and a refresh token when offline_access is granted, for the password, client_credentials and refresh_token grants.
//	@Description	Clients authenticate with HTTP Basic or client_id/client_secret form fields.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Security		ClientAuth
//	@Param			grant_type		formData	string					true	"Grant type"	Enums(password, client_credentials, refresh_token)
//	@Param			client_id		formData	string					false	"Client identifier (when not using HTTP Basic)"
//	@Param			client_secret	formData	string					false	"Client secret (when not using HTTP Basic)"
//	@Param			username		formData	string					false	"Resource owner username (password grant)"
//	@Param			password		formData	string					false	"Resource owner password (password grant)"
//	@Param			otp				formData	string					false	"Six digit TOTP code for users with a second factor"
//	@Param			refresh_token	formData	string					false	"Refresh token (refresh_token grant)"
//	@Param			scope			formData	string					false	"Space-delimited list of scopes"
//	@Success		200				{object}	authsdk.TokenResponse	"access_token, token_type, expires_in, scope, refresh_token"
//	@Failure		400				{object}	authsdk.OAuth2Error		"error, error_description"
//	@Failure		401				{object}	authsdk.OAuth2Error		"error, error_description"
//	@Failure		500				{object}	authsdk.OAuth2Error		"error, error_description"
//	@Header			200				{string}	Cache-Control			"no-store"
//	@Header			200				{string}	Pragma					"no-cache"
//	@Router			/connect/token [post]
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	form := r.PostForm
	clientID, clientSecret := clientCredentials(r)
	_, scopeRequested := form["scope"]

	req := domain.GrantRequest{
		GrantType:      strings.TrimSpace(form.Get("grant_type")),
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		Username:       strings.TrimSpace(form.Get("username")),
		Password:       form.Get("password"),
		OTP:            strings.TrimSpace(form.Get("otp")),
		RefreshToken:   form.Get("refresh_token"),
		Scopes:         httpx.ParseSpaceDelimitedFields(form.Get("scope")),
		ScopeRequested: scopeRequested,
	}

	pair, err := h.Tokens.Exchange(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, req.GrantType+" grant", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
		Scope:        strings.Join(pair.Scopes, " "),
		RefreshToken: pair.RefreshToken,
	})
}
