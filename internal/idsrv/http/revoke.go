package http

import (
	"net/http"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/service"
	"github.com/aussiebroadwan/idsrv/pkg/httpx"
)

// RevokeHandler serves POST /connect/revoke following RFC 7009. Unknown and
// already invalid tokens still answer 200 so the endpoint cannot be used to
// probe for tokens.
type RevokeHandler struct {
	Credentials *service.CredentialService
	Tokens      *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Revocation Endpoint
//	@Description	Revokes an access token or refresh token issued to the calling client (RFC 7009).
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Security		ClientAuth
//	@Param			token			formData	string	true	"The token to revoke"
//	@Param			token_type_hint	formData	string	false	"Hint about token type"	Enums(access_token, refresh_token)
//	@Success		200				"Token revoked (or was already invalid)"
//	@Failure		400				{object}	authsdk.OAuth2Error	"error, error_description"
//	@Failure		401				{object}	authsdk.OAuth2Error	"error, error_description"
//	@Router			/connect/revoke [post]
func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	id, secret := clientCredentials(r)
	client, err := h.Credentials.AuthenticateClient(r.Context(), id, secret)
	if err != nil {
		writeServiceError(w, r, "revocation", err)
		return
	}

	err = h.Tokens.Revoke(r.Context(), client, r.PostForm.Get("token"), r.PostForm.Get("token_type_hint"))
	if err != nil {
		writeServiceError(w, r, "revocation", err)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusOK)
}
