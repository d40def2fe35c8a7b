package http

import (
	"net/http"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/service"
	"github.com/aussiebroadwan/idsrv/pkg/authsdk"
	"github.com/aussiebroadwan/idsrv/pkg/httpx"
)

// IntrospectHandler serves POST /connect/introspect following RFC 7662.
// Only registered clients may introspect.
type IntrospectHandler struct {
	Credentials  *service.CredentialService
	Introspector *service.Introspector
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Introspection Endpoint
//	@Description	Reports whether an access token is active and returns its metadata (RFC 7662).
//	@Description	Expired, revoked, tampered and unknown tokens all read as {"active": false}.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Security		ClientAuth
//	@Param			token			formData	string							true	"The token to introspect"
//	@Param			token_type_hint	formData	string							false	"Hint about token type"	Enums(access_token, refresh_token)
//	@Success		200				{object}	authsdk.IntrospectionResponse	"Token introspection result"
//	@Failure		400				{object}	authsdk.OAuth2Error				"error, error_description"
//	@Failure		401				{object}	authsdk.OAuth2Error				"error, error_description"
//	@Failure		500				{object}	authsdk.OAuth2Error				"server_error when the revocation list is unreachable"
//	@Router			/connect/introspect [post]
func (h *IntrospectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	id, secret := clientCredentials(r)
	if _, err := h.Credentials.AuthenticateClient(r.Context(), id, secret); err != nil {
		writeServiceError(w, r, "introspection", err)
		return
	}

	token := r.PostForm.Get("token")
	if token == "" {
		authsdk.ErrInvalidRequest.WithDescription("token is required").WriteError(w)
		return
	}

	// Refresh tokens are opaque and never introspected.
	if r.PostForm.Get("token_type_hint") == "refresh_token" {
		httpx.WriteJSON(w, http.StatusOK, authsdk.IntrospectionResponse{Active: false})
		return
	}

	resp, err := h.Introspector.Introspect(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, "introspection", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
