package http

import (
	"errors"
	"maps"
	"net/http"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/service"
	"github.com/aussiebroadwan/idsrv/pkg/authsdk"
	"github.com/aussiebroadwan/idsrv/pkg/httpx"
	"github.com/aussiebroadwan/idsrv/pkg/slogx"
)

type UserInfoHandler struct {
	Credentials *service.CredentialService
}

// ServeHTTP handles the OpenID Connect UserInfo endpoint.
//
//	@Summary		Get user information
//	@Description	Returns the claims of the token subject that its scopes release. Requires the 'openid' scope.
//	@Tags			OAuth2
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	map[string]any		"sub plus released claims"
//	@Failure		401	{object}	authsdk.OAuth2Error	"Invalid or missing access token"
//	@Failure		403	{object}	authsdk.OAuth2Error	"Token lacks the openid scope"
//	@Failure		500	{object}	authsdk.OAuth2Error	"Internal server error"
//	@Router			/connect/userinfo [get]
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	claims, ok := httpx.ClaimsFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	user, err := h.Credentials.FindUserByID(ctx, claims.Subject)
	if errors.Is(err, service.ErrNotFound) {
		// Client credentials tokens have no user behind them.
		authsdk.ErrInvalidToken.WithDescription("token subject is not a user").WriteError(w)
		return
	}
	if err != nil {
		log.Error("failed to load user", "sub", claims.Subject, "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	stored, err := h.Credentials.Claims(ctx, user.ID)
	if err != nil {
		log.Error("failed to load claims", "sub", user.ID, "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	out := map[string]any{"sub": user.ID}
	maps.Copy(out, domain.ReleasedClaims(stored, claims.Scopes))
	if claims.HasScope("profile") {
		out["preferred_username"] = user.Username
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
