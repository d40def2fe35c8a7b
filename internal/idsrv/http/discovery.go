package http

import (
	"net/http"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/service"
	"github.com/aussiebroadwan/idsrv/pkg/httpx"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
)

// DiscoveryHandler godoc
//
//	@Summary		OpenID Provider Metadata
//	@Description	Returns the discovery document describing the endpoints, grant types and scopes of this server.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	domain.DiscoveryDocument	"OpenID Provider metadata"
//	@Router			/.well-known/openid-configuration [get]
func DiscoveryHandler(p *service.DiscoveryPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, p.Document())
	}
}

// JWKSHandler exposes the JSON Web Key Set for public key discovery.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set used to verify access tokens, including retired keys still within their grace period.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	jwtx.JWKS	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get]
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, keys.PublicJWKS())
	}
}
