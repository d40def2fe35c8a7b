package httpx

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
	"github.com/aussiebroadwan/idsrv/pkg/slogx"
)

// TokenVerifier validates a bearer token completely: signature, expiry and
// any revocation state.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (jwtx.Claims, error)
}

// outageReporter is implemented by verifiers that can tell a backend outage
// apart from a bad token.
type outageReporter interface {
	Unavailable(err error) bool
}

// Authn rejects requests without a valid bearer token with 401 and stores
// the verified claims in the request context. When the verifier reports an
// outage the request fails with 500 server_error instead.
func Authn(v TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(ctx, raw)
			if o, ok := v.(outageReporter); ok && err != nil && o.Unavailable(err) {
				slogx.FromContext(ctx).Error("bearer token verification unavailable", "err", err)
				WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
				return
			}
			if err != nil {
				slogx.FromContext(ctx).Info("bearer token rejected", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithClaims(ctx, claims)))
		})
	}
}

// writeBearerError answers per RFC 6750 §3.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": desc,
	})
}
