package httpx

import (
	"net/http"
	"slices"
	"strings"
)

// RequireAnyScope lets the request through if at least one scope matches.
func RequireAnyScope(required ...string) Middleware {
	return requireScopes(required, func(have []string) bool {
		return slices.ContainsFunc(required, func(s string) bool { return slices.Contains(have, s) })
	})
}

// RequireAllScopes lets the request through only if every scope is held.
func RequireAllScopes(required ...string) Middleware {
	return requireScopes(required, func(have []string) bool {
		for _, s := range required {
			if !slices.Contains(have, s) {
				return false
			}
		}
		return true
	})
}

func requireScopes(required []string, allowed func(have []string) bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed(scopesFromContext(r.Context())) {
				w.Header().Set("WWW-Authenticate",
					`Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
				WriteJSON(w, http.StatusForbidden, map[string]string{
					"error":             "insufficient_scope",
					"error_description": "token lacks a required scope",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
