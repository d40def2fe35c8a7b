package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/idsrv/pkg/authsdk"
	"github.com/aussiebroadwan/idsrv/pkg/httpx"
)

// parseForm checks the content type and parses the body. It writes the
// error response itself and reports whether the caller may continue.
func parseForm(w http.ResponseWriter, r *http.Request) bool {
	if !httpx.IsFormRequest(r) {
		authsdk.ErrInvalidContentType.WriteError(w)
		return false
	}
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidRequest.WithDescription("malformed form body").WriteError(w)
		return false
	}
	return true
}

// clientCredentials returns the client id and secret from HTTP Basic
// (client_secret_basic) or the form body (client_secret_post). Basic
// credentials are form-encoded per RFC 6749 section 2.3.1.
func clientCredentials(r *http.Request) (id, secret string) {
	if user, pass, ok := r.BasicAuth(); ok {
		return unescape(user), unescape(pass)
	}
	return strings.TrimSpace(r.PostForm.Get("client_id")), r.PostForm.Get("client_secret")
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}
