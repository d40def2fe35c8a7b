package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/service"
	"github.com/aussiebroadwan/idsrv/pkg/authsdk"
	"github.com/aussiebroadwan/idsrv/pkg/slogx"
)

// oauth2Errors maps service sentinels to their wire form, most specific
// first.
var oauth2Errors = []struct {
	err  error
	wire *authsdk.OAuth2Error
}{
	{service.ErrInvalidRequest, authsdk.ErrInvalidRequest},
	{service.ErrInvalidClient, authsdk.ErrInvalidClient},
	{service.ErrUnauthorizedClient, authsdk.ErrUnauthorizedClient},
	{service.ErrInvalidGrant, authsdk.ErrInvalidGrant},
	{service.ErrInvalidScope, authsdk.ErrInvalidScope},
	{service.ErrUnsupportedGrantType, authsdk.ErrUnsupportedGrantType},
}

// writeServiceError answers with the OAuth2 error for err. Anything that
// is not a client mistake is logged and reported as server_error without
// detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	for _, m := range oauth2Errors {
		if errors.Is(err, m.err) {
			slogx.FromContext(r.Context()).Info(op+" rejected", "error", err)
			m.wire.WriteError(w)
			return
		}
	}

	slogx.FromContext(r.Context()).Error(op+" failed", "error", err)
	authsdk.ErrServerError.WriteError(w)
}
