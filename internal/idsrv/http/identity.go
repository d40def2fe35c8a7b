package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"

	"github.com/aussiebroadwan/idsrv/pkg/authsdk"
	"github.com/aussiebroadwan/idsrv/pkg/httpx"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
)

// IdentityHandler godoc
//
//	@Summary		Echo caller identity
//	@Description	Sample protected API. Returns every claim of the presented access token as a type/value pair. Requires the 'api1' scope.
//	@Tags			API
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{array}		authsdk.IdentityClaim	"Claims of the access token"
//	@Failure		401	{object}	authsdk.OAuth2Error		"Invalid or missing access token"
//	@Failure		403	{object}	authsdk.OAuth2Error		"Token lacks the api1 scope"
//	@Router			/identity [get]
func IdentityHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := httpx.ClaimsFromContext(r.Context())
		if !ok {
			authsdk.ErrInvalidToken.WriteError(w)
			return
		}

		out, err := identityClaims(claims)
		if err != nil {
			authsdk.ErrServerError.WriteError(w)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, out)
	}
}

// identityClaims flattens the token payload into type/value pairs sorted
// by type. Array claims such as scope yield one pair per element.
func identityClaims(c jwtx.Claims) ([]authsdk.IdentityClaim, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}

	out := make([]authsdk.IdentityClaim, 0, len(payload))
	for _, typ := range slices.Sorted(maps.Keys(payload)) {
		switch v := payload[typ].(type) {
		case []any:
			for _, e := range v {
				out = append(out, authsdk.IdentityClaim{Type: typ, Value: claimString(e)})
			}
		default:
			out = append(out, authsdk.IdentityClaim{Type: typ, Value: claimString(v)})
		}
	}
	return out, nil
}

func claimString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool, nil:
		return fmt.Sprint(v)
	}
	b, _ := json.Marshal(v)
	return string(b)
}
