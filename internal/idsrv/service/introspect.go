package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/metrics"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/revocation"
	"github.com/aussiebroadwan/idsrv/pkg/authsdk"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
)

// Introspector validates bearer tokens presented to protected endpoints.
type Introspector struct {
	Verifier    jwtx.Verifier
	Revocations revocation.List
	Metrics     *metrics.Metrics

	// Timeout bounds revocation lookups. Zero means DefaultStoreTimeout.
	Timeout time.Duration
	Now     func() time.Time
}

// Verify checks structure, signature, issuer, expiry and revocation, in
// that order, and returns the token claims.
func (in *Introspector) Verify(ctx context.Context, token string) (jwtx.Claims, error) {
	claims, err := in.verifySigned(token)
	if err != nil {
		in.Metrics.TokenVerified(resultLabel(err))
		return jwtx.Claims{}, err
	}

	if err := claims.ValidateExpiry(nowFunc(in.Now)); err != nil {
		if errors.Is(err, jwtx.ErrExpired) {
			err = ErrExpired
		} else {
			err = fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		in.Metrics.TokenVerified(resultLabel(err))
		return jwtx.Claims{}, err
	}

	revoked, err := in.isRevoked(ctx, claims.ID)
	if err != nil {
		return jwtx.Claims{}, err
	}
	if revoked {
		in.Metrics.TokenVerified(resultLabel(ErrRevoked))
		return jwtx.Claims{}, ErrRevoked
	}

	in.Metrics.TokenVerified(domain.TokenActive.String())
	return claims, nil
}

// State reports where token is in its lifecycle. Tokens that fail
// structure or signature checks are TokenInvalid.
func (in *Introspector) State(ctx context.Context, token string) domain.TokenState {
	claims, err := in.verifySigned(token)
	if err != nil || claims.ExpiresAt == nil {
		return domain.TokenInvalid
	}

	revoked, err := in.isRevoked(ctx, claims.ID)
	if err != nil {
		return domain.TokenInvalid
	}
	return domain.IssuedToken{ExpiresAt: claims.ExpiresAt.Time}.StateAt(nowFunc(in.Now), revoked)
}

// Unavailable reports whether err came from a backend outage rather than
// from the token itself.
func (in *Introspector) Unavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// Introspect answers an RFC 7662 request. Rejected tokens read as inactive;
// only an unreachable revocation list is returned as an error.
func (in *Introspector) Introspect(ctx context.Context, token string) (authsdk.IntrospectionResponse, error) {
	claims, err := in.Verify(ctx, token)
	if in.Unavailable(err) {
		return authsdk.IntrospectionResponse{}, err
	}
	if err != nil {
		return authsdk.IntrospectionResponse{Active: false}, nil
	}

	resp := authsdk.IntrospectionResponse{
		Active:    true,
		Scope:     strings.Join(claims.Scopes, " "),
		ClientID:  claims.ClientID,
		Username:  claims.Username,
		TokenType: "Bearer",
		Subject:   claims.Subject,
		Audience:  claims.Audience,
		Issuer:    claims.Issuer,
		JTI:       claims.ID,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.NotBefore != nil {
		resp.NotBefore = claims.NotBefore.Unix()
	}
	return resp, nil
}

// verifySigned runs the checks that do not depend on time or state.
func (in *Introspector) verifySigned(token string) (jwtx.Claims, error) {
	claims, err := in.Verifier.Verify(token)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwtx.ErrInvalidSig),
		errors.Is(err, jwtx.ErrUnknownKID),
		errors.Is(err, jwtx.ErrAlgMismatch):
		return jwtx.Claims{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	return jwtx.Claims{}, fmt.Errorf("%w: %w", ErrMalformed, err)
}

func (in *Introspector) isRevoked(ctx context.Context, jti string) (bool, error) {
	if in.Revocations == nil || jti == "" {
		return false, nil
	}
	ctx, cancel := storeCtx(ctx, in.Timeout)
	defer cancel()

	revoked, err := in.Revocations.IsRevoked(ctx, jti)
	return revoked, storeErr(err)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return domain.TokenExpired.String()
	case errors.Is(err, ErrRevoked):
		return domain.TokenRevoked.String()
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	}
	return "malformed"
}
