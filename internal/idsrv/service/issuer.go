package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
	"github.com/aussiebroadwan/idsrv/pkg/slogx"
)

// SignerSource hands out the key to sign the next token with. It returns
// nil when no key is loaded.
type SignerSource interface {
	GetSigner() jwtx.Signer
}

// TokenIssuer mints signed access tokens.
type TokenIssuer struct {
	Keys     SignerSource
	Issuer   string
	Audience []string

	// AccessTTL defaults to jwtx.DefaultAccessTokenTTL.
	AccessTTL time.Duration
	Now       func() time.Time
}

func (i *TokenIssuer) ttl() time.Duration {
	if i.AccessTTL <= 0 {
		return jwtx.DefaultAccessTokenTTL
	}
	return i.AccessTTL
}

// Issue signs an access token for g. The returned expiry equals the exp
// claim to the second.
func (i *TokenIssuer) Issue(ctx context.Context, g domain.ValidatedGrant) (domain.IssuedToken, error) {
	var signer jwtx.Signer
	if i.Keys != nil {
		signer = i.Keys.GetSigner()
	}
	if signer == nil {
		return domain.IssuedToken{}, fmt.Errorf("%w: no active signing key", ErrSigningUnavailable)
	}

	params := jwtx.AccessClaimsParams{
		ID:       uuid.NewString(),
		Issuer:   i.Issuer,
		Subject:  g.Subject(),
		Audience: i.Audience,
		ClientID: g.Client.ID,
		Scopes:   g.Scopes,
		AMR:      g.AMR,
		IssuedAt: nowFunc(i.Now),
		TTL:      i.ttl(),
	}
	if g.User != nil {
		params.Username = g.User.Username
		params.Identity = domain.ReleasedClaims(g.Claims, g.Scopes)
	}
	claims := jwtx.NewAccessClaims(params)

	signed, err := signer.Sign(claims)
	if err != nil {
		slogx.FromContext(ctx).Error("token signing failed",
			slog.String("kid", signer.KID()),
			slog.Any("error", err),
		)
		return domain.IssuedToken{}, fmt.Errorf("%w: %w", ErrSigningUnavailable, err)
	}

	return domain.IssuedToken{
		ID:        claims.ID,
		Subject:   claims.Subject,
		ClientID:  claims.ClientID,
		Audience:  claims.Audience,
		Scopes:    claims.Scopes,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		Token:     signed,
	}, nil
}
