package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/metrics"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/revocation"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
	"github.com/aussiebroadwan/idsrv/pkg/cryptox"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
	"github.com/aussiebroadwan/idsrv/pkg/slogx"
)

// TokenService runs the token endpoint: validate, issue and, for the
// password and refresh grants, mint or rotate the refresh token.
type TokenService struct {
	Validator    *GrantValidator
	Issuer       *TokenIssuer
	Introspector *Introspector
	Revocations  revocation.List
	Metrics      *metrics.Metrics

	// RefreshTTL defaults to jwtx.DefaultRefreshTokenTTL.
	RefreshTTL time.Duration
	Now        func() time.Time
}

// Exchange handles one token request.
func (s *TokenService) Exchange(ctx context.Context, req domain.GrantRequest) (domain.TokenPair, error) {
	pair, err := s.exchange(ctx, req)
	if err != nil {
		s.Metrics.GrantFailed(req.GrantType, errorCode(err))
		return domain.TokenPair{}, err
	}
	s.Metrics.TokenIssued(req.GrantType)
	return pair, nil
}

func (s *TokenService) exchange(ctx context.Context, req domain.GrantRequest) (domain.TokenPair, error) {
	g, err := s.Validator.Validate(ctx, req)
	if err != nil {
		return domain.TokenPair{}, err
	}

	access, err := s.Issuer.Issue(ctx, g)
	if err != nil {
		return domain.TokenPair{}, err
	}

	pair := domain.TokenPair{
		AccessToken: access.Token,
		TokenType:   "Bearer",
		ExpiresIn:   access.ExpiresAt.Sub(access.IssuedAt),
		Scopes:      access.Scopes,
	}

	if s.wantsRefresh(g) {
		pair.RefreshToken, err = s.mintRefresh(ctx, g)
		if err != nil {
			return domain.TokenPair{}, err
		}
	}

	slogx.FromContext(ctx).Info("tokens issued",
		slog.Bool("refresh_token", pair.RefreshToken != ""),
		slog.String("grant_type", g.GrantType),
		slog.String("client_id", g.Client.ID),
		slog.String("sub", g.Subject()),
		slog.String("jti", access.ID),
	)
	return pair, nil
}

func (s *TokenService) wantsRefresh(g domain.ValidatedGrant) bool {
	if g.User == nil || !g.Client.AllowsGrant(domain.GrantRefreshToken) {
		return false
	}
	// A consumed refresh token is always rotated.
	if g.RefreshTokenID != "" {
		return true
	}
	return slices.Contains(g.Scopes, domain.ScopeOfflineAccess)
}

// mintRefresh stores a new refresh token. When g consumed one, the old
// token is revoked in the same transaction; losing a concurrent rotation
// fails with ErrInvalidGrant.
func (s *TokenService) mintRefresh(ctx context.Context, g domain.ValidatedGrant) (string, error) {
	opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}

	ttl := s.RefreshTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultRefreshTokenTTL
	}
	now := nowFunc(s.Now).UTC().Truncate(time.Second)

	rt := domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    g.User.ID,
		ClientID:  g.Client.ID,
		TokenHash: cryptox.FingerprintToken(opaque),
		Scopes:    g.Scopes,
		AMR:       g.AMR,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	sctx, cancel := storeCtx(ctx, s.Validator.Credentials.Timeout)
	defer cancel()

	err = s.Validator.Credentials.Store.WithTx(sctx, func(tx store.Tx) error {
		if g.RefreshTokenID != "" {
			if err := tx.RefreshTokens().RevokeRefreshToken(sctx, g.RefreshTokenID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return ErrInvalidGrant
				}
				return err
			}
		}
		return tx.RefreshTokens().CreateRefreshToken(sctx, rt)
	})
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			return "", err
		}
		return "", storeErr(err)
	}
	return opaque, nil
}

// Revoke invalidates an access or refresh token held by client (RFC 7009).
// Unknown, foreign and already invalid tokens are not an error.
func (s *TokenService) Revoke(ctx context.Context, client domain.Client, token, hint string) error {
	if token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidRequest)
	}

	if hint != "refresh_token" {
		done, err := s.revokeAccess(ctx, client, token)
		if done || err != nil {
			return err
		}
	}
	return s.revokeRefresh(ctx, client, token)
}

func (s *TokenService) revokeAccess(ctx context.Context, client domain.Client, token string) (bool, error) {
	claims, err := s.Introspector.verifySigned(token)
	if err != nil {
		return false, nil
	}
	if claims.ClientID != client.ID || claims.ExpiresAt == nil {
		return true, nil
	}

	// An expired token stays expired; listing it would change nothing.
	if nowFunc(s.Now).After(claims.ExpiresAt.Time) {
		return true, nil
	}

	sctx, cancel := storeCtx(ctx, s.Validator.Credentials.Timeout)
	defer cancel()

	if err := s.Revocations.Revoke(sctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return true, storeErr(err)
	}
	s.Metrics.TokenRevoked()
	slogx.FromContext(ctx).Info("access token revoked", slog.String("jti", claims.ID))
	return true, nil
}

func (s *TokenService) revokeRefresh(ctx context.Context, client domain.Client, token string) error {
	sctx, cancel := storeCtx(ctx, s.Validator.Credentials.Timeout)
	defer cancel()

	refreshTokens := s.Validator.Credentials.Store.RefreshTokens()
	rt, err := refreshTokens.GetRefreshTokenByHash(sctx, cryptox.FingerprintToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr(err)
	}
	if rt.ClientID != client.ID {
		return nil
	}

	err = refreshTokens.RevokeRefreshToken(sctx, rt.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeErr(err)
	}
	s.Metrics.TokenRevoked()
	return nil
}

// errorCode is the OAuth2 error code for err.
func errorCode(err error) string {
	for _, e := range []error{
		ErrInvalidRequest,
		ErrInvalidClient,
		ErrUnauthorizedClient,
		ErrInvalidGrant,
		ErrInvalidScope,
		ErrUnsupportedGrantType,
	} {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return "server_error"
}
