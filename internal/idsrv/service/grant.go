package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
	"github.com/aussiebroadwan/idsrv/pkg/cryptox"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
	"github.com/aussiebroadwan/idsrv/pkg/slogx"
)

// SupportedGrantTypes in the order they are advertised.
var SupportedGrantTypes = []string{
	domain.GrantPassword,
	domain.GrantClientCredentials,
	domain.GrantRefreshToken,
}

func supportedGrant(g string) bool {
	return slices.Contains(SupportedGrantTypes, g)
}

// GrantValidator authenticates the client and the resource owner of a
// token request and settles the final scope.
type GrantValidator struct {
	Credentials *CredentialService
	Now         func() time.Time
}

// Validate checks req and returns the grant to issue tokens for.
func (v *GrantValidator) Validate(ctx context.Context, req domain.GrantRequest) (domain.ValidatedGrant, error) {
	l := slogx.FromContext(ctx)

	if req.GrantType == "" {
		return domain.ValidatedGrant{}, fmt.Errorf("%w: grant_type is required", ErrInvalidRequest)
	}
	if !supportedGrant(req.GrantType) {
		return domain.ValidatedGrant{}, ErrUnsupportedGrantType
	}

	client, err := v.Credentials.AuthenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		if errors.Is(err, ErrInvalidClient) {
			l.Info("client authentication failed", slog.String("client_id", req.ClientID))
		}
		return domain.ValidatedGrant{}, err
	}
	if !client.AllowsGrant(req.GrantType) {
		return domain.ValidatedGrant{}, ErrUnauthorizedClient
	}

	g := domain.ValidatedGrant{GrantType: req.GrantType, Client: client}
	var allowed []string

	switch req.GrantType {
	case domain.GrantPassword:
		user, amr, err := v.authenticateUser(ctx, req)
		if err != nil {
			return domain.ValidatedGrant{}, err
		}
		g.User = &user
		g.AMR = amr
		allowed = allowedScopes(client, &user)

	case domain.GrantClientCredentials:
		g.AMR = []string{jwtx.AMRClient}
		// No resource owner: nothing to refresh and no identity to release.
		allowed = slices.DeleteFunc(slices.Clone(client.Scopes), func(s string) bool {
			return s == domain.ScopeOfflineAccess
		})

	case domain.GrantRefreshToken:
		rt, user, err := v.refreshToken(ctx, client, req.RefreshToken)
		if err != nil {
			return domain.ValidatedGrant{}, err
		}
		g.User = &user
		g.AMR = rt.AMR
		g.RefreshTokenID = rt.ID
		allowed = intersect(rt.Scopes, allowedScopes(client, &user))
	}

	g.Scopes, err = settleScopes(req, allowed)
	if err != nil {
		return domain.ValidatedGrant{}, err
	}

	if g.User != nil {
		g.Claims, err = v.Credentials.Claims(ctx, g.User.ID)
		if err != nil {
			return domain.ValidatedGrant{}, err
		}
	}
	return g, nil
}

func (v *GrantValidator) authenticateUser(ctx context.Context, req domain.GrantRequest) (domain.User, []string, error) {
	if req.Username == "" || req.Password == "" {
		return domain.User{}, nil, fmt.Errorf("%w: username and password are required", ErrInvalidRequest)
	}

	user, err := v.Credentials.FindUser(ctx, req.Username)
	if errors.Is(err, ErrNotFound) {
		v.Credentials.burnHash(req.Password)
		return domain.User{}, nil, ErrInvalidGrant
	}
	if err != nil {
		return domain.User{}, nil, err
	}

	if !v.Credentials.VerifyPassword(user, req.Password) {
		slogx.FromContext(ctx).Info("password mismatch", slog.String("user_id", user.ID))
		return domain.User{}, nil, ErrInvalidGrant
	}

	amr := []string{jwtx.AMRPassword}
	if user.TOTPSecret != nil {
		if req.OTP == "" {
			return domain.User{}, nil, fmt.Errorf("%w: one-time code required", ErrInvalidGrant)
		}
		ok, err := totp.ValidateCustom(req.OTP, *user.TOTPSecret, nowFunc(v.Now).UTC(), totp.ValidateOpts{
			Period:    30,
			Skew:      1,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil || !ok {
			return domain.User{}, nil, fmt.Errorf("%w: invalid one-time code", ErrInvalidGrant)
		}
		amr = append(amr, jwtx.AMROTP)
	}
	return user, amr, nil
}

func (v *GrantValidator) refreshToken(ctx context.Context, client domain.Client, opaque string) (domain.RefreshToken, domain.User, error) {
	if opaque == "" {
		return domain.RefreshToken{}, domain.User{}, fmt.Errorf("%w: refresh_token is required", ErrInvalidRequest)
	}

	sctx, cancel := storeCtx(ctx, v.Credentials.Timeout)
	rt, err := v.Credentials.Store.RefreshTokens().GetRefreshTokenByHash(sctx, cryptox.FingerprintToken(opaque))
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		return domain.RefreshToken{}, domain.User{}, ErrInvalidGrant
	}
	if err != nil {
		return domain.RefreshToken{}, domain.User{}, storeErr(err)
	}

	if rt.Revoked || nowFunc(v.Now).After(rt.ExpiresAt) || rt.ClientID != client.ID {
		return domain.RefreshToken{}, domain.User{}, ErrInvalidGrant
	}

	user, err := v.Credentials.FindUserByID(ctx, rt.UserID)
	if errors.Is(err, ErrNotFound) {
		return domain.RefreshToken{}, domain.User{}, ErrInvalidGrant
	}
	if err != nil {
		return domain.RefreshToken{}, domain.User{}, err
	}
	return rt, user, nil
}

// allowedScopes is the client's scopes narrowed by the user's, when the
// user restricts them.
func allowedScopes(client domain.Client, user *domain.User) []string {
	if user == nil || !user.RestrictsScopes() {
		return slices.Clone(client.Scopes)
	}
	return intersect(client.Scopes, user.Scopes)
}

// settleScopes applies the request to the allowed set. Requested scopes
// outside it are dropped; an explicit request that keeps nothing fails.
func settleScopes(req domain.GrantRequest, allowed []string) ([]string, error) {
	if !req.ScopeRequested || len(req.Scopes) == 0 {
		if len(allowed) == 0 {
			return nil, fmt.Errorf("%w: client has no scopes to grant", ErrInvalidScope)
		}
		return allowed, nil
	}

	granted := intersect(req.Scopes, allowed)
	if len(granted) == 0 {
		return nil, ErrInvalidScope
	}
	return granted, nil
}

// intersect keeps the elements of a that are in b, in a's order, without
// duplicates.
func intersect(a, b []string) []string {
	out := make([]string, 0, len(a))
	for _, s := range a {
		if slices.Contains(b, s) && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
