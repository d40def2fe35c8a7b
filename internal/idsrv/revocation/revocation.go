// Package revocation keeps the set of access token ids (jti) that were
// revoked before they expired.
package revocation

import (
	"context"
	"time"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
)

// List is a revocation list. Entries only need to outlive the token they
// revoke.
type List interface {
	// Revoke adds jti until expiresAt. Revoking twice is not an error.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error

	IsRevoked(ctx context.Context, jti string) (bool, error)

	// Purge drops entries whose token expired before now and reports how
	// many were removed.
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// StoreList keeps revocations in the credential store.
type StoreList struct {
	store store.Store
	now   func() time.Time
}

func NewStoreList(s store.Store) *StoreList {
	return &StoreList{store: s, now: time.Now}
}

func (l *StoreList) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	return l.store.Revocations().RevokeToken(ctx, domain.Revocation{
		TokenID:   jti,
		ExpiresAt: expiresAt,
		RevokedAt: l.now(),
	})
}

func (l *StoreList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return l.store.Revocations().IsRevoked(ctx, jti)
}

func (l *StoreList) Purge(ctx context.Context, now time.Time) (int64, error) {
	return l.store.Revocations().DeleteExpiredRevocations(ctx, now)
}
