package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
)

type revocationsRepo struct {
	q dbtx
}

func (r *revocationsRepo) RevokeToken(ctx context.Context, rev domain.Revocation) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO revoked_tokens (token_id, expires_at, revoked_at) VALUES ($1, $2, $3)
		 ON CONFLICT (token_id) DO NOTHING`,
		rev.TokenID,
		utc(rev.ExpiresAt),
		utc(rev.RevokedAt),
	)
	return mapErr(err)
}

func (r *revocationsRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = $1)`, tokenID).Scan(&revoked)
	if err != nil {
		return false, mapErr(err)
	}
	return revoked, nil
}

func (r *revocationsRepo) DeleteExpiredRevocations(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, utc(now))
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}
