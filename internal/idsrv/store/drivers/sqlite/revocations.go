package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
)

type revocationsRepo struct {
	q dbtx
}

func (r *revocationsRepo) RevokeToken(ctx context.Context, rev domain.Revocation) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO revoked_tokens (token_id, expires_at, revoked_at) VALUES (?, ?, ?)
		 ON CONFLICT (token_id) DO NOTHING`,
		rev.TokenID,
		toUnix(rev.ExpiresAt),
		toUnix(rev.RevokedAt),
	)
	return mapErr(err)
}

func (r *revocationsRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var n int64
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM revoked_tokens WHERE token_id = ?`, tokenID).Scan(&n)
	if err != nil {
		return false, mapErr(err)
	}
	return n > 0, nil
}

func (r *revocationsRepo) DeleteExpiredRevocations(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, toUnix(now))
	if err != nil {
		return 0, mapErr(err)
	}
	return res.RowsAffected()
}
