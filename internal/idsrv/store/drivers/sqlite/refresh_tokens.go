package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
)

type refreshTokensRepo struct {
	q dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, rt domain.RefreshToken) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, client_id, token_hash, scopes, amr, expires_at, revoked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.ID,
		rt.UserID,
		rt.ClientID,
		rt.TokenHash,
		joinList(rt.Scopes),
		joinList(rt.AMR),
		toUnix(rt.ExpiresAt),
		rt.Revoked,
		toUnix(rt.CreatedAt),
	)
	return mapErr(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var (
		rt                   domain.RefreshToken
		scopes, amr          string
		expiresAt, createdAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, user_id, client_id, token_hash, scopes, amr, expires_at, revoked, created_at
		 FROM refresh_tokens WHERE token_hash = ?`,
		hash,
	).Scan(&rt.ID, &rt.UserID, &rt.ClientID, &rt.TokenHash, &scopes, &amr, &expiresAt, &rt.Revoked, &createdAt)
	if err != nil {
		return domain.RefreshToken{}, mapErr(err)
	}
	rt.Scopes = splitList(scopes)
	rt.AMR = splitList(amr)
	rt.ExpiresAt = fromUnix(expiresAt)
	rt.CreatedAt = fromUnix(createdAt)
	return rt, nil
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = 1 WHERE id = ? AND revoked = 0`, id)
	if err != nil {
		return mapErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, toUnix(now))
	if err != nil {
		return 0, mapErr(err)
	}
	return res.RowsAffected()
}
