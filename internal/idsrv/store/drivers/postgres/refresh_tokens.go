package postgres

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
	_, err := r.q.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, client_id, token_hash, scopes, amr, expires_at, revoked, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rt.ID,
		rt.UserID,
		rt.ClientID,
		rt.TokenHash,
		list(rt.Scopes),
		list(rt.AMR),
		utc(rt.ExpiresAt),
		rt.Revoked,
		utc(rt.CreatedAt),
	)
	return mapErr(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var rt domain.RefreshToken
	err := r.q.QueryRow(ctx,
		`SELECT id, user_id, client_id, token_hash, scopes, amr, expires_at, revoked, created_at
		 FROM refresh_tokens WHERE token_hash = $1`,
		hash,
	).Scan(&rt.ID, &rt.UserID, &rt.ClientID, &rt.TokenHash, &rt.Scopes, &rt.AMR, &rt.ExpiresAt, &rt.Revoked, &rt.CreatedAt)
	if err != nil {
		return domain.RefreshToken{}, mapErr(err)
	}
	rt.ExpiresAt = rt.ExpiresAt.UTC()
	rt.CreatedAt = rt.CreatedAt.UTC()
	return rt, nil
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1 AND NOT revoked`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, utc(now))
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}
