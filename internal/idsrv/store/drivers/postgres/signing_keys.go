package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
)

type signingKeysRepo struct {
	q dbtx
}

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, k domain.SigningKey) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO signing_keys (kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		k.Kid,
		k.Algorithm,
		k.PrivateKeyEncrypted,
		utc(k.CreatedAt),
		utcPtr(k.RetiredAt),
		utc(k.ExpiresAt),
	)
	return mapErr(err)
}

func (r *signingKeysRepo) ListSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error) {
	rows, err := r.q.Query(ctx,
		`SELECT kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at
		 FROM signing_keys WHERE expires_at > $1 ORDER BY created_at, kid`,
		utc(now),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.SigningKey
	for rows.Next() {
		var k domain.SigningKey
		if err := rows.Scan(&k.Kid, &k.Algorithm, &k.PrivateKeyEncrypted, &k.CreatedAt, &k.RetiredAt, &k.ExpiresAt); err != nil {
			return nil, mapErr(err)
		}
		k.CreatedAt = k.CreatedAt.UTC()
		k.RetiredAt = utcPtr(k.RetiredAt)
		k.ExpiresAt = k.ExpiresAt.UTC()
		out = append(out, k)
	}
	return out, mapErr(rows.Err())
}

func (r *signingKeysRepo) DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM signing_keys WHERE expires_at <= $1`, utc(now))
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}
