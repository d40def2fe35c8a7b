package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
)

type signingKeysRepo struct {
	q dbtx
}

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, k domain.SigningKey) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO signing_keys (kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		k.Kid,
		k.Algorithm,
		k.PrivateKeyEncrypted,
		toUnix(k.CreatedAt),
		toNullUnix(k.RetiredAt),
		toUnix(k.ExpiresAt),
	)
	return mapErr(err)
}

func (r *signingKeysRepo) ListSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at
		 FROM signing_keys WHERE expires_at > ? ORDER BY created_at, kid`,
		toUnix(now),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.SigningKey
	for rows.Next() {
		var (
			k                    domain.SigningKey
			createdAt, expiresAt int64
			retiredAt            sql.NullInt64
		)
		if err := rows.Scan(&k.Kid, &k.Algorithm, &k.PrivateKeyEncrypted, &createdAt, &retiredAt, &expiresAt); err != nil {
			return nil, mapErr(err)
		}
		k.CreatedAt = fromUnix(createdAt)
		k.RetiredAt = fromNullUnix(retiredAt)
		k.ExpiresAt = fromUnix(expiresAt)
		out = append(out, k)
	}
	return out, mapErr(rows.Err())
}

func (r *signingKeysRepo) DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM signing_keys WHERE expires_at <= ?`, toUnix(now))
	if err != nil {
		return 0, mapErr(err)
	}
	return res.RowsAffected()
}
