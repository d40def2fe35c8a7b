package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
)

type claimsRepo struct {
	q  dbtx
	db *sql.DB // nil inside a transaction
}

func (r *claimsRepo) AddClaims(ctx context.Context, userID string, claims []domain.Claim) error {
	return batch(ctx, r.db, r.q, func(q dbtx) error {
		return appendClaims(ctx, q, userID, claims)
	})
}

func (r *claimsRepo) ListClaims(ctx context.Context, userID string) ([]domain.Claim, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT claim_type, value, value_type FROM user_claims WHERE user_id = ? ORDER BY ordinal`,
		userID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.Claim
	for rows.Next() {
		var c domain.Claim
		var vt string
		if err := rows.Scan(&c.Type, &c.Value, &vt); err != nil {
			return nil, mapErr(err)
		}
		c.ValueType = domain.ClaimValueType(vt)
		out = append(out, c)
	}
	return out, mapErr(rows.Err())
}

// appendClaims computes the next ordinal inside the insert itself, so the
// read and the write are one statement under the write lock.
const appendClaimSQL = `
INSERT INTO user_claims (user_id, ordinal, claim_type, value, value_type)
SELECT u.id,
       (SELECT COALESCE(MAX(c.ordinal) + 1, 0) FROM user_claims c WHERE c.user_id = u.id),
       ?, ?, ?
FROM users u
WHERE u.id = ?`

func appendClaims(ctx context.Context, q dbtx, userID string, claims []domain.Claim) error {
	for _, c := range claims {
		c = c.Normalized()
		res, err := q.ExecContext(ctx, appendClaimSQL, c.Type, c.Value, string(c.ValueType), userID)
		if err != nil {
			return mapErr(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return store.ErrNotFound
		}
	}
	return nil
}
