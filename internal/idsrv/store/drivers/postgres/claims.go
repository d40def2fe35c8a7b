package postgres

import (
	"context"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type claimsRepo struct {
	q    dbtx
	pool *pgxpool.Pool // nil inside a transaction
}

func (r *claimsRepo) AddClaims(ctx context.Context, userID string, claims []domain.Claim) error {
	return batch(ctx, r.pool, r.q, func(q dbtx) error {
		return appendClaims(ctx, q, userID, claims)
	})
}

func (r *claimsRepo) ListClaims(ctx context.Context, userID string) ([]domain.Claim, error) {
	rows, err := r.q.Query(ctx,
		`SELECT claim_type, value, value_type FROM user_claims WHERE user_id = $1 ORDER BY ordinal`,
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

// appendClaims must run inside a transaction. The user row lock serializes
// concurrent appends for the same user.
func appendClaims(ctx context.Context, q dbtx, userID string, claims []domain.Claim) error {
	var id string
	if err := q.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id); err != nil {
		return mapErr(err)
	}

	var next int
	err := q.QueryRow(ctx,
		`SELECT COALESCE(MAX(ordinal) + 1, 0) FROM user_claims WHERE user_id = $1`,
		userID,
	).Scan(&next)
	if err != nil {
		return mapErr(err)
	}

	for i, c := range claims {
		c = c.Normalized()
		_, err := q.Exec(ctx,
			`INSERT INTO user_claims (user_id, ordinal, claim_type, value, value_type) VALUES ($1, $2, $3, $4, $5)`,
			userID, next+i, c.Type, c.Value, string(c.ValueType),
		)
		if err != nil {
			return mapErr(err)
		}
	}
	return nil
}
