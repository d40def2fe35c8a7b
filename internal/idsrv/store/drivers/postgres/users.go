package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, username, password_hash, scopes, totp_secret, created_at, updated_at`

type usersRepo struct {
	q    dbtx
	pool *pgxpool.Pool // nil inside a transaction
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	return insertUser(ctx, r.q, u)
}

func (r *usersRepo) ProvisionUser(ctx context.Context, u domain.User, claims []domain.Claim) error {
	return batch(ctx, r.pool, r.q, func(q dbtx) error {
		if err := insertUser(ctx, q, u); err != nil {
			return err
		}
		return appendClaims(ctx, q, u.ID, claims)
	})
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users)`).Scan(&exists); err != nil {
		return false, mapErr(err)
	}
	return !exists, nil
}

func insertUser(ctx context.Context, q dbtx, u domain.User) error {
	_, err := q.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID,
		u.Username,
		u.PasswordHash,
		list(u.Scopes),
		u.TOTPSecret,
		utc(u.CreatedAt),
		utc(u.UpdatedAt),
	)
	return mapErr(err)
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u                    domain.User
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Scopes, &u.TOTPSecret, &createdAt, &updatedAt); err != nil {
		return domain.User{}, mapErr(err)
	}
	u.CreatedAt = createdAt.UTC()
	u.UpdatedAt = updatedAt.UTC()
	return u, nil
}
