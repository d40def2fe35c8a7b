package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
)

const userColumns = `id, username, password_hash, scopes, totp_secret, created_at, updated_at`

type usersRepo struct {
	q  dbtx
	db *sql.DB // nil inside a transaction
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	return insertUser(ctx, r.q, u)
}

func (r *usersRepo) ProvisionUser(ctx context.Context, u domain.User, claims []domain.Claim) error {
	return batch(ctx, r.db, r.q, func(q dbtx) error {
		if err := insertUser(ctx, q, u); err != nil {
			return err
		}
		return appendClaims(ctx, q, u.ID, claims)
	})
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var n int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return false, mapErr(err)
	}
	return n == 0, nil
}

func insertUser(ctx context.Context, q dbtx, u domain.User) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Username,
		u.PasswordHash,
		joinList(u.Scopes),
		toNullString(u.TOTPSecret),
		toUnix(u.CreatedAt),
		toUnix(u.UpdatedAt),
	)
	return mapErr(err)
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u                    domain.User
		scopes               string
		totp                 sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &scopes, &totp, &createdAt, &updatedAt); err != nil {
		return domain.User{}, mapErr(err)
	}
	u.Scopes = splitList(scopes)
	u.TOTPSecret = fromNullString(totp)
	u.CreatedAt = fromUnix(createdAt)
	u.UpdatedAt = fromUnix(updatedAt)
	return u, nil
}
