package sqlite

import (
	"context"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
)

type clientsRepo struct {
	q dbtx
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	var (
		c                    domain.Client
		grants, scopes       string
		createdAt, updatedAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, secret_hash, grant_types, scopes, created_at, updated_at FROM clients WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.Name, &c.SecretHash, &grants, &scopes, &createdAt, &updatedAt)
	if err != nil {
		return domain.Client{}, mapErr(err)
	}
	c.GrantTypes = splitList(grants)
	c.Scopes = splitList(scopes)
	c.CreatedAt = fromUnix(createdAt)
	c.UpdatedAt = fromUnix(updatedAt)
	return c, nil
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO clients (id, name, secret_hash, grant_types, scopes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Name,
		c.SecretHash,
		joinList(c.GrantTypes),
		joinList(c.Scopes),
		toUnix(c.CreatedAt),
		toUnix(c.UpdatedAt),
	)
	return mapErr(err)
}
