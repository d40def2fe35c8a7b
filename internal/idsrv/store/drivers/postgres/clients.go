package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
)

type clientsRepo struct {
	q dbtx
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	var (
		c                    domain.Client
		createdAt, updatedAt time.Time
	)
	err := r.q.QueryRow(ctx,
		`SELECT id, name, secret_hash, grant_types, scopes, created_at, updated_at FROM clients WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.SecretHash, &c.GrantTypes, &c.Scopes, &createdAt, &updatedAt)
	if err != nil {
		return domain.Client{}, mapErr(err)
	}
	c.CreatedAt = createdAt.UTC()
	c.UpdatedAt = updatedAt.UTC()
	return c, nil
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO clients (id, name, secret_hash, grant_types, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID,
		c.Name,
		c.SecretHash,
		list(c.GrantTypes),
		list(c.Scopes),
		utc(c.CreatedAt),
		utc(c.UpdatedAt),
	)
	return mapErr(err)
}
