package sqlite

import (
	"database/sql"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
)

// txStore hands out repositories bound to one transaction. Nested
// transactions are not supported; multi-statement repository methods join
// the outer one.
type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Users() store.Users                 { return &usersRepo{q: t.tx} }
func (t *txStore) Claims() store.Claims               { return &claimsRepo{q: t.tx} }
func (t *txStore) Clients() store.Clients             { return &clientsRepo{q: t.tx} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{q: t.tx} }
func (t *txStore) Revocations() store.Revocations     { return &revocationsRepo{q: t.tx} }
func (t *txStore) SigningKeys() store.SigningKeys     { return &signingKeysRepo{q: t.tx} }
