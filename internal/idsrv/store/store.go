package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrUnavailable is returned by drivers when the backend cannot be
	// reached or is too busy to answer. Callers may retry later.
	ErrUnavailable = errors.New("store: unavailable")
)

// Users persists user identity records.
type Users interface {
	// GetUserByID returns ErrNotFound when no user has the id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername returns ErrNotFound when no user has the username.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a user. A duplicate username or id returns
	// ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// ProvisionUser inserts a user together with its claims as one atomic
	// batch: either the user and every claim are stored or nothing is.
	// A duplicate username returns ErrAlreadyExists.
	ProvisionUser(ctx context.Context, u domain.User, claims []domain.Claim) error

	// IsEmpty reports whether no users exist yet.
	IsEmpty(ctx context.Context) (bool, error)
}

// Claims persists the ordered claims of a user.
type Claims interface {
	// AddClaims appends claims after the user's existing ones, keeping
	// their order. Returns ErrNotFound when the user does not exist.
	AddClaims(ctx context.Context, userID string, claims []domain.Claim) error

	// ListClaims returns the user's claims in insertion order.
	ListClaims(ctx context.Context, userID string) ([]domain.Claim, error)
}

// Clients persists registered OAuth2 clients.
type Clients interface {
	// GetClientByID returns ErrNotFound when the client is not registered.
	GetClientByID(ctx context.Context, id string) (domain.Client, error)

	// CreateClient registers a client. Returns ErrAlreadyExists when the
	// id is taken.
	CreateClient(ctx context.Context, c domain.Client) error
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, rt domain.RefreshToken) error

	// GetRefreshTokenByHash looks a token up by its fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeRefreshToken marks the token revoked. Returns ErrNotFound when
	// the token does not exist or was already revoked, which makes it safe
	// to use as a compare-and-set during rotation.
	RevokeRefreshToken(ctx context.Context, id string) error

	// DeleteExpiredRefreshTokens removes tokens that expired before now.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// Revocations persists revoked access token ids.
type Revocations interface {
	// RevokeToken records the revocation. Revoking twice is not an error.
	RevokeToken(ctx context.Context, r domain.Revocation) error

	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// DeleteExpiredRevocations removes entries whose token expired before
	// now. Such tokens fail verification on expiry alone.
	DeleteExpiredRevocations(ctx context.Context, now time.Time) (int64, error)
}

type SigningKeys interface {
	CreateSigningKey(ctx context.Context, key domain.SigningKey) error

	// ListSigningKeys returns keys that have not expired at now, oldest
	// first.
	ListSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error)

	DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error)
}

// Repos gives access to every repository. Both Store and Tx implement it.
type Repos interface {
	Users() Users
	Claims() Claims
	Clients() Clients
	RefreshTokens() RefreshTokens
	Revocations() Revocations
	SigningKeys() SigningKeys
}

// Tx is a set of repositories bound to one open transaction.
type Tx interface {
	Repos
}

type Store interface {
	Repos

	// ApplyMigrations brings the schema up to date.
	ApplyMigrations() error

	// RollbackMigrations reverts every applied migration.
	RollbackMigrations() error

	// WithTx runs fn in a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise, including when ctx is
	// cancelled before commit.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}
