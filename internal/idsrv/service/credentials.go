package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/metrics"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
	"github.com/aussiebroadwan/idsrv/pkg/cryptox"
	"github.com/aussiebroadwan/idsrv/pkg/idx"
)

// CredentialService owns users, their claims and the registered clients.
type CredentialService struct {
	Store   store.Store
	Hasher  *cryptox.Hasher
	Metrics *metrics.Metrics

	// Timeout bounds each store call. Zero means DefaultStoreTimeout.
	Timeout time.Duration
	Now     func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// FindUser returns ErrNotFound when no user has the username. Surrounding
// whitespace is ignored, as it is when users are created.
func (s *CredentialService) FindUser(ctx context.Context, username string) (domain.User, error) {
	username = strings.TrimSpace(username)

	ctx, cancel := storeCtx(ctx, s.Timeout)
	defer cancel()

	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return u, storeErr(err)
}

func (s *CredentialService) FindUserByID(ctx context.Context, id string) (domain.User, error) {
	ctx, cancel := storeCtx(ctx, s.Timeout)
	defer cancel()

	u, err := s.Store.Users().GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, storeErr(err)
}

// CreateUser stores a new user with no claims. Returns ErrConflict when
// the username is taken, including when a concurrent call wins the race.
func (s *CredentialService) CreateUser(ctx context.Context, username, password string) (domain.User, error) {
	u, err := s.newUser(username, password, nil, "")
	if err != nil {
		return domain.User{}, err
	}

	ctx, cancel := storeCtx(ctx, s.Timeout)
	defer cancel()

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, fmt.Errorf("user %q: %w", username, ErrConflict)
		}
		return domain.User{}, storeErr(err)
	}
	return u, nil
}

// AddClaims appends claims to the user's existing ones. Nothing is stored
// when any claim fails validation.
func (s *CredentialService) AddClaims(ctx context.Context, user domain.User, claims []domain.Claim) error {
	normalized, err := validateClaims(claims)
	if err != nil {
		return err
	}

	ctx, cancel := storeCtx(ctx, s.Timeout)
	defer cancel()

	err = s.Store.Claims().AddClaims(ctx, user.ID, normalized)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("user %s: %w", user.ID, ErrNotFound)
	}
	return storeErr(err)
}

// Claims returns the user's claims in insertion order.
func (s *CredentialService) Claims(ctx context.Context, userID string) ([]domain.Claim, error) {
	ctx, cancel := storeCtx(ctx, s.Timeout)
	defer cancel()

	claims, err := s.Store.Claims().ListClaims(ctx, userID)
	return claims, storeErr(err)
}

// VerifyPassword compares password against the stored hash in constant
// time.
func (s *CredentialService) VerifyPassword(user domain.User, password string) bool {
	return s.Hasher.Verify(password, user.PasswordHash) == nil
}

// burnHash spends the same work as a real verification so unknown users
// and clients cannot be told apart by response time.
func (s *CredentialService) burnHash(secret string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash("idsrv-dummy-secret")
	})
	_ = s.Hasher.Verify(secret, s.dummyHash)
}

func (s *CredentialService) client(ctx context.Context, id string) (domain.Client, error) {
	ctx, cancel := storeCtx(ctx, s.Timeout)
	defer cancel()

	c, err := s.Store.Clients().GetClientByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Client{}, fmt.Errorf("client %q: %w", id, ErrNotFound)
	}
	return c, storeErr(err)
}

// AuthenticateClient returns the client when secret matches. Unknown
// clients and wrong secrets both yield ErrInvalidClient.
func (s *CredentialService) AuthenticateClient(ctx context.Context, id, secret string) (domain.Client, error) {
	if id == "" {
		return domain.Client{}, ErrInvalidClient
	}

	c, err := s.client(ctx, id)
	if errors.Is(err, ErrNotFound) {
		s.burnHash(secret)
		return domain.Client{}, ErrInvalidClient
	}
	if err != nil {
		return domain.Client{}, err
	}

	if s.Hasher.Verify(secret, c.SecretHash) != nil {
		return domain.Client{}, ErrInvalidClient
	}
	return c, nil
}

func (s *CredentialService) newUser(username, password string, scopes []string, totpSecret string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, fmt.Errorf("%w: username and password are required", ErrInvalidRequest)
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := nowFunc(s.Now).UTC().Truncate(time.Second)
	u := domain.User{
		ID:           idx.NewAt(now).String(),
		Username:     username,
		PasswordHash: hash,
		Scopes:       scopes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if totpSecret != "" {
		u.TOTPSecret = &totpSecret
	}
	return u, nil
}

func validateClaims(claims []domain.Claim) ([]domain.Claim, error) {
	out := make([]domain.Claim, 0, len(claims))
	for _, c := range claims {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidClaim, err)
		}
		out = append(out, c.Normalized())
	}
	return out, nil
}
