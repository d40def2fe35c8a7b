package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
	"github.com/aussiebroadwan/idsrv/pkg/slogx"
)

// ProvisionOutcome is the result of an idempotent seeding call.
type ProvisionOutcome int

const (
	ProvisionCreated ProvisionOutcome = iota + 1
	ProvisionAlreadyExists
	ProvisionFailed
)

func (o ProvisionOutcome) String() string {
	switch o {
	case ProvisionCreated:
		return "created"
	case ProvisionAlreadyExists:
		return "already_exists"
	case ProvisionFailed:
		return "failed"
	}
	return "unknown"
}

// ProvisionResult reports what happened to one seeded record. Reason is
// set for ProvisionFailed only.
type ProvisionResult struct {
	Kind    string // "user" or "client"
	Name    string
	Outcome ProvisionOutcome
	Reason  string
}

type ClaimSeed struct {
	Type      string `yaml:"type"`
	Value     string `yaml:"value"`
	ValueType string `yaml:"value_type,omitempty"`
}

type UserSeed struct {
	Username   string      `yaml:"username"`
	Password   string      `yaml:"password"`
	Scopes     []string    `yaml:"scopes,omitempty"`
	TOTPSecret string      `yaml:"totp_secret,omitempty"`
	Claims     []ClaimSeed `yaml:"claims,omitempty"`
}

type ClientSeed struct {
	ID         string   `yaml:"client_id"`
	Name       string   `yaml:"name,omitempty"`
	Secret     string   `yaml:"secret"`
	GrantTypes []string `yaml:"grant_types"`
	Scopes     []string `yaml:"scopes"`
}

// SeedData is the content of a seed file.
type SeedData struct {
	Clients []ClientSeed `yaml:"clients"`
	Users   []UserSeed   `yaml:"users"`
}

func (c ClaimSeed) claim() domain.Claim {
	return domain.Claim{Type: c.Type, Value: c.Value, ValueType: domain.ClaimValueType(c.ValueType)}
}

// LoadSeedFile reads a YAML seed file. Unknown fields are rejected.
func LoadSeedFile(path string) (SeedData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SeedData{}, fmt.Errorf("read seed file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var data SeedData
	if err := dec.Decode(&data); err != nil {
		return SeedData{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return data, nil
}

const demoAddress = `{"street_address":"One Hacker Way","locality":"Heidelberg","postal_code":69118,"country":"Germany"}`

// DefaultSeed provisions the demo clients and users.
func DefaultSeed() SeedData {
	person := func(username, given, family, website string) UserSeed {
		return UserSeed{
			Username: username,
			Password: "Pass123$",
			Claims: []ClaimSeed{
				{Type: "name", Value: given + " " + family},
				{Type: "given_name", Value: given},
				{Type: "family_name", Value: family},
				{Type: "email", Value: given + family + "@email.com"},
				{Type: "email_verified", Value: "true", ValueType: string(domain.ClaimBoolean)},
				{Type: "website", Value: website},
				{Type: "address", Value: demoAddress, ValueType: string(domain.ClaimJSON)},
			},
		}
	}

	return SeedData{
		Clients: []ClientSeed{
			{
				ID:         "client",
				Name:       "Machine to machine client",
				Secret:     "secret",
				GrantTypes: []string{domain.GrantClientCredentials},
				Scopes:     []string{"api1"},
			},
			{
				ID:         "ro.client",
				Name:       "Resource owner password client",
				Secret:     "secret",
				GrantTypes: []string{domain.GrantPassword, domain.GrantRefreshToken},
				Scopes:     []string{"openid", "profile", "email", "address", "api1", domain.ScopeOfflineAccess},
			},
		},
		Users: []UserSeed{
			person("alice", "Alice", "Smith", "http://alice.com"),
			person("bob", "Bob", "Smith", "http://bob.com"),
		},
	}
}

// EnsureUser creates the user with its claims unless the username exists.
// An existing user is left untouched, claims included. Failures store
// nothing.
func (s *CredentialService) EnsureUser(ctx context.Context, seed UserSeed) (ProvisionResult, error) {
	res := ProvisionResult{Kind: "user", Name: seed.Username}

	claims := make([]domain.Claim, len(seed.Claims))
	for i, c := range seed.Claims {
		claims[i] = c.claim()
	}
	claims, err := validateClaims(claims)
	if err != nil {
		return s.failed(res, err)
	}

	if _, err := s.FindUser(ctx, seed.Username); err == nil {
		return s.existed(res), nil
	} else if !errors.Is(err, ErrNotFound) {
		return s.failed(res, err)
	}

	u, err := s.newUser(seed.Username, seed.Password, seed.Scopes, seed.TOTPSecret)
	if err != nil {
		return s.failed(res, err)
	}

	sctx, cancel := storeCtx(ctx, s.Timeout)
	defer cancel()

	if err := s.Store.Users().ProvisionUser(sctx, u, claims); err != nil {
		// Lost a race against a concurrent provisioner.
		if errors.Is(err, store.ErrAlreadyExists) {
			return s.existed(res), nil
		}
		return s.failed(res, storeErr(err))
	}

	res.Outcome = ProvisionCreated
	s.Metrics.Provisioned(res.Kind, res.Outcome.String())
	return res, nil
}

// EnsureClient registers the client unless its id is taken.
func (s *CredentialService) EnsureClient(ctx context.Context, seed ClientSeed) (ProvisionResult, error) {
	res := ProvisionResult{Kind: "client", Name: seed.ID}

	if strings.TrimSpace(seed.ID) == "" || seed.Secret == "" {
		return s.failed(res, fmt.Errorf("%w: client_id and secret are required", ErrInvalidRequest))
	}
	for _, g := range seed.GrantTypes {
		if !supportedGrant(g) {
			return s.failed(res, fmt.Errorf("%w: %s", ErrUnsupportedGrantType, g))
		}
	}

	if _, err := s.client(ctx, seed.ID); err == nil {
		return s.existed(res), nil
	} else if !errors.Is(err, ErrNotFound) {
		return s.failed(res, err)
	}

	hash, err := s.Hasher.Hash(seed.Secret)
	if err != nil {
		return s.failed(res, fmt.Errorf("hash secret: %w", err))
	}

	name := seed.Name
	if name == "" {
		name = seed.ID
	}
	now := nowFunc(s.Now).UTC().Truncate(time.Second)

	sctx, cancel := storeCtx(ctx, s.Timeout)
	defer cancel()

	err = s.Store.Clients().CreateClient(sctx, domain.Client{
		ID:         seed.ID,
		Name:       name,
		SecretHash: hash,
		GrantTypes: seed.GrantTypes,
		Scopes:     seed.Scopes,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return s.existed(res), nil
	}
	if err != nil {
		return s.failed(res, storeErr(err))
	}

	res.Outcome = ProvisionCreated
	s.Metrics.Provisioned(res.Kind, res.Outcome.String())
	return res, nil
}

// SeedUsers ensures every user, logging each outcome. A failure does not
// stop the remaining users.
func (s *CredentialService) SeedUsers(ctx context.Context, seeds []UserSeed) []ProvisionResult {
	out := make([]ProvisionResult, 0, len(seeds))
	for _, seed := range seeds {
		res, err := s.EnsureUser(ctx, seed)
		logProvision(ctx, res, err)
		out = append(out, res)
	}
	return out
}

// Seed ensures every client, then every user.
func (s *CredentialService) Seed(ctx context.Context, data SeedData) []ProvisionResult {
	out := make([]ProvisionResult, 0, len(data.Clients)+len(data.Users))
	for _, seed := range data.Clients {
		res, err := s.EnsureClient(ctx, seed)
		logProvision(ctx, res, err)
		out = append(out, res)
	}
	return append(out, s.SeedUsers(ctx, data.Users)...)
}

func (s *CredentialService) existed(res ProvisionResult) ProvisionResult {
	res.Outcome = ProvisionAlreadyExists
	s.Metrics.Provisioned(res.Kind, res.Outcome.String())
	return res
}

func (s *CredentialService) failed(res ProvisionResult, err error) (ProvisionResult, error) {
	res.Outcome = ProvisionFailed
	res.Reason = err.Error()
	s.Metrics.Provisioned(res.Kind, res.Outcome.String())
	return res, fmt.Errorf("provision %s %q: %w", res.Kind, res.Name, err)
}

func logProvision(ctx context.Context, res ProvisionResult, err error) {
	l := slogx.FromContext(ctx).With(
		slog.String("kind", res.Kind),
		slog.String("name", res.Name),
		slog.String("outcome", res.Outcome.String()),
	)
	if err != nil {
		l.Error("provisioning failed", slog.String("reason", res.Reason))
		return
	}
	l.Info("provisioned")
}
