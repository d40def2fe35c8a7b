package jwtx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/idsrv/pkg/cryptox"
)

// SigningKeyRecord is a stored signing key. The private key is sealed with
// a cryptox.KeyCipher before it reaches the store.
type SigningKeyRecord struct {
	Kid                 string
	Algorithm           string
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
	RetiredAt           *time.Time
	ExpiresAt           time.Time
}

// Active reports whether the key may still sign at now.
func (r SigningKeyRecord) Active(now time.Time) bool {
	return r.RetiredAt == nil && now.Before(r.ExpiresAt)
}

// KeyStore is the persistence the manager needs. It is declared here so
// jwtx does not depend on the application's store package.
type KeyStore interface {
	// ListSigningKeys returns every key that has not yet expired.
	ListSigningKeys(ctx context.Context, now time.Time) ([]SigningKeyRecord, error)

	// CreateSigningKey stores a newly generated key.
	CreateSigningKey(ctx context.Context, key SigningKeyRecord) error
}

// PersistentKeyManagerOptions configures NewPersistentKeyManager.
type PersistentKeyManagerOptions struct {
	KeyManagerOptions

	Store  KeyStore
	Cipher *cryptox.KeyCipher

	// Lifetime of a generated key. Tokens can only be verified while the
	// key that signed them is loaded, so keep this well above the token TTL.
	Lifetime time.Duration

	Now func() time.Time
}

// NewPersistentKeyManager loads stored keys and tops the active set up to
// NumKeys with newly generated, stored ones. Keys survive restarts.
func NewPersistentKeyManager(ctx context.Context, opts PersistentKeyManagerOptions) (*KeyManager, error) {
	if opts.Store == nil {
		return nil, errors.New("jwtx: Store is required for persistent keys")
	}
	if opts.Cipher == nil {
		return nil, errors.New("jwtx: Cipher is required for persistent keys")
	}
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = 90 * 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	now := opts.Now().UTC()

	records, err := opts.Store.ListSigningKeys(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("jwtx: load signing keys: %w", err)
	}

	km := newKeyManager(opts.KeyManagerOptions)
	for _, rec := range records {
		pemKey, err := opts.Cipher.Open(rec.PrivateKeyEncrypted)
		if err != nil {
			return nil, fmt.Errorf("jwtx: unseal key %s: %w", rec.Kid, err)
		}
		signer, err := NewSigner(rec.Algorithm, rec.Kid, pemKey)
		if err != nil {
			return nil, fmt.Errorf("jwtx: load key %s: %w", rec.Kid, err)
		}

		if !rec.Active(now) {
			if err := km.keys.AddSigner(signer); err != nil {
				return nil, err
			}
			continue
		}
		if err := km.AddSigner(signer); err != nil {
			return nil, err
		}
	}

	for km.NumSigners() < opts.NumKeys {
		pemKey, signer, err := generateSigner(opts.Algorithm, opts.RSABits)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate key: %w", err)
		}
		sealed, err := opts.Cipher.Seal(pemKey)
		if err != nil {
			return nil, fmt.Errorf("jwtx: seal key: %w", err)
		}
		if err := opts.Store.CreateSigningKey(ctx, SigningKeyRecord{
			Kid:                 signer.KID(),
			Algorithm:           signer.Alg(),
			PrivateKeyEncrypted: sealed,
			CreatedAt:           now,
			ExpiresAt:           now.Add(opts.Lifetime),
		}); err != nil {
			return nil, fmt.Errorf("jwtx: store key: %w", err)
		}
		if err := km.AddSigner(signer); err != nil {
			return nil, err
		}
	}

	return km, nil
}
