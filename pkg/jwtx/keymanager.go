package jwtx

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/aussiebroadwan/idsrv/pkg/cryptox"
)

const (
	defaultNumKeys = 1
	maxNumKeys     = 10
	defaultRSABits = 3072
)

// KeyManager owns the signing keys of an issuer instance and the KeySet
// used to verify and publish them.
type KeyManager struct {
	keys      *KeySet
	verifier  *KeySetVerifier
	algorithm string

	mu      sync.RWMutex
	signers []Signer
}

// KeyManagerOptions configures key generation and verification.
type KeyManagerOptions struct {
	Algorithm string   // RS256, ES256 or EdDSA
	Issuer    string   // expected iss
	Audience  []string // expected aud; empty disables the check
	RSABits   int      // RS256 only, defaults to 3072
	NumKeys   int      // signing keys to keep active, 1..10
}

func (o *KeyManagerOptions) normalize() error {
	if o.Issuer == "" {
		return errors.New("jwtx: Issuer is required")
	}
	switch o.Algorithm {
	case AlgorithmEdDSA, AlgorithmES256, AlgorithmRS256:
	default:
		return fmt.Errorf("jwtx: unsupported algorithm %q (supported: RS256, ES256, EdDSA)", o.Algorithm)
	}
	if o.NumKeys <= 0 {
		o.NumKeys = defaultNumKeys
	}
	o.NumKeys = min(o.NumKeys, maxNumKeys)
	if o.RSABits == 0 {
		o.RSABits = defaultRSABits
	}
	return nil
}

func newKeyManager(opts KeyManagerOptions) *KeyManager {
	keys := NewKeySet()
	return &KeyManager{
		keys:      keys,
		verifier:  NewVerifier(keys, opts.Issuer, opts.Audience),
		algorithm: opts.Algorithm,
	}
}

// NewEphemeralKeyManager generates NumKeys in-memory keys. Tokens signed by
// them stop verifying once the process exits.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	km := newKeyManager(opts)
	for i := range opts.NumKeys {
		_, signer, err := generateSigner(opts.Algorithm, opts.RSABits)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate signer %d: %w", i+1, err)
		}
		if err := km.AddSigner(signer); err != nil {
			return nil, err
		}
	}
	return km, nil
}

// generateSigner creates a fresh key under a random kid and returns its PEM
// alongside the signer.
func generateSigner(alg string, rsaBits int) ([]byte, Signer, error) {
	kid, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, nil, err
	}
	pemKey, err := cryptox.GenerateSigningKey(alg, rsaBits)
	if err != nil {
		return nil, nil, err
	}
	signer, err := NewSigner(alg, kid, pemKey)
	if err != nil {
		return nil, nil, err
	}
	return pemKey, signer, nil
}

// Algorithm returns the algorithm new keys are generated for.
func (km *KeyManager) Algorithm() string { return km.algorithm }

// KeySet returns the verification keys, including ones no longer used
// for signing.
func (km *KeyManager) KeySet() *KeySet { return km.keys }

// Verifier returns a verifier bound to this manager's keys.
func (km *KeyManager) Verifier() *KeySetVerifier { return km.verifier }

// IsReady reports whether the manager can both sign and verify.
func (km *KeyManager) IsReady() bool {
	return km.NumSigners() > 0 && km.keys.IsReady()
}

// GetSigner returns a random active signer, or nil when none is loaded.
func (km *KeyManager) GetSigner() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	}
	return km.signers[rand.IntN(len(km.signers))] // #nosec G404 -- load spreading only
}

// NumSigners returns the number of active signing keys.
func (km *KeyManager) NumSigners() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return len(km.signers)
}

// AddSigner makes s available for signing and publishes its public key.
func (km *KeyManager) AddSigner(s Signer) error {
	if err := km.keys.AddSigner(s); err != nil {
		return fmt.Errorf("jwtx: publish %s: %w", s.KID(), err)
	}
	km.mu.Lock()
	km.signers = append(km.signers, s)
	km.mu.Unlock()
	return nil
}

// RetireSigner stops signing with kid. Its public key stays in the KeySet so
// tokens already issued keep verifying until they expire.
func (km *KeyManager) RetireSigner(kid string) bool {
	km.mu.Lock()
	defer km.mu.Unlock()

	for i, s := range km.signers {
		if s.KID() == kid {
			km.signers = append(km.signers[:i], km.signers[i+1:]...)
			return true
		}
	}
	return false
}
