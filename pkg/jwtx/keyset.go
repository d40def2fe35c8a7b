package jwtx

import (
	"errors"
	"sync"
)

var ErrNoKey = errors.New("jwtx: key not found")

type verificationKey struct {
	alg string
	pub any
}

// KeySet holds the public keys tokens are verified against, indexed by kid.
// It is safe for concurrent use.
type KeySet struct {
	mu   sync.RWMutex
	jwks JWKS
	keys map[string]verificationKey
}

func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[string]verificationKey)}
}

// AddSigner publishes the public half of s.
func (k *KeySet) AddSigner(s Signer) error {
	return k.AddJWK(s.PublicJWK())
}

// AddJWK registers j. Re-adding a known kid replaces it.
func (k *KeySet) AddJWK(j JWK) error {
	if j.Kid == "" {
		return errors.New("jwtx: JWK without kid")
	}
	pub, err := j.PublicKey()
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.keys[j.Kid]; exists {
		k.jwks.Keys = removeKid(k.jwks.Keys, j.Kid)
	}
	k.keys[j.Kid] = verificationKey{alg: j.Alg, pub: pub}
	k.jwks.Keys = append(k.jwks.Keys, j)
	return nil
}

// Get returns the public key and algorithm registered for kid.
func (k *KeySet) Get(kid string) (pub any, alg string, err error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	vk, ok := k.keys[kid]
	if !ok {
		return nil, "", ErrNoKey
	}
	return vk.pub, vk.alg, nil
}

// PublicJWKS returns a copy of the published key set.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()

	keys := make([]JWK, len(k.jwks.Keys))
	copy(keys, k.jwks.Keys)
	return JWKS{Keys: keys}
}

// IsReady reports whether at least one key is loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys) > 0
}

// ResetFromJWKS replaces the whole set, as a resource server does after
// fetching the issuer's jwks_uri.
func (k *KeySet) ResetFromJWKS(jwks JWKS) error {
	keys := make(map[string]verificationKey, len(jwks.Keys))
	for _, j := range jwks.Keys {
		pub, err := j.PublicKey()
		if err != nil {
			return err
		}
		keys[j.Kid] = verificationKey{alg: j.Alg, pub: pub}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys = keys
	k.jwks = JWKS{Keys: append([]JWK(nil), jwks.Keys...)}
	return nil
}

func removeKid(keys []JWK, kid string) []JWK {
	out := keys[:0]
	for _, j := range keys {
		if j.Kid != kid {
			out = append(out, j)
		}
	}
	return out
}
