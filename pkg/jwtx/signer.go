package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Supported signing algorithms.
const (
	AlgorithmRS256 = "RS256"
	AlgorithmES256 = "ES256"
	AlgorithmEdDSA = "EdDSA"
)

// Signer signs access tokens with a single private key.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	PublicJWK() JWK
}

type keySigner struct {
	kid    string
	method jwt.SigningMethod
	key    crypto.Signer
	jwk    JWK
}

// NewSigner loads a PKCS8 PEM private key for alg and binds it to kid.
// The key type must match the algorithm.
func NewSigner(alg, kid string, pemKey []byte) (Signer, error) {
	if kid == "" {
		return nil, errors.New("jwtx: signer requires a kid")
	}

	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM private key")
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("jwtx: expected PKCS8 PRIVATE KEY, got %q", block.Type)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
	}

	var (
		method jwt.SigningMethod
		key    crypto.Signer
	)
	switch alg {
	case AlgorithmEdDSA:
		k, ok := parsed.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("jwtx: %s requires an Ed25519 key, got %T", alg, parsed)
		}
		method, key = jwt.SigningMethodEdDSA, k
	case AlgorithmES256:
		k, ok := parsed.(*ecdsa.PrivateKey)
		if !ok || k.Curve.Params().Name != "P-256" {
			return nil, fmt.Errorf("jwtx: %s requires a P-256 key, got %T", alg, parsed)
		}
		method, key = jwt.SigningMethodES256, k
	case AlgorithmRS256:
		k, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("jwtx: %s requires an RSA key, got %T", alg, parsed)
		}
		method, key = jwt.SigningMethodRS256, k
	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q", alg)
	}

	jwk, err := NewJWK(kid, alg, key.Public())
	if err != nil {
		return nil, err
	}

	return &keySigner{kid: kid, method: method, key: key, jwk: jwk}, nil
}

func (s *keySigner) Alg() string    { return s.method.Alg() }
func (s *keySigner) KID() string    { return s.kid }
func (s *keySigner) PublicJWK() JWK { return s.jwk }

// Sign returns the compact JWS of claims with the kid header set.
func (s *keySigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}
