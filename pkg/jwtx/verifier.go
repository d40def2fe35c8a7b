package jwtx

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Verifier checks a compact JWS and returns its claims. Time based checks
// are left to the caller so they can run against an injected clock.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// KeySetVerifier verifies tokens against the keys in a KeySet.
type KeySetVerifier struct {
	keys     *KeySet
	issuer   string
	audience []string
	algs     []string
}

// NewVerifier returns a verifier accepting the given algorithms. With no
// algorithms every supported one is accepted, still bound to the alg
// registered for the kid.
func NewVerifier(keys *KeySet, issuer string, audience []string, algs ...string) *KeySetVerifier {
	if len(algs) == 0 {
		algs = []string{AlgorithmEdDSA, AlgorithmES256, AlgorithmRS256}
	}
	return &KeySetVerifier{keys: keys, issuer: issuer, audience: audience, algs: algs}
}

type joseHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// Verify checks the signature over the raw signing input before the payload
// is decoded, so any change to header or payload surfaces as ErrInvalidSig
// (or ErrUnknownKID/ErrAlgMismatch when the header itself was altered).
//
// The header ends at the first '.' and the signature starts after the last
// one. Everything in between is signed, so a payload that gained a '.' still
// fails on the signature rather than on structure.
func (v *KeySetVerifier) Verify(token string) (Claims, error) {
	first := strings.IndexByte(token, '.')
	last := strings.LastIndexByte(token, '.')
	if first < 0 || first == last {
		return Claims{}, ErrMalformed
	}
	signingInput := token[:last]

	rawHeader, err := base64.RawURLEncoding.DecodeString(token[:first])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: header encoding", ErrMalformed)
	}
	var hdr joseHeader
	if err := json.Unmarshal(rawHeader, &hdr); err != nil {
		return Claims{}, fmt.Errorf("%w: header json", ErrMalformed)
	}
	sig, err := base64.RawURLEncoding.DecodeString(token[last+1:])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: signature encoding", ErrMalformed)
	}

	pub, alg, err := v.keys.Get(hdr.Kid)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %q", ErrUnknownKID, hdr.Kid)
	}
	if hdr.Alg != alg || !slices.Contains(v.algs, alg) {
		return Claims{}, ErrAlgMismatch
	}

	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return Claims{}, ErrAlgMismatch
	}
	if err := method.Verify(signingInput, sig, pub); err != nil {
		return Claims{}, ErrInvalidSig
	}

	// The signature is good; the parser only decodes the payload now.
	parser := jwt.NewParser(jwt.WithValidMethods([]string{alg}), jwt.WithoutClaimsValidation())
	var claims Claims
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return pub, nil
	}); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(v.audience); err != nil {
		return Claims{}, err
	}
	return claims, nil
}
