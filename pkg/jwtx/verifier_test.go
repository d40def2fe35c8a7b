package jwtx_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, alg string) *jwtx.KeyManager {
	t.Helper()
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: alg,
		Issuer:    "test-issuer",
		Audience:  []string{"api1"},
		RSABits:   2048,
	})
	require.NoError(t, err)
	return km
}

func signTestToken(t *testing.T, km *jwtx.KeyManager) string {
	t.Helper()
	tok, err := km.GetSigner().Sign(jwtx.NewAccessClaims(jwtx.AccessClaimsParams{
		ID:       "jti-1",
		Issuer:   "test-issuer",
		Subject:  "user-1",
		Audience: []string{"api1"},
		Scopes:   []string{"api1"},
		IssuedAt: time.Now(),
		TTL:      time.Hour,
		Identity: map[string]any{"name": "Alice Smith"},
	}))
	require.NoError(t, err)
	return tok
}

func TestVerifier_AllAlgorithms(t *testing.T) {
	t.Parallel()

	for _, alg := range []string{jwtx.AlgorithmEdDSA, jwtx.AlgorithmES256, jwtx.AlgorithmRS256} {
		t.Run(alg, func(t *testing.T) {
			t.Parallel()

			km := newManager(t, alg)
			claims, err := km.Verifier().Verify(signTestToken(t, km))
			require.NoError(t, err)
			require.Equal(t, "user-1", claims.Subject)
			require.Equal(t, "jti-1", claims.ID)
			require.Equal(t, "Alice Smith", claims.Identity["name"])
		})
	}
}

// flipPayloadByte decodes the payload, flips one bit of byte i and
// re-encodes it, keeping the token structurally valid.
func flipPayloadByte(t *testing.T, token string, i int) string {
	t.Helper()
	parts := strings.Split(token, ".")
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	payload[i%len(payload)] ^= 0x01
	parts[1] = base64.RawURLEncoding.EncodeToString(payload)
	return strings.Join(parts, ".")
}

func TestVerifier_TamperedPayloadIsInvalidSignature(t *testing.T) {
	t.Parallel()

	km := newManager(t, jwtx.AlgorithmEdDSA)
	token := signTestToken(t, km)

	payloadLen := len(strings.Split(token, ".")[1]) * 3 / 4
	for i := range payloadLen {
		_, err := km.Verifier().Verify(flipPayloadByte(t, token, i))
		require.ErrorIs(t, err, jwtx.ErrInvalidSig, "byte %d", i)
	}
}

func TestVerifier_EncodedPayloadBitFlipsAreInvalidSignature(t *testing.T) {
	t.Parallel()

	km := newManager(t, jwtx.AlgorithmEdDSA)
	token := signTestToken(t, km)
	start := strings.IndexByte(token, '.') + 1
	end := strings.LastIndexByte(token, '.')

	for i := start; i < end; i++ {
		for b := range uint(8) {
			tampered := []byte(token)
			tampered[i] ^= 1 << b
			_, err := km.Verifier().Verify(string(tampered))
			require.ErrorIs(t, err, jwtx.ErrInvalidSig, "offset %d bit %d", i, b)
		}
	}

	// 'n' ^ 0x40 is '.', which adds a segment without touching the header
	// or the signature.
	dotted := token[:start+1] + "." + token[start+2:]
	_, err := km.Verifier().Verify(dotted)
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)
}

func TestVerifier_TamperedSignature(t *testing.T) {
	t.Parallel()

	km := newManager(t, jwtx.AlgorithmES256)
	parts := strings.Split(signTestToken(t, km), ".")
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	sig[0] ^= 0x80
	parts[2] = base64.RawURLEncoding.EncodeToString(sig)

	_, err = km.Verifier().Verify(strings.Join(parts, "."))
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)
}

func TestVerifier_Rejections(t *testing.T) {
	t.Parallel()

	km := newManager(t, jwtx.AlgorithmEdDSA)
	other := newManager(t, jwtx.AlgorithmEdDSA)
	token := signTestToken(t, km)

	_, err := km.Verifier().Verify("not-a-token")
	require.ErrorIs(t, err, jwtx.ErrMalformed)

	_, err = km.Verifier().Verify("a.b")
	require.ErrorIs(t, err, jwtx.ErrMalformed)

	_, err = km.Verifier().Verify("!!!." + strings.SplitN(token, ".", 2)[1])
	require.ErrorIs(t, err, jwtx.ErrMalformed)

	_, err = other.Verifier().Verify(token)
	require.ErrorIs(t, err, jwtx.ErrUnknownKID)

	wrongIss := jwtx.NewVerifier(km.KeySet(), "someone-else", nil)
	_, err = wrongIss.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrIssuer)

	wrongAud := jwtx.NewVerifier(km.KeySet(), "test-issuer", []string{"api2"})
	_, err = wrongAud.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrAudience)

	rsaOnly := jwtx.NewVerifier(km.KeySet(), "test-issuer", nil, jwtx.AlgorithmRS256)
	_, err = rsaOnly.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrAlgMismatch)
}

func TestVerifier_DoesNotCheckExpiry(t *testing.T) {
	t.Parallel()

	km := newManager(t, jwtx.AlgorithmEdDSA)
	tok, err := km.GetSigner().Sign(jwtx.NewAccessClaims(jwtx.AccessClaimsParams{
		ID:       "old",
		Issuer:   "test-issuer",
		Audience: []string{"api1"},
		IssuedAt: time.Now().Add(-2 * time.Hour),
		TTL:      time.Hour,
	}))
	require.NoError(t, err)

	claims, err := km.Verifier().Verify(tok)
	require.NoError(t, err)
	require.ErrorIs(t, claims.ValidateExpiry(time.Now()), jwtx.ErrExpired)
}
