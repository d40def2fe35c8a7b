package jwtx_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/idsrv/pkg/cryptox"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestNewEphemeralKeyManager_Options(t *testing.T) {
	t.Parallel()

	_, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmEdDSA})
	require.Error(t, err, "issuer is required")

	_, err = jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Algorithm: "HS256", Issuer: "i"})
	require.Error(t, err)

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    "i",
		NumKeys:   50,
	})
	require.NoError(t, err)
	require.Equal(t, 10, km.NumSigners())
	require.Len(t, km.KeySet().PublicJWKS().Keys, 10)
	require.True(t, km.IsReady())
	require.Equal(t, jwtx.AlgorithmEdDSA, km.Algorithm())
}

func TestKeyManager_RetireSignerKeepsVerification(t *testing.T) {
	t.Parallel()

	km := newManager(t, jwtx.AlgorithmEdDSA)
	signer := km.GetSigner()
	token := signTestToken(t, km)

	require.True(t, km.RetireSigner(signer.KID()))
	require.False(t, km.RetireSigner(signer.KID()))
	require.Nil(t, km.GetSigner())
	require.False(t, km.IsReady())

	_, err := km.Verifier().Verify(token)
	require.NoError(t, err)
}

type memKeyStore struct {
	mu   sync.Mutex
	keys []jwtx.SigningKeyRecord
}

func (m *memKeyStore) ListSigningKeys(_ context.Context, now time.Time) ([]jwtx.SigningKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []jwtx.SigningKeyRecord
	for _, k := range m.keys {
		if now.Before(k.ExpiresAt) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memKeyStore) CreateSigningKey(_ context.Context, k jwtx.SigningKeyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, k)
	return nil
}

func TestNewPersistentKeyManager_SurvivesRestart(t *testing.T) {
	t.Parallel()

	cipher, err := cryptox.NewKeyCipher([]byte("master"))
	require.NoError(t, err)
	store := &memKeyStore{}

	opts := jwtx.PersistentKeyManagerOptions{
		KeyManagerOptions: jwtx.KeyManagerOptions{
			Algorithm: jwtx.AlgorithmES256,
			Issuer:    "test-issuer",
			Audience:  []string{"api1"},
			NumKeys:   2,
		},
		Store:  store,
		Cipher: cipher,
	}

	first, err := jwtx.NewPersistentKeyManager(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, 2, first.NumSigners())
	require.Len(t, store.keys, 2)
	token := signTestToken(t, first)

	second, err := jwtx.NewPersistentKeyManager(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, 2, second.NumSigners())
	require.Len(t, store.keys, 2, "no new keys generated on restart")

	_, err = second.Verifier().Verify(token)
	require.NoError(t, err)
}

func TestNewPersistentKeyManager_RetiredKeysVerifyOnly(t *testing.T) {
	t.Parallel()

	cipher, err := cryptox.NewKeyCipher([]byte("master"))
	require.NoError(t, err)
	store := &memKeyStore{}
	opts := jwtx.PersistentKeyManagerOptions{
		KeyManagerOptions: jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmEdDSA, Issuer: "test-issuer"},
		Store:             store,
		Cipher:            cipher,
	}

	first, err := jwtx.NewPersistentKeyManager(context.Background(), opts)
	require.NoError(t, err)
	token := signTestToken(t, first)

	retired := time.Now()
	store.keys[0].RetiredAt = &retired

	second, err := jwtx.NewPersistentKeyManager(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, 1, second.NumSigners())
	require.Len(t, store.keys, 2, "replacement key generated")
	require.NotEqual(t, store.keys[0].Kid, second.GetSigner().KID())

	_, err = second.Verifier().Verify(token)
	require.NoError(t, err)
}

func TestNewPersistentKeyManager_WrongMasterKey(t *testing.T) {
	t.Parallel()

	good, err := cryptox.NewKeyCipher([]byte("good"))
	require.NoError(t, err)
	bad, err := cryptox.NewKeyCipher([]byte("bad"))
	require.NoError(t, err)
	store := &memKeyStore{}

	base := jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmEdDSA, Issuer: "i"}
	_, err = jwtx.NewPersistentKeyManager(context.Background(), jwtx.PersistentKeyManagerOptions{KeyManagerOptions: base, Store: store, Cipher: good})
	require.NoError(t, err)

	_, err = jwtx.NewPersistentKeyManager(context.Background(), jwtx.PersistentKeyManagerOptions{KeyManagerOptions: base, Store: store, Cipher: bad})
	require.Error(t, err)
}
