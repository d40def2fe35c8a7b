package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
	"github.com/aussiebroadwan/idsrv/pkg/cryptox"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
)

// InitKeys creates the signing key manager for the configured storage mode.
//
//   - "ephemeral": keys are generated on startup and held in memory only.
//     Every issued token becomes unverifiable when the process restarts.
//   - "persistent": keys are sealed with the master key and stored in the
//     database, so tokens survive restarts until their key expires.
//
// Supported algorithms: RS256, ES256, EdDSA.
func InitKeys(ctx context.Context, cfg Config, db store.Store, logger *slog.Logger) (*jwtx.KeyManager, error) {
	opts := jwtx.KeyManagerOptions{
		Algorithm: cfg.Algorithm,
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
		RSABits:   cfg.RSABits,
		NumKeys:   cfg.NumKeys,
	}

	var (
		keyManager *jwtx.KeyManager
		err        error
	)

	switch cfg.KeyStorageMode {
	case KeyStoragePersistent:
		cipher, cerr := cryptox.LoadKeyCipher(cfg.MasterKeyPath)
		if cerr != nil {
			return nil, fmt.Errorf("failed to load master key: %w", cerr)
		}

		logger.Info("initializing persistent key manager",
			"algorithm", cfg.Algorithm,
			"num_keys", cfg.NumKeys,
			"lifetime", cfg.KeyLifetime,
		)

		keyManager, err = jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
			KeyManagerOptions: opts,
			Store:             store.NewKeyStoreAdapter(db),
			Cipher:            cipher,
			Lifetime:          cfg.KeyLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize persistent key manager: %w", err)
		}

	default:
		logger.Info("initializing ephemeral key manager",
			"algorithm", cfg.Algorithm,
			"num_keys", cfg.NumKeys,
		)

		keyManager, err = jwtx.NewEphemeralKeyManager(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
		}
	}

	logger.Info("signing keys ready",
		"mode", cfg.KeyStorageMode,
		"algorithm", keyManager.Algorithm(),
		"num_keys", keyManager.NumSigners(),
		"issuer", cfg.Issuer,
	)
	return keyManager, nil
}
