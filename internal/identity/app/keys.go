package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/keylet/keylet/pkg/jwtx"
)

// initSigner loads the Ed25519 signing key from cfg.SigningKeyFile, creating
// and persisting one on first start. With no file configured the key is
// ephemeral: restarts invalidate every outstanding access token.
func initSigner(cfg Config, logger *slog.Logger) (*jwtx.Signer, error) {
	if cfg.SigningKeyFile == "" {
		logger.Warn("no signing key file configured, using an ephemeral key")
		return jwtx.GenerateSigner(cfg.SigningKeyID)
	}

	pemKey, err := os.ReadFile(cfg.SigningKeyFile)
	switch {
	case err == nil:
		return jwtx.NewSigner(cfg.SigningKeyID, pemKey)
	case errors.Is(err, fs.ErrNotExist):
		return generateAndPersist(cfg, logger)
	default:
		return nil, fmt.Errorf("read signing key: %w", err)
	}
}

func generateAndPersist(cfg Config, logger *slog.Logger) (*jwtx.Signer, error) {
	signer, err := jwtx.GenerateSigner(cfg.SigningKeyID)
	if err != nil {
		return nil, err
	}

	pemKey, err := signer.EncodePEM()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(cfg.SigningKeyFile, pemKey, 0o600); err != nil {
		return nil, fmt.Errorf("persist signing key: %w", err)
	}

	logger.Info("generated new signing key", "path", cfg.SigningKeyFile, "kid", signer.KID())
	return signer, nil
}
