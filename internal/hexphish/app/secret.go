package app

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

const secretKeyBytes = 64

// loadSecretKey resolves the session signing key: the environment value wins,
// otherwise the key file is read, otherwise a fresh key is generated and
// persisted so sessions survive restarts.
func loadSecretKey(cfg Config) ([]byte, error) {
	if cfg.SecretKey != "" {
		if decoded, err := base64.StdEncoding.DecodeString(cfg.SecretKey); err == nil && len(decoded) >= 32 {
			return decoded, nil
		}
		// Not base64: use the raw value.
		return []byte(cfg.SecretKey), nil
	}

	if raw, err := os.ReadFile(cfg.SecretKeyFile); err == nil {
		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("secret key file %s is corrupt: %w", cfg.SecretKeyFile, err)
		}
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read secret key file: %w", err)
	}

	key := make([]byte, secretKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate secret key: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(key) + "\n"
	if err := os.WriteFile(cfg.SecretKeyFile, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("persist secret key: %w", err)
	}
	return key, nil
}
