package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const secretFile = "secret.json"

type persistedSecret struct {
	SigningSecret string `json:"signing_secret"`
}

// EnsureSecret resolves the shared token-signing secret. Precedence: the
// JWT_SECRET environment variable, then a previously persisted secret in the
// data dir, then a freshly generated one which is persisted for subsequent
// starts. Rotating or losing the secret silently invalidates every token
// issued before it, so this runs exactly once per process.
func EnsureSecret(dataDir string) (string, error) {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		return v, nil
	}

	path := filepath.Join(dataDir, secretFile)
	if data, err := os.ReadFile(path); err == nil {
		var stored persistedSecret
		if err := json.Unmarshal(data, &stored); err == nil && stored.SigningSecret != "" {
			return stored.SigningSecret, nil
		}
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate signing secret: %w", err)
	}
	secret := hex.EncodeToString(raw)

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(persistedSecret{SigningSecret: secret}, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("persist signing secret: %w", err)
	}
	return secret, nil
}
