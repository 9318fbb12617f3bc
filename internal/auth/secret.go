package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const secretFileName = "signing.key"

// LoadOrCreateSecret reads the handshake signing key from configDir/signing.key,
// or generates and persists a new 256-bit hex-encoded key if the file is missing
// or empty.
func LoadOrCreateSecret(configDir string) (string, error) {
	path := filepath.Join(configDir, secretFileName)

	data, err := os.ReadFile(path)
	if key := strings.TrimSpace(string(data)); err == nil && key != "" {
		return key, nil
	}

	secret, err := generateSecret()
	if err != nil {
		return "", err
	}

	if err := writeSecret(configDir, path, secret); err != nil {
		return "", err
	}

	return secret, nil
}

// RotateSecret generates a new signing key, replacing the existing one.
// Credentials signed with the old key stop verifying; live connections are
// not affected until they reconnect.
func RotateSecret(configDir string) (string, error) {
	path := filepath.Join(configDir, secretFileName)

	secret, err := generateSecret()
	if err != nil {
		return "", err
	}

	if err := writeSecret(configDir, path, secret); err != nil {
		return "", err
	}

	return secret, nil
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate signing key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func writeSecret(configDir, path, secret string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret), 0600); err != nil {
		return fmt.Errorf("write signing key: %w", err)
	}
	return nil
}
