package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "stelgent"

// OpenKeyring opens the system keyring, falling back to an encrypted file
// under the user config directory.
func OpenKeyring() (keyring.Keyring, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	keyringDir := filepath.Join(dir, serviceName, "keyring")
	if err := os.MkdirAll(keyringDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating keyring directory: %w", err)
	}

	cfg := keyring.Config{
		ServiceName:              serviceName,
		KeychainTrustApplication: true,
		FileDir:                  keyringDir,
		FilePasswordFunc:         keyring.TerminalPrompt,
	}
	if password := os.Getenv("STELGENT_KEYRING_PASSWORD"); password != "" {
		cfg.FilePasswordFunc = keyring.FixedStringPrompt(password)
	}
	if backend := strings.TrimSpace(os.Getenv("STELGENT_KEYRING_BACKEND")); backend != "" {
		cfg.AllowedBackends = []keyring.BackendType{keyring.BackendType(backend)}
	}
	return keyring.Open(cfg)
}

// Credentials stores one wallet public key per server address.
type Credentials struct {
	ring keyring.Keyring
}

func credentialKey(server string) string {
	return "wallet:" + strings.TrimRight(server, "/")
}

// PublicKey returns the stored key for server, or "" when there is none.
func (c *Credentials) PublicKey(server string) (string, error) {
	item, err := c.ring.Get(credentialKey(server))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading stored credentials: %w", err)
	}
	return string(item.Data), nil
}

// Save stores publicKey for server.
func (c *Credentials) Save(server, publicKey string) error {
	return c.ring.Set(keyring.Item{
		Key:         credentialKey(server),
		Data:        []byte(publicKey),
		Label:       "Stelgent wallet",
		Description: "Stellar public key for " + server,
	})
}

// Remove deletes the stored key for server. It reports whether one existed.
func (c *Credentials) Remove(server string) (bool, error) {
	key, err := c.PublicKey(server)
	if err != nil || key == "" {
		return false, err
	}
	if err := c.ring.Remove(credentialKey(server)); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return false, err
	}
	return true, nil
}
