package config

import (
	"context"
	"fmt"
	"strings"
)

// Secret keys recognised in the Vault KV document
const (
	SecretDBPassword    = "db_password"
	SecretJWTSecret     = "jwt_secret"
	SecretAdminPassword = "admin_password"
)

// ApplySecrets overrides sensitive settings with values read from a secret store.
// It returns the keys that were applied.
func (c *Config) ApplySecrets(secrets map[string]string) []string {
	var applied []string

	set := func(key string, target *string) {
		value, ok := secrets[key]
		if !ok || strings.TrimSpace(value) == "" {
			return
		}
		*target = value
		applied = append(applied, key)
	}

	set(SecretDBPassword, &c.Database.Password)
	set(SecretJWTSecret, &c.JWT.Secret)
	set(SecretAdminPassword, &c.Admin.Password)

	return applied
}

// SecretReader reads a key/value secret document
type SecretReader interface {
	GetSecret(ctx context.Context, path string) (map[string]string, error)
}

// ApplyVaultSecrets reads the configured secret path and applies it with ApplySecrets
func (c *Config) ApplyVaultSecrets(ctx context.Context, reader SecretReader) ([]string, error) {
	secrets, err := reader.GetSecret(ctx, c.Vault.SecretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets from vault: %w", err)
	}
	return c.ApplySecrets(secrets), nil
}
