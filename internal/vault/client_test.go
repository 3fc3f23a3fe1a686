package vault_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orienta/internal/config"
	"orienta/internal/testutil"
	"orienta/internal/vault"
)

func TestClientSecrets(t *testing.T) {
	addr := testutil.SetupVault(t)
	ctx := context.Background()

	client, err := vault.NewClient(&vault.Config{Address: addr, Token: testutil.VaultToken})
	require.NoError(t, err)
	require.NoError(t, client.Health())

	err = client.StoreSecret(ctx, "orienta", map[string]interface{}{
		config.SecretDBPassword: "from-vault",
		config.SecretJWTSecret:  "jwt-from-vault",
		"pool_size":             12,
	})
	require.NoError(t, err)

	secrets, err := client.GetSecret(ctx, "orienta")
	require.NoError(t, err)
	assert.Equal(t, "from-vault", secrets[config.SecretDBPassword])
	assert.Equal(t, "12", secrets["pool_size"])

	cfg := &config.Config{}
	cfg.Database.Password = "from-env"
	cfg.Vault.SecretPath = "orienta"
	applied, err := cfg.ApplyVaultSecrets(ctx, client)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{config.SecretDBPassword, config.SecretJWTSecret}, applied)
	assert.Equal(t, "from-vault", cfg.Database.Password)
	assert.Equal(t, "jwt-from-vault", cfg.JWT.Secret)

	_, err = client.GetSecret(ctx, "missing")
	assert.Error(t, err)
}
