package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/vault/api"
)

// Client wraps HashiCorp Vault API
type Client struct {
	client  *api.Client
	kvMount string
}

// Config holds Vault configuration
type Config struct {
	Address string
	Token   string
	KVMount string
}

// NewClient creates a new Vault client
func NewClient(cfg *Config) (*Client, error) {
	config := api.DefaultConfig()
	config.Address = cfg.Address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	mount := cfg.KVMount
	if mount == "" {
		mount = "secret"
	}

	return &Client{
		client:  client,
		kvMount: mount,
	}, nil
}

// StoreSecret writes a KV v2 secret
func (c *Client) StoreSecret(ctx context.Context, path string, data map[string]interface{}) error {
	if _, err := c.client.KVv2(c.kvMount).Put(ctx, path, data); err != nil {
		return fmt.Errorf("failed to store secret %s: %w", path, err)
	}
	return nil
}

// GetSecret reads a KV v2 secret and returns its string values
func (c *Client) GetSecret(ctx context.Context, path string) (map[string]string, error) {
	secret, err := c.client.KVv2(c.kvMount).Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret not found: %s", path)
	}

	values := make(map[string]string, len(secret.Data))
	for key, raw := range secret.Data {
		switch v := raw.(type) {
		case string:
			values[key] = v
		case nil:
			continue
		default:
			values[key] = fmt.Sprint(v)
		}
	}

	return values, nil
}

// Health checks Vault health status
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if !health.Initialized {
		return fmt.Errorf("vault is not initialized")
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}
