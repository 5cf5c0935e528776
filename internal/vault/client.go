package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"
)

// Config holds Vault connection settings
type Config struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// Client wraps the HashiCorp Vault KV v2 client. A disabled client is
// valid and reports every read as a miss.
type Client struct {
	client *api.Client
	config Config
}

// NewClient creates a new Vault client
func NewClient(cfg Config) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// IsEnabled reports whether the client talks to a real Vault
func (c *Client) IsEnabled() bool {
	return c.config.Enabled && c.client != nil
}

// GetSecret reads one field of a KV v2 secret. A missing secret or
// field is a miss reported as ("", nil).
func (c *Client) GetSecret(ctx context.Context, path, field string) (string, error) {
	if !c.IsEnabled() {
		return "", nil
	}

	secret, err := c.client.KVv2(c.config.MountPath).Get(ctx, path)
	if err != nil {
		if err == api.ErrSecretNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to read secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", nil
	}

	value, _ := secret.Data[field].(string)
	return value, nil
}

// Health verifies connectivity to the Vault server
func (c *Client) Health(ctx context.Context) error {
	if !c.IsEnabled() {
		return nil
	}
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if !health.Initialized || health.Sealed {
		return fmt.Errorf("vault not ready: initialized=%t sealed=%t", health.Initialized, health.Sealed)
	}
	return nil
}
