package apikeys

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"crypto-trading-assistant/internal/logging"
	"crypto-trading-assistant/internal/vault"
)

// SettingsReader reads persisted settings values
type SettingsReader interface {
	GetSetting(ctx context.Context, key string) (string, error)
}

// Service resolves provider API keys. Resolution order: Vault KV,
// then an AES-GCM encrypted value in the settings store, then a plain
// environment variable. A key found nowhere is a normal miss reported
// as ("", nil); callers treat it as "provider unavailable".
type Service struct {
	vault         *vault.Client
	settings      SettingsReader
	encryptionKey []byte
	logger        *logging.Logger
}

// NewService creates an API key service. The AES key comes from the
// ENCRYPTION_KEY environment variable, padded or truncated to 32 bytes.
func NewService(vaultClient *vault.Client, settings SettingsReader, logger *logging.Logger) *Service {
	encryptionKey := os.Getenv("ENCRYPTION_KEY")
	if encryptionKey == "" {
		encryptionKey = "crypto-trading-assistant-default-key-32bytes!"
	}

	key := []byte(encryptionKey)
	if len(key) < 32 {
		padding := make([]byte, 32-len(key))
		key = append(key, padding...)
	} else if len(key) > 32 {
		key = key[:32]
	}

	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		vault:         vaultClient,
		settings:      settings,
		encryptionKey: key,
		logger:        logger.WithComponent("apikeys"),
	}
}

// APIKey resolves the API key for an AI provider ("claude", "openai")
func (s *Service) APIKey(ctx context.Context, provider string) (string, error) {
	provider = strings.ToLower(provider)

	if s.vault != nil && s.vault.IsEnabled() {
		key, err := s.vault.GetSecret(ctx, "ai-providers/"+provider, "api_key")
		if err != nil {
			s.logger.Warn("Vault lookup failed, falling through", "provider", provider, "error", err)
		} else if key != "" {
			return key, nil
		}
	}

	if s.settings != nil {
		encrypted, err := s.settings.GetSetting(ctx, "api_key_"+provider)
		if err == nil && encrypted != "" {
			key, err := s.decryptKey(encrypted)
			if err != nil {
				s.logger.Warn("Stored key decryption failed, falling through", "provider", provider, "error", err)
			} else if key != "" {
				return key, nil
			}
		}
	}

	return os.Getenv(envVarFor(provider)), nil
}

func envVarFor(provider string) string {
	switch provider {
	case "claude":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return strings.ToUpper(provider) + "_API_KEY"
	}
}

// decryptKey opens a base64 nonce-prefixed AES-256-GCM ciphertext
func (s *Service) decryptKey(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// EncryptKey seals a plaintext key for storage in the settings store.
// Used by admin tooling when provisioning per-deployment credentials.
func (s *Service) EncryptKey(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, sealed...)), nil
}
