package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/config"
)

const serviceName = "smart-mail-assistant"

// Store reads and writes secrets in the system keyring
type Store struct {
	ring keyring.Keyring
}

// Open returns a store on the first available keyring backend
func Open() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/smart-mail-assistant/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("smart-mail-assistant-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// NewStore wraps an existing keyring
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Get retrieves a credential value by key
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key
func (s *Store) Set(key, value string) error {
	if err := s.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: serviceName + " " + key}); err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key
func (s *Store) Delete(key string) error {
	if err := s.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// LLMKey is the keyring entry holding the API key for a provider
func LLMKey(provider string) string {
	return "llm-api-key:" + provider
}

// ResolveLLMKey fills cfg.APIKey from the keyring when it is unset and keyring lookup is enabled.
// A missing entry leaves the key empty; the client then reports it on first use.
func ResolveLLMKey(cfg *config.LLMConfig, store *Store) error {
	if cfg.APIKey != "" || !cfg.UseKeyring || store == nil {
		return nil
	}
	key, err := store.Get(LLMKey(cfg.Provider))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		logrus.Warnf("No %s API key in keyring", cfg.Provider)
		return nil
	}
	if err != nil {
		return err
	}
	cfg.APIKey = key
	return nil
}
