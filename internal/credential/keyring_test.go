package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-assistant-go/internal/config"
)

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))

	require.NoError(t, s.Set(LLMKey("anthropic"), "sk-test"))
	v, err := s.Get(LLMKey("anthropic"))
	require.NoError(t, err)
	assert.Equal(t, "sk-test", v)

	require.NoError(t, s.Delete(LLMKey("anthropic")))
	_, err = s.Get(LLMKey("anthropic"))
	assert.ErrorIs(t, err, keyring.ErrKeyNotFound)
}

func TestResolveLLMKey(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring([]keyring.Item{{Key: LLMKey("openai"), Data: []byte("sk-ring")}}))

	cfg := config.LLMConfig{Provider: "openai", UseKeyring: true}
	require.NoError(t, ResolveLLMKey(&cfg, s))
	assert.Equal(t, "sk-ring", cfg.APIKey)

	explicit := config.LLMConfig{Provider: "openai", UseKeyring: true, APIKey: "sk-env"}
	require.NoError(t, ResolveLLMKey(&explicit, s))
	assert.Equal(t, "sk-env", explicit.APIKey)

	missing := config.LLMConfig{Provider: "gemini", UseKeyring: true}
	require.NoError(t, ResolveLLMKey(&missing, s))
	assert.Empty(t, missing.APIKey)

	disabled := config.LLMConfig{Provider: "openai"}
	require.NoError(t, ResolveLLMKey(&disabled, s))
	assert.Empty(t, disabled.APIKey)
}
