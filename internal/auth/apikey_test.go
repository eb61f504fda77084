package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey("ci runner")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key.Key, "psk_"))
	assert.Len(t, key.Key, len("psk_")+APIKeyLength)
	assert.True(t, IsValidAPIKeyFormat(key.Key))
	assert.Equal(t, key.Key[:12]+"...", key.KeyPrefix)
	assert.True(t, ValidateAPIKey(key.Key, key.Hash))
	assert.False(t, ValidateAPIKey(key.Key+"x", key.Hash))
	assert.Equal(t, "ci runner", key.Name)

	other, err := GenerateAPIKey("second")
	require.NoError(t, err)
	assert.NotEqual(t, key.Key, other.Key)
}

func TestGenerateAPIKeyRejectsBadNames(t *testing.T) {
	tests := []struct {
		name    string
		keyName string
		msg     string
	}{
		{"empty", "", "key name cannot be empty"},
		{"too long", strings.Repeat("A", 256), "at most 255"},
		{"control char", "Test\x00Key", "invalid characters"},
		{"bidi override", "Test\u202eKey", "invalid characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateAPIKey(tt.keyName)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	_, err := GenerateAPIKey("Test Key 🔑")
	assert.NoError(t, err)
}

func TestHashAndValidateAPIKey(t *testing.T) {
	_, err := HashAPIKey("")
	assert.Error(t, err)

	long := "psk_" + strings.Repeat("a", 100)
	hash, err := HashAPIKey(long)
	require.NoError(t, err)
	assert.True(t, ValidateAPIKey(long, hash))
	assert.False(t, ValidateAPIKey(long[:len(long)-1], hash))

	assert.False(t, ValidateAPIKey("", hash))
	assert.False(t, ValidateAPIKey(long, ""))
	assert.False(t, ValidateAPIKey(long, "not-a-bcrypt-hash"))
}

func TestIsValidAPIKeyFormat(t *testing.T) {
	assert.True(t, IsValidAPIKeyFormat("psk_abcdefgh12345678"))
	assert.False(t, IsValidAPIKeyFormat(""))
	assert.False(t, IsValidAPIKeyFormat("sk_abcdefgh12345678"))
	assert.False(t, IsValidAPIKeyFormat("psk_short"))
	assert.False(t, IsValidAPIKeyFormat("psk_abcdefgh-12345678"))
	assert.False(t, IsValidAPIKeyFormat("psk_"+strings.Repeat("a", 60)))
}

func TestCreateDisplayPrefix(t *testing.T) {
	assert.Equal(t, "psk_abcdefgh...", CreateDisplayPrefix("psk_abcdefgh12345678"))
	assert.Equal(t, "invalid_key", CreateDisplayPrefix("nope"))
}
