package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-unit-tests"

func TestDeriveKey(t *testing.T) {
	key, err := DeriveKey(testSecret, "app-1")
	require.NoError(t, err)
	assert.Len(t, key, 32)

	again, _ := DeriveKey(testSecret, "app-1")
	assert.Equal(t, key, again)

	other, _ := DeriveKey(testSecret, "app-2")
	assert.NotEqual(t, key, other, "salt must separate app keys")

	_, err = DeriveKey("", "app-1")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestVaultSealOpen(t *testing.T) {
	v, err := NewVault(testSecret)
	require.NoError(t, err)

	sealed, err := v.Seal("app-1", "sk_live_token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "enc:v1:"))
	assert.NotContains(t, sealed, "sk_live_token")

	token, err := v.Open("app-1", sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk_live_token", token)
}

func TestVaultOpen_WrongApp(t *testing.T) {
	v, _ := NewVault(testSecret)
	sealed, _ := v.Seal("app-1", "sk_live_token")

	_, err := v.Open("app-2", sealed)
	assert.Error(t, err)
}

func TestDecryptField_Rejects(t *testing.T) {
	key, _ := DeriveKey(testSecret, "app-1")

	tests := []struct {
		name  string
		value string
	}{
		{"plaintext", "sk_live_token"},
		{"empty", ""},
		{"unknown version", "enc:v99:abcd"},
		{"bad base64", "enc:v1:%%%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptField(tt.value, key)
			assert.Error(t, err)
		})
	}

	_, err := DecryptField("sk_live_token", key)
	assert.ErrorIs(t, err, ErrNotEncrypted)
}

func TestEncryptField_RandomNonce(t *testing.T) {
	key, _ := DeriveKey(testSecret, "app-1")

	a, err := EncryptField("same", key)
	require.NoError(t, err)
	b, _ := EncryptField("same", key)
	assert.NotEqual(t, a, b)

	_, err = EncryptField("", key)
	assert.Error(t, err)
}

func TestNewVault_EmptySecret(t *testing.T) {
	_, err := NewVault("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}
