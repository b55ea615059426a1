// Package crypto encrypts provider app tokens at rest. Every app instance gets
// its own AES-256 key, derived from one master secret with the app id as salt.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	hkdfInfo = "templar/v1/provider-credentials"

	// Format: enc:v1:<base64(nonce+ciphertext+tag)>
	ciphertextPrefix = "enc:v1:"
)

var (
	// ErrNotEncrypted is returned for stored values without the enc: prefix.
	// Provider tokens are never accepted in plaintext.
	ErrNotEncrypted = errors.New("crypto: value is not encrypted")
	ErrEmptySecret  = errors.New("crypto: secret must not be empty")
)

// DeriveKey derives a 32-byte key from secret using HKDF-SHA256 with salt.
func DeriveKey(secret, salt string) ([]byte, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	r := hkdf.New(sha256.New, []byte(secret), []byte(salt), []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := r.Read(key); err != nil {
		return nil, fmt.Errorf("crypto: hkdf: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithRandomNonce(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: NewGCMWithRandomNonce: %w", err)
	}
	return gcm, nil
}

// EncryptField seals plaintext and returns it in enc:v1 form.
func EncryptField(plaintext string, key []byte) (string, error) {
	if plaintext == "" {
		return "", errors.New("crypto: nothing to encrypt")
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	sealed := gcm.Seal(nil, nil, []byte(plaintext), nil)
	return ciphertextPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptField opens an enc:v1 value.
func DecryptField(value string, key []byte) (string, error) {
	if !strings.HasPrefix(value, "enc:") {
		return "", ErrNotEncrypted
	}
	if !strings.HasPrefix(value, ciphertextPrefix) {
		return "", fmt.Errorf("crypto: unsupported encryption version in prefix %q", value[:min(len(value), 10)])
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, ciphertextPrefix))
	if err != nil {
		return "", fmt.Errorf("crypto: base64 decode: %w", err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nil, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong key or corrupted data): %w", err)
	}
	return string(plaintext), nil
}

// Vault binds the master secret. It holds no decrypted material, so one value
// can be shared by every worker.
type Vault struct {
	secret string
}

func NewVault(secret string) (*Vault, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Vault{secret: secret}, nil
}

// Seal encrypts an app token under the key for appID.
func (v *Vault) Seal(appID, token string) (string, error) {
	key, err := DeriveKey(v.secret, appID)
	if err != nil {
		return "", err
	}
	return EncryptField(token, key)
}

// Open decrypts an app token stored for appID.
func (v *Vault) Open(appID, stored string) (string, error) {
	key, err := DeriveKey(v.secret, appID)
	if err != nil {
		return "", err
	}
	return DecryptField(stored, key)
}
