package application

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

// keySize is the AES-256 key length in bytes.
const keySize = 32

var (
	// ErrKeyMissing means no usable encryption key exists in the key store.
	// The user has to enter the token again.
	ErrKeyMissing = errors.New("token encryption key missing")

	// ErrDecryptFailure means the stored ciphertext could not be opened with
	// the current key.
	ErrDecryptFailure = errors.New("stored token could not be decrypted")

	// ErrEmptyToken is returned when asked to encrypt an empty token.
	ErrEmptyToken = errors.New("token is empty")
)

// CredentialVault protects the tracker API token at rest with AES-256-GCM.
// The key lives in the KeyStore; the ciphertext and nonce live in config.
type CredentialVault struct {
	keys driven.KeyStore
}

// NewCredentialVault creates a vault over the given key store.
func NewCredentialVault(keys driven.KeyStore) *CredentialVault {
	return &CredentialVault{keys: keys}
}

// Encrypt seals token with a fresh random nonce. A missing or malformed key
// is replaced by a newly generated one, which invalidates any ciphertext
// sealed under the old key.
func (v *CredentialVault) Encrypt(token string) (model.EncryptedToken, error) {
	if token == "" {
		return model.EncryptedToken{}, ErrEmptyToken
	}

	key, err := v.keys.Load()
	if err != nil || len(key) != keySize {
		if err != nil && !errors.Is(err, driven.ErrKeyNotFound) {
			slog.Warn("encryption key unreadable, generating a new one", "error", err)
		}
		key, err = v.generateKey()
		if err != nil {
			return model.EncryptedToken{}, err
		}
	}

	gcm, err := newGCM(key)
	if err != nil {
		return model.EncryptedToken{}, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return model.EncryptedToken{}, fmt.Errorf("rand nonce: %w", err)
	}

	return model.EncryptedToken{
		Ciphertext: gcm.Seal(nil, nonce, []byte(token), nil),
		Nonce:      nonce,
	}, nil
}

// Decrypt opens a token sealed by Encrypt. It never generates a key.
func (v *CredentialVault) Decrypt(enc model.EncryptedToken) (string, error) {
	key, err := v.keys.Load()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyMissing, err)
	}
	if len(key) != keySize {
		return "", fmt.Errorf("%w: stored key has %d bytes", ErrKeyMissing, len(key))
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	if len(enc.Ciphertext) == 0 {
		return "", fmt.Errorf("%w: empty ciphertext", ErrDecryptFailure)
	}
	if len(enc.Nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("%w: nonce has %d bytes", ErrDecryptFailure, len(enc.Nonce))
	}

	plaintext, err := gcm.Open(nil, enc.Nonce, enc.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	return string(plaintext), nil
}

// Forget deletes the encryption key. Tokens sealed under it become
// unreadable.
func (v *CredentialVault) Forget() error {
	if err := v.keys.Delete(); err != nil {
		return fmt.Errorf("delete encryption key: %w", err)
	}
	return nil
}

func (v *CredentialVault) generateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate encryption key: %w", err)
	}
	if err := v.keys.Save(key); err != nil {
		return nil, fmt.Errorf("save encryption key: %w", err)
	}
	slog.Info("generated new token encryption key")
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
