// Package keyring implements the KeyStore port on top of the operating
// system's credential facility (Keychain, Secret Service, Windows
// Credential Manager).
package keyring

import (
	"encoding/hex"
	"errors"
	"fmt"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.KeyStore = (*KeyStore)(nil)

const (
	// DefaultService namespaces the entry by application identity.
	DefaultService = "jiradl"
	keyUser        = "token-encryption-key"
)

// KeyStore stores a single hex-encoded key under (service, keyUser).
type KeyStore struct {
	service string
}

// NewKeyStore creates a KeyStore for the given service namespace. An empty
// service uses DefaultService.
func NewKeyStore(service string) *KeyStore {
	if service == "" {
		service = DefaultService
	}
	return &KeyStore{service: service}
}

// Load returns the stored key or driven.ErrKeyNotFound. A value that is not
// valid hex is returned as an error so the caller can treat it as corrupt.
func (s *KeyStore) Load() ([]byte, error) {
	encoded, err := gokeyring.Get(s.service, keyUser)
	if errors.Is(err, gokeyring.ErrNotFound) {
		return nil, driven.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read key from keyring %q: %w", s.service, err)
	}

	key, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode key from keyring %q: %w", s.service, err)
	}
	return key, nil
}

// Save stores or replaces the key.
func (s *KeyStore) Save(key []byte) error {
	if err := gokeyring.Set(s.service, keyUser, hex.EncodeToString(key)); err != nil {
		return fmt.Errorf("write key to keyring %q: %w", s.service, err)
	}
	return nil
}

// Delete removes the key. A missing key is not an error.
func (s *KeyStore) Delete() error {
	err := gokeyring.Delete(s.service, keyUser)
	if err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
		return fmt.Errorf("delete key from keyring %q: %w", s.service, err)
	}
	return nil
}
