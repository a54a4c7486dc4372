package driven

// KeyStore defines the driven port for the per-user protected store that
// holds the token encryption key. The key is never written next to the
// ciphertext.
type KeyStore interface {
	// Load returns the stored key, or ErrKeyNotFound.
	Load() ([]byte, error)

	// Save stores or replaces the key.
	Save(key []byte) error

	// Delete removes the key. Deleting a missing key is not an error.
	Delete() error
}
