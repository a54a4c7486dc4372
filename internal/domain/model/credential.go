package model

// EncryptedToken is the at-rest form of the tracker API token. The nonce is
// not secret. The key lives in a separate per-user store.
type EncryptedToken struct {
	Ciphertext []byte
	Nonce      []byte
}

// IsZero reports whether no token has been stored.
func (t EncryptedToken) IsZero() bool {
	return len(t.Ciphertext) == 0 && len(t.Nonce) == 0
}
