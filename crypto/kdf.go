package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/john-matlock-eng/journal-vault/types"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// MinKdfIterations is the floor below which derivation is rejected outright
	MinKdfIterations = 100_000
	// DefaultKdfIterations is advertised to new clients (OWASP PBKDF2-SHA256 guidance)
	DefaultKdfIterations = 210_000

	kdfSaltSize   = 16
	masterKeySize = 32
)

// DeriveMasterKey derives the symmetric master key from a password and a
// per-user salt. Pure function of its inputs; the result must never be
// logged or persisted. A wrong password yields a different but
// well-formed key; only malformed inputs fail, with ErrKeyDerivation.
func DeriveMasterKey(password string, saltB64 string, iterations int) ([]byte, error) {
	if password == "" {
		return nil, types.ErrKeyDerivation
	}
	if iterations < MinKdfIterations {
		return nil, types.ErrKeyDerivation
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil || len(salt) < 8 {
		return nil, types.ErrKeyDerivation
	}
	return pbkdf2.Key([]byte(password), salt, iterations, masterKeySize, sha256.New), nil
}

// DeriveLocalKey derives a key from high-entropy local secrets, e.g. the
// device fingerprint behind the password cache. The iteration floor does
// not apply; it exists to protect low-entropy human passwords.
func DeriveLocalKey(secret string, saltB64 string, iterations int) ([]byte, error) {
	if secret == "" || iterations <= 0 {
		return nil, types.ErrKeyDerivation
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil || len(salt) < 8 {
		return nil, types.ErrKeyDerivation
	}
	return pbkdf2.Key([]byte(secret), salt, iterations, masterKeySize, sha256.New), nil
}

// GenerateKdfSalt returns a fresh base64 salt for a new identity.
func GenerateKdfSalt() (string, error) {
	salt := make([]byte, kdfSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}
