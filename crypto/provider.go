// Package crypto wraps the primitive operations of the key subsystem:
// randomness, password-based key derivation, symmetric AEAD, asymmetric
// key wrapping and fingerprinting. Everything above this package works
// in terms of the Provider interface so platforms can substitute
// hardware-backed implementations without touching key lifecycle logic.
package crypto

import (
	"crypto/rand"
	"io"
)

type Provider interface {
	// RandomBytes returns n cryptographically random bytes
	RandomBytes(n int) ([]byte, error)
	// DeriveKey derives a 32-byte master key from a password, base64 salt and iteration count
	DeriveKey(password string, saltB64 string, iterations int) ([]byte, error)
	// Seal AEAD-encrypts plaintext under a 32-byte symmetric key, returning base64 nonce||ciphertext
	Seal(key []byte, plaintext []byte, aad []byte) (string, error)
	// Open reverses Seal
	Open(key []byte, sealedB64 string, aad []byte) ([]byte, error)
	// WrapKey encrypts a symmetric key to a base64 X25519 public key
	WrapKey(publicKeyB64 string, key []byte) (string, error)
	// UnwrapKey decrypts a wrapped symmetric key with an X25519 private key
	UnwrapKey(privateKey *[32]byte, wrappedB64 string) ([]byte, error)
	// Fingerprint returns the stable identity token of a base64 public key
	Fingerprint(publicKeyB64 string) (string, error)
}

// DefaultProvider implements Provider with PBKDF2-SHA256, AES-256-GCM
// and X25519 ECIES from this package.
type DefaultProvider struct{}

func NewDefaultProvider() *DefaultProvider {
	return &DefaultProvider{}
}

func (p *DefaultProvider) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (p *DefaultProvider) DeriveKey(password string, saltB64 string, iterations int) ([]byte, error) {
	return DeriveMasterKey(password, saltB64, iterations)
}

func (p *DefaultProvider) Seal(key []byte, plaintext []byte, aad []byte) (string, error) {
	return SealWithKey(key, plaintext, aad)
}

func (p *DefaultProvider) Open(key []byte, sealedB64 string, aad []byte) ([]byte, error) {
	return OpenWithKey(key, sealedB64, aad)
}

func (p *DefaultProvider) WrapKey(publicKeyB64 string, key []byte) (string, error) {
	return WrapKey(publicKeyB64, key)
}

func (p *DefaultProvider) UnwrapKey(privateKey *[32]byte, wrappedB64 string) ([]byte, error) {
	return UnwrapKey(privateKey, wrappedB64)
}

func (p *DefaultProvider) Fingerprint(publicKeyB64 string) (string, error) {
	return Fingerprint(publicKeyB64)
}
