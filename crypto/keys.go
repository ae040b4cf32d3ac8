package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/john-matlock-eng/journal-vault/types"
	"golang.org/x/crypto/curve25519"
)

// KeyPair is an X25519 identity keypair. The private half only ever
// lives in memory; callers wrap it under the master key for transport.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair creates a fresh X25519 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	var kp KeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(kp.Public[:], pub)
	return &kp, nil
}

// PublicKeyBase64 returns the base64 encoding of the public key.
func (kp *KeyPair) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(kp.Public[:])
}

// PrivateKeyBase64 returns the base64 encoding of the private key.
func (kp *KeyPair) PrivateKeyBase64() string {
	return base64.StdEncoding.EncodeToString(kp.Private[:])
}

// Destroy wipes the private half.
func (kp *KeyPair) Destroy() {
	Zero(kp.Private[:])
}

// PublicKeyFromPrivate recomputes the public half of an X25519 private
// key. Used to check an unwrapped private key against the advertised
// public key before trusting it.
func PublicKeyFromPrivate(privateKey *[32]byte) (string, error) {
	pub, err := curve25519.X25519(privateKey[:], curve25519.Basepoint)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(pub), nil
}

// Fingerprint returns the sha256 hex fingerprint of a base64 X25519
// public key. This is the publicKeyId used as the authoritative
// identity token throughout the system.
func Fingerprint(publicKeyB64 string) (string, error) {
	pub, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return "", types.ErrBadRequest
	}
	if len(pub) != 32 {
		return "", types.ErrBadRequest
	}
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:]), nil
}

// DecodePublicKey decodes a base64 X25519 public key into its fixed-size form.
func DecodePublicKey(publicKeyB64 string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil || len(raw) != 32 {
		return nil, types.ErrBadRequest
	}
	var pub [32]byte
	copy(pub[:], raw)
	return &pub, nil
}
